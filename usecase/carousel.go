package usecase

import (
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/nanooro/dagnerai/domain"
)

// CarouselNavigator is what a landing view needs from the carousel.
type CarouselNavigator interface {
	Next() domain.CarouselEntry
	Prev() domain.CarouselEntry
	Current() domain.CarouselEntry
	OnChange(fn func(domain.CarouselEntry)) (unsubscribe func())
}

// Carousel is a circular cursor over a fixed list of entries. It starts at
// index 0 and is never persisted.
type Carousel struct {
	mu          sync.RWMutex
	entries     []domain.CarouselEntry
	index       int
	subscribers map[int]func(domain.CarouselEntry)
	nextSub     int
}

var _ CarouselNavigator = (*Carousel)(nil)

func NewCarousel(entries []domain.CarouselEntry) (*Carousel, error) {
	if len(entries) == 0 {
		return nil, errors.New("carousel needs at least one entry")
	}
	return &Carousel{
		entries:     append([]domain.CarouselEntry(nil), entries...),
		subscribers: make(map[int]func(domain.CarouselEntry)),
	}, nil
}

func (c *Carousel) Next() domain.CarouselEntry { return c.move(1) }

func (c *Carousel) Prev() domain.CarouselEntry { return c.move(-1) }

// Seek jumps to index, wrapping it into range.
func (c *Carousel) Seek(index int) domain.CarouselEntry {
	c.mu.RLock()
	step := index - c.index
	c.mu.RUnlock()
	return c.move(step)
}

func (c *Carousel) Current() domain.CarouselEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[c.index]
}

func (c *Carousel) Index() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index
}

func (c *Carousel) Len() int { return len(c.entries) }

// OnChange registers fn to be called with the new entry after every move.
func (c *Carousel) OnChange(fn func(domain.CarouselEntry)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

func (c *Carousel) move(step int) domain.CarouselEntry {
	c.mu.Lock()
	n := len(c.entries)
	c.index = ((c.index+step)%n + n) % n
	entry := c.entries[c.index]
	subs := make([]func(domain.CarouselEntry), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(entry)
	}
	return entry
}

// ChatTarget builds the chat-launch link for a character. Spaces are encoded
// as %20, like encodeURIComponent.
func ChatTarget(base, character string) string {
	return base + "?character=" + strings.ReplaceAll(url.QueryEscape(character), "+", "%20")
}
