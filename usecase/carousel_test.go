package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanooro/dagnerai/domain"
)

func newTestCarousel(t *testing.T) *Carousel {
	t.Helper()
	c, err := NewCarousel(testKnowledge(t).Carousel())
	require.NoError(t, err)
	return c
}

func TestCarousel_Wraps(t *testing.T) {
	c := newTestCarousel(t)
	assert.Equal(t, 0, c.Index())
	assert.Equal(t, "Ai Hoshino", c.Current().Name)

	for i := 0; i < 6; i++ {
		c.Next()
	}
	assert.Equal(t, 0, c.Index())

	prev := c.Prev()
	assert.Equal(t, 5, c.Index())
	assert.Equal(t, "Mem-cho", prev.Name)

	assert.Equal(t, "Ai Hoshino", c.Next().Name)
	assert.Equal(t, "Aqua Hoshino", c.Next().Name)
}

func TestCarousel_Seek(t *testing.T) {
	c := newTestCarousel(t)

	assert.Equal(t, "Kana Arima", c.Seek(3).Name)
	assert.Equal(t, 3, c.Index())
	assert.Equal(t, "Mem-cho", c.Seek(-1).Name)
	assert.Equal(t, "Aqua Hoshino", c.Seek(13).Name)
	assert.Equal(t, 1, c.Index())
}

func TestCarousel_OnChange(t *testing.T) {
	c := newTestCarousel(t)

	var seen []string
	unsubscribe := c.OnChange(func(e domain.CarouselEntry) { seen = append(seen, e.Name) })

	c.Next()
	c.Prev()
	c.Prev()
	unsubscribe()
	c.Next()

	assert.Equal(t, []string{"Aqua Hoshino", "Ai Hoshino", "Mem-cho"}, seen)
}

func TestCarousel_Empty(t *testing.T) {
	_, err := NewCarousel(nil)
	assert.Error(t, err)
}

func TestChatTarget(t *testing.T) {
	assert.Equal(t, "/chat?character=Ai%20Hoshino", ChatTarget("/chat", "Ai Hoshino"))
	assert.Equal(t, "/ws?character=Mem-cho", ChatTarget("/ws", "Mem-cho"))
	assert.Equal(t, "/chat?character=Aqua%27s%20family%20%26%20friends", ChatTarget("/chat", "Aqua's family & friends"))
}
