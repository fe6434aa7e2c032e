package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nanooro/dagnerai/adapters/roster"
	"github.com/nanooro/dagnerai/domain"
)

type fakeLlm struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
	ctxErrs []error

	// When set, Generate signals started and waits for release.
	started chan struct{}
	release chan struct{}
}

func (f *fakeLlm) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	started, release := f.started, f.release
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reply, f.err
}

func (f *fakeLlm) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type fakeArchive struct {
	mu    sync.Mutex
	saved []domain.Transcript
}

func (a *fakeArchive) Save(_ context.Context, t domain.Transcript) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.saved = append(a.saved, t)
	return nil
}

func (a *fakeArchive) Load(_ context.Context, id string) ([]domain.Transcript, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := []domain.Transcript{}
	for _, t := range a.saved {
		if t.SessionID == id {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakeBroker struct {
	mu       sync.Mutex
	messages []domain.Message
}

func (b *fakeBroker) Publish(_ context.Context, topic, routingKey string, message []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, domain.Message{Topic: topic, RoutingKey: routingKey, Payload: message})
	return nil
}

func (b *fakeBroker) Subscribe(context.Context, string, string) (<-chan domain.Message, error) {
	return make(chan domain.Message), nil
}

func (b *fakeBroker) Close() error { return nil }

var knownCharacters = []string{"Ai Hoshino", "Aqua Hoshino", "Ruby Hoshino", "Kana Arima", "Akane Kurokawa", "Mem-cho"}

var greetings = map[string]string{
	"Ai Hoshino":     "Hello there! I'm Ai Hoshino, the amazing idol from Oshi no Ko! ✨ I'm super excited to chat with you! What's on your mind? I love talking about anything and everything - music, dreams, love... you name it! 💕",
	"Aqua Hoshino":   "...Hello. I'm Aqua Hoshino. I don't talk much, but I'll listen if you have something to say. Just don't waste my time.",
	"Ruby Hoshino":   "Hi! I'm Ruby Hoshino, and I'm going to be the greatest idol ever! 🌟 I work really hard and I'm super passionate about my dreams. What about you? Do you have any big goals? Let's talk about them!",
	"Kana Arima":     "Oh, hello. I'm Kana Arima. I've been acting since I was a kid, so I'm pretty used to being on stage. It's nice to meet you. What brings you here today?",
	"Akane Kurokawa": "Good day. I'm Akane Kurokawa, an actress and idol. I approach everything with careful consideration and analysis. It's a pleasure to make your acquaintance. Shall we have a meaningful conversation?",
	"Mem-cho":        "Hey hey! I'm Mem-cho, the super energetic and fun idol from Oshi no Ko! 🎉 I love having a good time and making people smile! What's up? Let's chat about something awesome!",
	"Pieyon":         "Hello! I'm Pieyon from Oshi no Ko. I'm excited to chat with you! What would you like to talk about?",
}

func testKnowledge(t *testing.T) *KnowledgeStore {
	t.Helper()
	r, err := roster.Builtin()
	require.NoError(t, err)
	return NewKnowledgeStore(r)
}

func fixedClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 4, 12, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}
