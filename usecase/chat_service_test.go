package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nanooro/dagnerai/adapters/hasher"
	"github.com/nanooro/dagnerai/domain"
	"github.com/nanooro/dagnerai/utils/log"
)

func TestChatService_Open(t *testing.T) {
	svc := NewChatService(&fakeLlm{}, testKnowledge(t))
	ctx := context.Background()

	c := svc.Open(ctx, "client-1", "")
	assert.Equal(t, "Ai Hoshino", c.Character())
	assert.NotEmpty(t, c.ID())

	other := svc.Open(ctx, "client-1", " Mem-cho ")
	assert.Equal(t, "Mem-cho", other.Character())
	assert.NotEqual(t, c.ID(), other.ID())
	assert.Equal(t, 2, svc.SessionCount())

	got, err := svc.Get(other.ID())
	require.NoError(t, err)
	assert.Same(t, other, got)

	_, err = svc.Get("missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestChatService_GetOwned(t *testing.T) {
	svc := NewChatService(&fakeLlm{}, testKnowledge(t))
	c := svc.Open(context.Background(), "client-1", "Ruby Hoshino")
	assert.Equal(t, "client-1", c.Owner())

	got, err := svc.GetOwned(c.ID(), "client-1")
	require.NoError(t, err)
	assert.Same(t, c, got)

	_, err = svc.GetOwned(c.ID(), "client-2")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = svc.GetOwned("missing", "client-1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestChatService_SubmitAndPublish(t *testing.T) {
	broker := &fakeBroker{}
	svc := NewChatService(&fakeLlm{reply: "Hello!"}, testKnowledge(t),
		WithBroker(broker), WithHasher(hasher.New()), WithClock(fixedClock()))
	ctx := context.Background()

	c := svc.Open(ctx, "client-1", "Ruby Hoshino")
	turn, err := svc.Submit(ctx, c.ID(), "hey")
	require.NoError(t, err)
	assert.Equal(t, "Hello!", turn.Content)

	_, err = svc.Submit(ctx, "missing", "hey")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	require.Len(t, broker.messages, 3)
	for _, m := range broker.messages {
		assert.Equal(t, domain.TurnTopic, m.Topic)
		assert.Equal(t, c.ID(), m.RoutingKey)
	}
	var last domain.TurnEvent
	require.NoError(t, json.Unmarshal(broker.messages[2].Payload, &last))
	assert.Equal(t, "Hello!", last.Turn.Content)
	assert.Equal(t, domain.CharacterRole, last.Turn.Role)
	assert.Equal(t, "Ruby Hoshino", last.Character)
}

func TestChatService_SwitchCharacter(t *testing.T) {
	archive := &fakeArchive{}
	svc := NewChatService(&fakeLlm{reply: "..."}, testKnowledge(t), WithArchive(archive))
	ctx := context.Background()

	c := svc.Open(ctx, "client-1", "Aqua Hoshino")

	// greeting only: nothing worth archiving
	_, err := svc.SwitchCharacter(ctx, c.ID(), "Kana Arima")
	require.NoError(t, err)
	assert.Empty(t, archive.saved)

	_, err = svc.Submit(ctx, c.ID(), "hello")
	require.NoError(t, err)

	switched, err := svc.SwitchCharacter(ctx, c.ID(), "")
	require.NoError(t, err)
	assert.Equal(t, "Ai Hoshino", switched.Character())
	require.Len(t, switched.Snapshot().Turns, 1)

	archived, err := svc.Archived(ctx, c.ID(), "client-1")
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, "Kana Arima", archived[0].Character)
	assert.Len(t, archived[0].Turns, 3)

	_, err = svc.SwitchCharacter(ctx, "missing", "Kana Arima")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestChatService_Close(t *testing.T) {
	archive := &fakeArchive{}
	svc := NewChatService(&fakeLlm{reply: "bye"}, testKnowledge(t), WithArchive(archive))
	ctx := context.Background()

	c := svc.Open(ctx, "client-1", "Akane Kurokawa")
	_, err := svc.Submit(ctx, c.ID(), "see you")
	require.NoError(t, err)

	require.NoError(t, svc.Close(ctx, c.ID()))
	assert.Equal(t, 0, svc.SessionCount())
	assert.ErrorIs(t, svc.Close(ctx, c.ID()), domain.ErrSessionNotFound)

	_, err = svc.Get(c.ID())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	require.Len(t, archive.saved, 1)
	assert.Equal(t, c.ID(), archive.saved[0].SessionID)
}

func TestChatService_ArchivedWithoutArchive(t *testing.T) {
	svc := NewChatService(&fakeLlm{}, testKnowledge(t))

	got, err := svc.Archived(context.Background(), "any", "client-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestChatService_ArchivedByOwner(t *testing.T) {
	archive := &fakeArchive{}
	svc := NewChatService(&fakeLlm{reply: "..."}, testKnowledge(t), WithArchive(archive))
	ctx := context.Background()

	c := svc.Open(ctx, "client-1", "Kana Arima")
	_, err := svc.Submit(ctx, c.ID(), "hello")
	require.NoError(t, err)
	require.NoError(t, svc.Close(ctx, c.ID()))

	mine, err := svc.Archived(ctx, c.ID(), "client-1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "client-1", mine[0].Owner)

	theirs, err := svc.Archived(ctx, c.ID(), "client-2")
	require.NoError(t, err)
	assert.Empty(t, theirs)
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestChatService_EvictIdle(t *testing.T) {
	clock := &manualClock{now: time.Date(2024, 4, 12, 9, 0, 0, 0, time.UTC)}
	archive := &fakeArchive{}
	svc := NewChatService(&fakeLlm{reply: "..."}, testKnowledge(t), WithArchive(archive), WithClock(clock.Now))
	ctx := context.Background()

	stale := svc.Open(ctx, "client-1", "Aqua Hoshino")
	_, err := svc.Submit(ctx, stale.ID(), "hello")
	require.NoError(t, err)

	held := svc.Open(ctx, "client-1", "Mem-cho")
	release := held.Attach()

	clock.Advance(20 * time.Minute)
	fresh := svc.Open(ctx, "client-1", "Ruby Hoshino")

	clock.Advance(15 * time.Minute)
	assert.Equal(t, 1, svc.EvictIdle(ctx, 30*time.Minute))
	assert.Equal(t, 2, svc.SessionCount())

	_, err = svc.Get(stale.ID())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = svc.Get(fresh.ID())
	assert.NoError(t, err)
	require.Len(t, archive.saved, 1)
	assert.Equal(t, stale.ID(), archive.saved[0].SessionID)

	release()
	release()
	assert.Equal(t, 1, svc.EvictIdle(ctx, 30*time.Minute))
	_, err = svc.Get(held.ID())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Equal(t, 1, svc.SessionCount())
}

func TestChatService_SweepStopsWithContext(t *testing.T) {
	svc := NewChatService(&fakeLlm{}, testKnowledge(t))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		svc.Sweep(ctx, time.Millisecond, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweep kept running after cancel")
	}
}

func TestChatService_LogsSessionIDOnce(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	t.Cleanup(log.Replace(zap.New(core)))

	svc := NewChatService(&fakeLlm{}, testKnowledge(t))
	c := svc.Open(context.Background(), "client-1", "Ai Hoshino")

	// Connection contexts already carry the session id.
	ctx := log.WithValue(context.Background(), log.SessionIDKey, c.ID())
	require.NoError(t, svc.Close(ctx, c.ID()))

	for _, msg := range []string{"Chat session opened", "Chat session closed"} {
		entries := logs.FilterMessage(msg).All()
		require.Len(t, entries, 1, msg)

		count := 0
		for _, f := range entries[0].Context {
			if f.Key == string(log.SessionIDKey) {
				count++
				assert.Equal(t, c.ID(), f.String)
			}
		}
		assert.Equal(t, 1, count, msg)
	}
}
