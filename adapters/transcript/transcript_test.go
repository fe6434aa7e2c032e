package transcript

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanooro/dagnerai/domain"
)

func sampleTranscript(sessionID, character string) domain.Transcript {
	at := time.Date(2024, 4, 12, 9, 0, 0, 0, time.UTC)
	return domain.Transcript{
		SessionID: sessionID,
		Character: character,
		Turns: []domain.Turn{
			{Role: domain.CharacterRole, Content: "Hi! I'm Ruby Hoshino", CreatedAt: at},
			{Role: domain.UserRole, Content: "hello", CreatedAt: at.Add(time.Second)},
			{Role: domain.CharacterRole, Content: "Hello!", CreatedAt: at.Add(2 * time.Second)},
		},
		ArchivedAt: at.Add(time.Minute),
	}
}

func newRedisArchive(t *testing.T, ttl time.Duration) (*RedisArchive, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisArchive(client, ttl), mr
}

func TestRedisArchive(t *testing.T) {
	archive, mr := newRedisArchive(t, 0)
	ctx := context.Background()

	empty, err := archive.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, archive.Save(ctx, sampleTranscript("s1", "Ruby Hoshino")))
	require.NoError(t, archive.Save(ctx, sampleTranscript("s1", "Kana Arima")))
	require.NoError(t, archive.Save(ctx, sampleTranscript("s2", "Mem-cho")))

	got, err := archive.Load(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Ruby Hoshino", got[0].Character)
	assert.Equal(t, "Kana Arima", got[1].Character)
	assert.Equal(t, "Hello!", got[0].Turns[2].Content)
	assert.True(t, got[0].ArchivedAt.Equal(sampleTranscript("s1", "").ArchivedAt))

	assert.True(t, mr.Exists(keyPrefix+"s2"))
	assert.Equal(t, time.Duration(0), mr.TTL(keyPrefix+"s1"))
}

func TestRedisArchive_TTL(t *testing.T) {
	archive, mr := newRedisArchive(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, archive.Save(ctx, sampleTranscript("s1", "Aqua Hoshino")))
	assert.Equal(t, time.Hour, mr.TTL(keyPrefix+"s1"))

	mr.FastForward(2 * time.Hour)
	got, err := archive.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisArchive_Unavailable(t *testing.T) {
	archive, mr := newRedisArchive(t, 0)
	mr.Close()

	assert.Error(t, archive.Save(context.Background(), sampleTranscript("s1", "Ai Hoshino")))
	_, err := archive.Load(context.Background(), "s1")
	assert.Error(t, err)
}

func TestFileArchive(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "archive")
	archive, err := NewFileArchive(dir)
	require.NoError(t, err)
	ctx := context.Background()

	empty, err := archive.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, archive.Save(ctx, sampleTranscript("s1", "Ruby Hoshino")))
	require.NoError(t, archive.Save(ctx, sampleTranscript("s1", "Akane Kurokawa")))

	got, err := archive.Load(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Akane Kurokawa", got[1].Character)
	assert.Len(t, got[1].Turns, 3)

	_, err = os.Stat(filepath.Join(dir, "transcript_s1.json"))
	assert.NoError(t, err)
}

func TestFileArchive_RejectsPaths(t *testing.T) {
	archive, err := NewFileArchive(t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"", "..", "../escape", `a\b`} {
		assert.Error(t, archive.Save(context.Background(), sampleTranscript(id, "Ai Hoshino")), id)
	}
}

func TestFileArchive_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	archive, err := NewFileArchive(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "transcript_s1.json"), []byte("{not json"), 0o644))

	_, err = archive.Load(context.Background(), "s1")
	assert.Error(t, err)
}
