package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nanooro/dagnerai/domain"
)

const keyPrefix = "dagnerai:transcripts:"

// RedisArchive appends transcripts to a per-session Redis list. A zero ttl
// keeps them forever.
type RedisArchive struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisArchive(client *redis.Client, ttl time.Duration) *RedisArchive {
	return &RedisArchive{client: client, ttl: ttl}
}

func (a *RedisArchive) Save(ctx context.Context, t domain.Transcript) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encoding transcript: %w", err)
	}

	key := keyPrefix + t.SessionID
	pipe := a.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	if a.ttl > 0 {
		pipe.Expire(ctx, key, a.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving transcript: %w", err)
	}
	return nil
}

func (a *RedisArchive) Load(ctx context.Context, sessionID string) ([]domain.Transcript, error) {
	raw, err := a.client.LRange(ctx, keyPrefix+sessionID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("loading transcripts: %w", err)
	}

	out := make([]domain.Transcript, 0, len(raw))
	for _, item := range raw {
		var t domain.Transcript
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("decoding transcript: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}
