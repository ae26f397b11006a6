package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// TurnStore holds the short-term conversation of each session.
type TurnStore interface {
	Append(ctx context.Context, sessionID string, turns []Turn, ttl time.Duration) error
	List(ctx context.Context, sessionID string) ([]Turn, error)
	DropOldest(ctx context.Context, sessionID string, n int) error
	Clear(ctx context.Context, sessionID string) error
}

// ShortTermStore keeps conversation turns in Redis lists.
type ShortTermStore struct {
	client redis.Cmdable
}

func NewShortTermStore(client redis.Cmdable) *ShortTermStore {
	return &ShortTermStore{client: client}
}

func turnsKey(sessionID string) string {
	return fmt.Sprintf("memory:%s:turns", sessionID)
}

// Append pushes all turns with one RPUSH, so a user/assistant pair is
// never split by a concurrent writer.
func (s *ShortTermStore) Append(ctx context.Context, sessionID string, turns []Turn, ttl time.Duration) error {
	if len(turns) == 0 {
		return nil
	}
	key := turnsKey(sessionID)

	vals := make([]any, 0, len(turns))
	for _, t := range turns {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("marshaling turn: %w", err)
		}
		vals = append(vals, string(data))
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, vals...)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("appending turns to %s: %w", key, err)
	}
	return nil
}

// List returns every stored turn, oldest first.
func (s *ShortTermStore) List(ctx context.Context, sessionID string) ([]Turn, error) {
	key := turnsKey(sessionID)
	vals, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", key, err)
	}

	turns := make([]Turn, 0, len(vals))
	for _, v := range vals {
		var t Turn
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			slog.Warn("skipping malformed turn", "key", key, "error", err)
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// DropOldest removes the first n turns.
func (s *ShortTermStore) DropOldest(ctx context.Context, sessionID string, n int) error {
	if n <= 0 {
		return nil
	}
	key := turnsKey(sessionID)
	if err := s.client.LTrim(ctx, key, int64(n), -1).Err(); err != nil {
		return fmt.Errorf("ltrim %s: %w", key, err)
	}
	return nil
}

func (s *ShortTermStore) Clear(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, turnsKey(sessionID)).Err()
}
