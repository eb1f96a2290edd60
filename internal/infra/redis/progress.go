package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// ProgressStore persists relay cursors in Redis.
type ProgressStore struct {
	rdb *redis.Client
}

func NewProgressStore(client *Client) *ProgressStore {
	return &ProgressStore{rdb: client.rdb}
}

// GetProgress returns the last delivered sequence for name, 0 if none.
func (p *ProgressStore) GetProgress(ctx context.Context, name string) (uint64, error) {
	val, err := p.rdb.Get(ctx, progressKey(name)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get failed: %w", err)
	}
	return strconv.ParseUint(val, 10, 64)
}

// SetProgress records the last delivered sequence for name.
func (p *ProgressStore) SetProgress(ctx context.Context, name string, seq uint64) error {
	if err := p.rdb.Set(ctx, progressKey(name), strconv.FormatUint(seq, 10), 0).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}

// ClearProgress removes the cursor so the relay replays from the start.
func (p *ProgressStore) ClearProgress(ctx context.Context, name string) error {
	return p.rdb.Del(ctx, progressKey(name)).Err()
}
