package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/custody/internal/core/domain"
)

// StreamEmitter publishes custody events to a Redis stream.
type StreamEmitter struct {
	rdb    *redis.Client
	stream string
}

func NewStreamEmitter(client *Client, stream string) *StreamEmitter {
	if stream == "" {
		stream = DefaultStream
	}
	return &StreamEmitter{rdb: client.rdb, stream: stream}
}

func (s *StreamEmitter) Emit(ctx context.Context, event *domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	err = s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"id":      event.ID,
			"type":    string(event.Type),
			"owner":   string(event.Owner),
			"payload": payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd failed: %w", err)
	}
	return nil
}

func (s *StreamEmitter) Name() string { return "redis" }

// Close is a no-op; the shared Client owns the connection.
func (s *StreamEmitter) Close() error { return nil }

// SettlementSink delivers outbox transfers to a Redis stream consumed by the
// settlement rail. The seq field lets consumers drop redeliveries.
type SettlementSink struct {
	rdb    *redis.Client
	stream string
}

func NewSettlementSink(client *Client, stream string) *SettlementSink {
	if stream == "" {
		stream = DefaultSettlementStream
	}
	return &SettlementSink{rdb: client.rdb, stream: stream}
}

func (s *SettlementSink) Deliver(ctx context.Context, t *domain.Transfer) error {
	err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"seq":       strconv.FormatUint(t.Seq, 10),
			"kind":      string(t.Kind),
			"from":      string(t.From),
			"to":        string(t.To),
			"amount":    strconv.FormatUint(t.Amount, 10),
			"reference": t.Reference,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd failed: %w", err)
	}
	return nil
}
