package emitter

import (
	"context"
	"sync"

	"github.com/vietddude/custody/internal/core/domain"
)

// Buffer keeps emitted events in memory.
type Buffer struct {
	mu     sync.Mutex
	events []*domain.Event
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

func (b *Buffer) Emit(ctx context.Context, event *domain.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

// Events returns a snapshot of everything emitted so far.
func (b *Buffer) Events() []*domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*domain.Event, len(b.events))
	copy(out, b.events)
	return out
}

// Types returns the event types in emission order.
func (b *Buffer) Types() []domain.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.EventType, len(b.events))
	for i, e := range b.events {
		out[i] = e.Type
	}
	return out
}

func (b *Buffer) Name() string { return "buffer" }

func (b *Buffer) Close() error { return nil }
