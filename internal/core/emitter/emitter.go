package emitter

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/metrics"
)

// Emitter defines the interface for publishing custody events
type Emitter interface {
	// Emit sends a single event
	Emit(ctx context.Context, event *domain.Event) error

	// Name identifies the emitter in metrics and logs
	Name() string

	// Close closes the emitter connection
	Close() error
}

// NewEvent builds an event with a fresh id.
func NewEvent(typ domain.EventType, owner domain.Principal, at uint64) *domain.Event {
	return &domain.Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Owner:     owner,
		Keys:      make(map[string]string),
		Timestamp: at,
	}
}

// Publish emits events after a commit. Delivery is best-effort: failures are
// logged and counted, never returned.
func Publish(ctx context.Context, e Emitter, events ...*domain.Event) {
	if e == nil {
		return
	}
	for _, ev := range events {
		if err := e.Emit(ctx, ev); err != nil {
			metrics.EventsEmitted.WithLabelValues(e.Name(), "error").Inc()
			slog.Warn("Failed to emit event",
				"emitter", e.Name(),
				"type", ev.Type,
				"owner", ev.Owner,
				"error", err,
			)
			continue
		}
		metrics.EventsEmitted.WithLabelValues(e.Name(), "ok").Inc()
	}
}
