package emitter

import (
	"context"
	"log/slog"

	"github.com/vietddude/custody/internal/core/domain"
)

// LogEmitter writes events to the structured log.
type LogEmitter struct {
	logger *slog.Logger
}

func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

func (l *LogEmitter) Emit(ctx context.Context, event *domain.Event) error {
	attrs := []any{
		"id", event.ID,
		"type", event.Type,
		"owner", event.Owner,
		"ts", event.Timestamp,
	}
	if event.Amount > 0 {
		attrs = append(attrs, "amount", event.Amount)
	}
	for k, v := range event.Keys {
		attrs = append(attrs, k, v)
	}
	l.logger.InfoContext(ctx, "Event", attrs...)
	return nil
}

func (l *LogEmitter) Name() string { return "log" }

func (l *LogEmitter) Close() error { return nil }
