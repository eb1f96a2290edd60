package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/infra/storage"
	"github.com/vietddude/custody/internal/metrics"
)

// Sink delivers a settlement transfer to the rail that moves the value.
// Delivery is at-least-once; sinks dedupe on Transfer.Seq.
type Sink interface {
	Deliver(ctx context.Context, t *domain.Transfer) error
}

// ProgressStore persists the relay cursor.
type ProgressStore interface {
	GetProgress(ctx context.Context, name string) (uint64, error)
	SetProgress(ctx context.Context, name string, seq uint64) error
}

// RelayConfig controls the relay loop.
type RelayConfig struct {
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
	Retry     Backoff       `yaml:"retry"`
}

// RelayCursorName is the progress key of the settlement relay.
const RelayCursorName = "settlement"

// Relay drains the transfer outbox into a Sink.
type Relay struct {
	cfg      RelayConfig
	store    storage.Store
	sink     Sink
	progress ProgressStore

	// failures counts consecutive failed drains; retryAt gates the next one.
	failures int
	retryAt  time.Time
	now      func() time.Time
}

// NewRelay creates a new Relay worker.
func NewRelay(cfg RelayConfig, store storage.Store, sink Sink, progress ProgressStore) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Retry.InitialDelay <= 0 || cfg.Retry.MaxDelay <= 0 {
		cfg.Retry = DefaultBackoff()
	}
	return &Relay{
		cfg:      cfg,
		store:    store,
		sink:     sink,
		progress: progress,
		now:      time.Now,
	}
}

// Start runs the relay loop until ctx is cancelled.
func (r *Relay) Start(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	// Initial drain
	r.drain(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.drain(ctx)
		}
	}
}

// drain delivers batches until the outbox is empty or a delivery fails.
// After a failure further drains are skipped until the backoff elapses.
func (r *Relay) drain(ctx context.Context) {
	if r.failures > 0 && r.now().Before(r.retryAt) {
		return
	}
	for ctx.Err() == nil {
		n, err := r.RunOnce(ctx)
		if err != nil {
			delay := r.cfg.Retry.Delay(r.failures)
			r.failures++
			r.retryAt = r.now().Add(delay)
			slog.Error("[Relay] settlement delivery failed",
				"error", err,
				"failures", r.failures,
				"retry_in", delay,
			)
			return
		}
		r.failures = 0
		if n < r.cfg.BatchSize {
			return
		}
	}
}

// RunOnce delivers one batch after the stored cursor and returns how many
// transfers were delivered. The cursor advances past each delivered transfer,
// so a failure resumes at the failed one.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	cursor, err := r.progress.GetProgress(ctx, RelayCursorName)
	if err != nil {
		return 0, fmt.Errorf("read cursor: %w", err)
	}

	var batch []*domain.Transfer
	err = r.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		batch, err = tx.Transfers().ListAfter(ctx, cursor, r.cfg.BatchSize)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("list transfers: %w", err)
	}

	delivered := 0
	for _, t := range batch {
		if err := r.sink.Deliver(ctx, t); err != nil {
			metrics.RelayDelivered.WithLabelValues("error").Inc()
			return delivered, fmt.Errorf("deliver seq %d: %w", t.Seq, err)
		}
		metrics.RelayDelivered.WithLabelValues("ok").Inc()

		if err := r.progress.SetProgress(ctx, RelayCursorName, t.Seq); err != nil {
			return delivered, fmt.Errorf("save cursor: %w", err)
		}
		metrics.RelayCursor.Set(float64(t.Seq))
		delivered++
	}

	if delivered > 0 {
		slog.Debug("[Relay] delivered transfers", "count", delivered, "cursor", batch[delivered-1].Seq)
	}
	return delivered, nil
}

// MemoryProgress keeps cursors in process memory.
type MemoryProgress struct {
	mu      sync.Mutex
	cursors map[string]uint64
}

func NewMemoryProgress() *MemoryProgress {
	return &MemoryProgress{cursors: make(map[string]uint64)}
}

func (m *MemoryProgress) GetProgress(ctx context.Context, name string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursors[name], nil
}

func (m *MemoryProgress) SetProgress(ctx context.Context, name string, seq uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[name] = seq
	return nil
}

// LogSink writes transfers to the structured log.
type LogSink struct{}

func (LogSink) Deliver(ctx context.Context, t *domain.Transfer) error {
	slog.InfoContext(ctx, "Settlement",
		"seq", t.Seq,
		"kind", t.Kind,
		"from", t.From,
		"to", t.To,
		"amount", t.Amount,
		"reference", t.Reference,
	)
	return nil
}
