package identity

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/metrics"
)

// BreakerConfig tunes the circuit breaker around a remote registry.
type BreakerConfig struct {
	// ConsecutiveFailures trips the breaker
	ConsecutiveFailures uint32 `yaml:"consecutive_failures"`
	// OpenTimeout is how long the breaker stays open before probing
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// BreakerRegistry fails fast while the wrapped registry is unhealthy.
type BreakerRegistry struct {
	inner Registry
	cb    *gobreaker.CircuitBreaker
}

func NewBreakerRegistry(inner Registry, cfg BreakerConfig) *BreakerRegistry {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	return &BreakerRegistry{
		inner: inner,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "identity",
			Timeout: cfg.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrUnknownCredential)
			},
		}),
	}
}

// State exposes the breaker state for health reporting.
func (b *BreakerRegistry) State() string {
	return b.cb.State().String()
}

func (b *BreakerRegistry) IsCredentialValid(ctx context.Context, owner domain.Principal, credential domain.CredentialID) (bool, error) {
	res, err := b.execute("is_credential_valid", func() (any, error) {
		return b.inner.IsCredentialValid(ctx, owner, credential)
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

func (b *BreakerRegistry) MarkCredentialUsed(ctx context.Context, credential domain.CredentialID) error {
	_, err := b.execute("mark_credential_used", func() (any, error) {
		return nil, b.inner.MarkCredentialUsed(ctx, credential)
	})
	return err
}

func (b *BreakerRegistry) CredentialCount(ctx context.Context, owner domain.Principal) (int, error) {
	res, err := b.execute("credential_count", func() (any, error) {
		return b.inner.CredentialCount(ctx, owner)
	})
	if err != nil {
		return 0, err
	}
	return res.(int), nil
}

func (b *BreakerRegistry) execute(method string, fn func() (any, error)) (any, error) {
	res, err := b.cb.Execute(fn)
	if err != nil {
		metrics.IdentityCallsTotal.WithLabelValues(method, "error").Inc()
		return nil, err
	}
	metrics.IdentityCallsTotal.WithLabelValues(method, "ok").Inc()
	return res, nil
}
