package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/custody/internal/core/clock"
	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/core/emitter"
	"github.com/vietddude/custody/internal/core/fee"
	"github.com/vietddude/custody/internal/identity"
	"github.com/vietddude/custody/internal/infra/storage"
	"github.com/vietddude/custody/internal/infra/storage/memory"
)

type fixture struct {
	svc      *Service
	store    *memory.MemoryStorage
	registry *identity.MemoryRegistry
	clock    *clock.Manual
	events   *emitter.Buffer
}

func newFixture(t *testing.T, fees fee.Config) *fixture {
	t.Helper()
	store := memory.NewMemoryStorage()
	settlement, err := fee.NewSettlement(store, fees)
	require.NoError(t, err)

	f := &fixture{
		store: store,
		registry: identity.NewMemoryRegistry(
			identity.Credential{Owner: "alice", ID: "a1"},
			identity.Credential{Owner: "alice", ID: "a2"},
			identity.Credential{Owner: "alice", ID: "a3"},
		),
		clock:  clock.NewManual(100),
		events: emitter.NewBuffer(),
	}
	f.svc = NewService(store, f.registry, settlement, f.clock, f.events, domain.DefaultPolicy())
	return f
}

func TestInitialize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fee.Config{})

	require.NoError(t, f.svc.Initialize(ctx, "alice", 2))

	w, err := f.svc.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), w.Balance)
	assert.Equal(t, uint64(0), w.Nonce)
	assert.Equal(t, 2, w.ApprovalThreshold)
	assert.Equal(t, uint64(100), w.CreatedAt)
	assert.Equal(t, []domain.EventType{domain.EventTypeWalletInitialized}, f.events.Types())
}

func TestInitializeRejects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fee.Config{})
	require.NoError(t, f.svc.Initialize(ctx, "alice", 1))

	tests := []struct {
		name      string
		owner     domain.Principal
		threshold int
		want      error
	}{
		{"existing wallet", "alice", 1, domain.ErrWalletExists},
		{"zero threshold", "bob", 0, domain.ErrInvalidThreshold},
		{"threshold above max", "bob", 11, domain.ErrInvalidThreshold},
		{"anonymous owner", "", 1, domain.ErrNotAuthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.Initialize(ctx, tt.owner, tt.threshold)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := f.svc.Get(ctx, "bob")
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
}

func TestInitializeChargesRegistrationFee(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fee.Config{Registration: 25, Treasury: "treasury"})

	require.NoError(t, f.svc.Initialize(ctx, "alice", 1))

	balance, err := f.svc.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), balance, "registration fee is paid from external funds")

	err = f.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		all, err := tx.Transfers().ListAfter(ctx, 0, 0)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, domain.TransferKindRegistrationFee, all[0].Kind)
		assert.Equal(t, domain.Principal("treasury"), all[0].To)
		assert.Equal(t, uint64(25), all[0].Amount)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.EventType{
		domain.EventTypeWalletInitialized,
		domain.EventTypeFeeCharged,
	}, f.events.Types())
}

func TestInitializeFailedWalletChargesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fee.Config{Registration: 25, Treasury: "treasury"})
	require.NoError(t, f.svc.Initialize(ctx, "alice", 1))
	require.ErrorIs(t, f.svc.Initialize(ctx, "alice", 1), domain.ErrWalletExists)

	err := f.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		sum, err := tx.Transfers().SumTo(ctx, "treasury")
		assert.Equal(t, uint64(25), sum)
		return err
	})
	require.NoError(t, err)
}

func TestDeposit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fee.Config{})
	require.NoError(t, f.svc.Initialize(ctx, "alice", 1))

	require.NoError(t, f.svc.Deposit(ctx, "alice", 1_000_000))
	require.NoError(t, f.svc.Deposit(ctx, "alice", 5))

	balance, err := f.svc.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_005), balance)

	w, err := f.svc.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), w.Nonce, "deposits never move the nonce")
}

func TestDepositRejects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fee.Config{})
	require.NoError(t, f.svc.Initialize(ctx, "alice", 1))
	assert.ErrorIs(t, f.svc.Deposit(ctx, "alice", domain.MaxAmount+1), domain.ErrInvalidAmount)
	require.NoError(t, f.svc.Deposit(ctx, "alice", domain.MaxAmount-1))

	assert.ErrorIs(t, f.svc.Deposit(ctx, "alice", 0), domain.ErrInvalidAmount)
	assert.ErrorIs(t, f.svc.Deposit(ctx, "bob", 10), domain.ErrWalletNotFound)
	assert.ErrorIs(t, f.svc.Deposit(ctx, "alice", 2), domain.ErrInvalidAmount)
	require.NoError(t, f.svc.Deposit(ctx, "alice", 1))

	balance, err := f.svc.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.MaxAmount, balance)
}

func TestCheckFundsBounds(t *testing.T) {
	w := &domain.WalletAccount{Owner: "alice", Balance: domain.MaxAmount}

	assert.NoError(t, CheckFunds(w, domain.MaxAmount-10, 10))
	assert.ErrorIs(t, CheckFunds(w, domain.MaxAmount, 1), domain.ErrInvalidAmount)
	assert.ErrorIs(t, CheckFunds(w, domain.MaxAmount+1, 0), domain.ErrInvalidAmount)
	assert.ErrorIs(t, CheckFunds(w, 1, ^uint64(0)), domain.ErrInvalidAmount)

	w.Balance = 100
	assert.ErrorIs(t, CheckFunds(w, 95, 10), domain.ErrInsufficientBalance)
}

func TestGetBalanceMissingWallet(t *testing.T) {
	f := newFixture(t, fee.Config{})
	balance, err := f.svc.GetBalance(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), balance)
}

func TestSetThreshold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fee.Config{})
	require.NoError(t, f.svc.Initialize(ctx, "alice", 1))

	require.NoError(t, f.svc.SetThreshold(ctx, "alice", 3))
	w, err := f.svc.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, w.ApprovalThreshold)

	assert.ErrorIs(t, f.svc.SetThreshold(ctx, "alice", 4), domain.ErrInvalidThreshold,
		"alice holds only three credentials")
	assert.ErrorIs(t, f.svc.SetThreshold(ctx, "alice", 0), domain.ErrInvalidThreshold)
	assert.ErrorIs(t, f.svc.SetThreshold(ctx, "bob", 1), domain.ErrWalletNotFound)

	f.registry.Revoke("a3")
	assert.ErrorIs(t, f.svc.SetThreshold(ctx, "alice", 3), domain.ErrInvalidThreshold)
	require.NoError(t, f.svc.SetThreshold(ctx, "alice", 2))
}

type downRegistry struct{ identity.Registry }

func (downRegistry) CredentialCount(ctx context.Context, owner domain.Principal) (int, error) {
	return 0, errors.New("connection refused")
}

func TestSetThresholdIdentityUnavailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fee.Config{})
	require.NoError(t, f.svc.Initialize(ctx, "alice", 1))

	f.svc.identity = downRegistry{Registry: f.registry}
	err := f.svc.SetThreshold(ctx, "alice", 1)
	assert.ErrorIs(t, err, domain.ErrIdentityUnavailable)
}
