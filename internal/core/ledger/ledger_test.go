package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/custody/internal/core/clock"
	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/core/emitter"
	"github.com/vietddude/custody/internal/core/fee"
	"github.com/vietddude/custody/internal/core/wallet"
	"github.com/vietddude/custody/internal/identity"
	"github.com/vietddude/custody/internal/infra/storage"
	"github.com/vietddude/custody/internal/infra/storage/memory"
)

type fixture struct {
	ledger   *Ledger
	wallets  *wallet.Service
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
			identity.Credential{Owner: "alice", ID: "A"},
			identity.Credential{Owner: "alice", ID: "B"},
			identity.Credential{Owner: "alice", ID: "C"},
			identity.Credential{Owner: "mallory", ID: "M"},
		),
		clock:  clock.NewManual(0),
		events: emitter.NewBuffer(),
	}
	policy := domain.DefaultPolicy()
	f.wallets = wallet.NewService(store, f.registry, settlement, f.clock, f.events, policy)
	f.ledger = NewLedger(store, f.registry, settlement, f.clock, f.events, policy)
	return f
}

func (f *fixture) fund(t *testing.T, owner domain.Principal, threshold int, amount uint64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.wallets.Initialize(ctx, owner, threshold))
	require.NoError(t, f.wallets.Deposit(ctx, owner, amount))
}

func TestWithdrawalScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fee.Config{})
	f.fund(t, "alice", 2, 1_000_000)

	id, err := f.ledger.CreateWithdrawal(ctx, "alice", "X", 500_000, "A")
	require.NoError(t, err)
	assert.Equal(t, domain.TxID(0), id)

	pt, err := f.ledger.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, pt.Approvals.Len())

	_, err = f.ledger.ExecuteTransaction(ctx, id)
	assert.ErrorIs(t, err, domain.ErrThresholdNotMet)

	n, err := f.ledger.ApproveTransaction(ctx, id, "B")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	done, err := f.ledger.ExecuteTransaction(ctx, id)
	require.NoError(t, err)
	assert.True(t, done.Executed)

	w, err := f.wallets.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000), w.Balance)
	assert.Equal(t, uint64(1), w.Nonce)

	_, err = f.ledger.ExecuteTransaction(ctx, id)
	assert.ErrorIs(t, err, domain.ErrAlreadyExecuted)

	w, err = f.wallets.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000), w.Balance, "second execute must not debit")
	assert.Equal(t, uint64(1), w.Nonce)
}

func TestWithdrawalWithFee(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fee.Config{Transfer: 1_000, Treasury: "treasury"})
	f.fund(t, "alice", 1, 1_000_000)

	id, err := f.ledger.CreateWithdrawal(ctx, "alice", "X", 500_000, "A")
	require.NoError(t, err)
	_, err = f.ledger.ExecuteTransaction(ctx, id)
	require.NoError(t, err)

	balance, err := f.wallets.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(499_000), balance)

	err = f.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		all, err := tx.Transfers().ListAfter(ctx, 0, 0)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, domain.Principal("X"), all[0].To)
		assert.Equal(t, uint64(500_000), all[0].Amount)
		assert.Equal(t, domain.Principal("treasury"), all[1].To)
		assert.Equal(t, uint64(1_000), all[1].Amount)
		return nil
	})
	require.NoError(t, err)
}

func TestCreateWithdrawalFeeFoldedIntoBalanceCheck(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fee.Config{Transfer: 10, Treasury: "treasury"})
	f.fund(t, "alice", 1, 100)

	_, err := f.ledger.CreateWithdrawal(ctx, "alice", "X", 91, "A")
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	_, err = f.ledger.CreateWithdrawal(ctx, "alice", "X", 90, "A")
	assert.NoError(t, err)
}

func TestCreateWithdrawalRejects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fee.Config{})
	f.fund(t, "alice", 1, 100)

	tests := []struct {
		name       string
		owner      domain.Principal
		to         domain.Principal
		amount     uint64
		credential domain.CredentialID
		want       error
	}{
		{"zero amount", "alice", "X", 0, "A", domain.ErrInvalidAmount},
		{"no recipient", "alice", "", 10, "A", domain.ErrInvalidRecipient},
		{"no wallet", "bob", "X", 10, "A", domain.ErrWalletNotFound},
		{"insufficient balance", "alice", "X", 101, "A", domain.ErrInsufficientBalance},
		{"above max amount", "alice", "X", domain.MaxAmount + 1, "A", domain.ErrInvalidAmount},
		{"foreign credential", "alice", "X", 10, "M", domain.ErrCredentialNotVerified},
		{"unknown credential", "alice", "X", 10, "Z", domain.ErrCredentialNotVerified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.CreateWithdrawal(ctx, tt.owner, tt.to, tt.amount, tt.credential)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	// Failed creations never consume an id.
	id, err := f.ledger.CreateWithdrawal(ctx, "alice", "X", 10, "A")
	require.NoError(t, err)
	assert.Equal(t, domain.TxID(0), id)
}

func TestCreateWithdrawalMarksCredentialUsed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fee.Config{})
	f.fund(t, "alice", 2, 100)

	id, err := f.ledger.CreateWithdrawal(ctx, "alice", "X", 10, "A")
	require.NoError(t, err)
	_, err = f.ledger.ApproveTransaction(ctx, id, "B")
	require.NoError(t, err)

	assert.Equal(t, uint64(1), f.registry.Uses("A"))
	assert.Equal(t, uint64(1), f.registry.Uses("B"))
}

func TestApproveRejects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fee.Config{})
	f.fund(t, "alice", 3, 100)

	id, err := f.ledger.CreateWithdrawal(ctx, "alice", "X", 10, "A")
	require.NoError(t, err)

	_, err = f.ledger.ApproveTransaction(ctx, id, "A")
	assert.ErrorIs(t, err, domain.ErrDuplicateApproval)

	_, err = f.ledger.ApproveTransaction(ctx, id, "M")
	assert.ErrorIs(t, err, domain.ErrCredentialNotVerified)

	_, err = f.ledger.ApproveTransaction(ctx, 99, "B")
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)

	pt, err := f.ledger.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []domain.CredentialID{"A"}, pt.Approvals.Items())
}

func TestApproveAfterExecute(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fee.Config{})
	f.fund(t, "alice", 1, 100)

	id, err := f.ledger.CreateWithdrawal(ctx, "alice", "X", 10, "A")
	require.NoError(t, err)
	_, err = f.ledger.ExecuteTransaction(ctx, id)
	require.NoError(t, err)

	_, err = f.ledger.ApproveTransaction(ctx, id, "B")
	assert.ErrorIs(t, err, domain.ErrAlreadyExecuted)
}

func TestApproveMaxApprovals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fee.Config{})
	f.ledger.policy.MaxApprovals = 2
	f.fund(t, "alice", 1, 100)

	id, err := f.ledger.CreateWithdrawal(ctx, "alice", "X", 10, "A")
	require.NoError(t, err)
	_, err = f.ledger.ApproveTransaction(ctx, id, "B")
	require.NoError(t, err)

	_, err = f.ledger.ApproveTransaction(ctx, id, "C")
	assert.ErrorIs(t, err, domain.ErrMaxApprovalsReached)
}

func TestExecuteRechecksBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fee.Config{})
	f.fund(t, "alice", 1, 100)

	first, err := f.ledger.CreateWithdrawal(ctx, "alice", "X", 80, "A")
	require.NoError(t, err)
	second, err := f.ledger.CreateWithdrawal(ctx, "alice", "Y", 80, "B")
	require.NoError(t, err)

	_, err = f.ledger.ExecuteTransaction(ctx, first)
	require.NoError(t, err)

	_, err = f.ledger.ExecuteTransaction(ctx, second)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	pt, err := f.ledger.Get(ctx, second)
	require.NoError(t, err)
	assert.False(t, pt.Executed)

	w, err := f.wallets.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(20), w.Balance)
	assert.Equal(t, uint64(1), w.Nonce)
}

func TestExecuteUsesThresholdAtCallTime(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fee.Config{})
	f.fund(t, "alice", 1, 100)

	id, err := f.ledger.CreateWithdrawal(ctx, "alice", "X", 10, "A")
	require.NoError(t, err)
	require.NoError(t, f.wallets.SetThreshold(ctx, "alice", 2))

	_, err = f.ledger.ExecuteTransaction(ctx, id)
	assert.ErrorIs(t, err, domain.ErrThresholdNotMet)
}

type failingMark struct{ identity.Registry }

func (failingMark) MarkCredentialUsed(ctx context.Context, credential domain.CredentialID) error {
	return errors.New("timeout")
}

func TestIdentityFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fee.Config{})
	f.fund(t, "alice", 1, 100)
	f.ledger.identity = failingMark{Registry: f.registry}

	_, err := f.ledger.CreateWithdrawal(ctx, "alice", "X", 10, "A")
	assert.ErrorIs(t, err, domain.ErrIdentityUnavailable)

	_, err = f.ledger.Get(ctx, 0)
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestAmountPlusFeeAboveMaxAmount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fee.Config{Transfer: 10, Treasury: "treasury"})
	f.fund(t, "alice", 1, 100)

	_, err := f.ledger.CreateWithdrawal(ctx, "alice", "X", domain.MaxAmount-5, "A")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.Zero(t, f.registry.Uses("A"))
}

// commitFailing runs fn and then reports a failed commit, discarding the
// staged writes.
type commitFailing struct{ storage.Store }

func (s commitFailing) Atomic(ctx context.Context, fn func(context.Context, storage.Tx) error) error {
	return s.Store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return errors.New("commit: connection reset")
	})
}

func TestCommitFailureAfterCredentialUse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fee.Config{})
	f.fund(t, "alice", 2, 100)
	id, err := f.ledger.CreateWithdrawal(ctx, "alice", "X", 10, "A")
	require.NoError(t, err)

	f.ledger.store = commitFailing{Store: f.store}

	_, err = f.ledger.CreateWithdrawal(ctx, "alice", "X", 10, "B")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInternal)
	assert.EqualValues(t, 1, f.registry.Uses("B"))

	_, err = f.ledger.ApproveTransaction(ctx, id, "C")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInternal)
	assert.EqualValues(t, 1, f.registry.Uses("C"))

	f.ledger.store = f.store
	pt, err := f.ledger.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, pt.Approvals.Len())
	_, err = f.ledger.Get(ctx, id+1)
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestConcurrentExecuteSucceedsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fee.Config{})
	f.fund(t, "alice", 1, 100)

	id, err := f.ledger.CreateWithdrawal(ctx, "alice", "X", 60, "A")
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.ledger.ExecuteTransaction(ctx, id); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, domain.ErrAlreadyExecuted)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	balance, err := f.wallets.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(40), balance)
}

func TestEventsEmittedAfterCommit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fee.Config{})
	f.fund(t, "alice", 1, 100)

	id, err := f.ledger.CreateWithdrawal(ctx, "alice", "X", 10, "A")
	require.NoError(t, err)
	_, err = f.ledger.ExecuteTransaction(ctx, id)
	require.NoError(t, err)
	_, err = f.ledger.ExecuteTransaction(ctx, id)
	require.Error(t, err)

	assert.Equal(t, []domain.EventType{
		domain.EventTypeWalletInitialized,
		domain.EventTypeDeposit,
		domain.EventTypeWithdrawalCreated,
		domain.EventTypeWithdrawalExecuted,
	}, f.events.Types())
}
