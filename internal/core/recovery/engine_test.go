package recovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/custody/internal/core/clock"
	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/core/emitter"
	"github.com/vietddude/custody/internal/core/guardian"
	"github.com/vietddude/custody/internal/infra/storage/memory"
)

type fixture struct {
	engine    *Engine
	guardians *guardian.Registry
	clock     *clock.Manual
	events    *emitter.Buffer
}

// newFixture gives alice guardians g1, g2, g3 with threshold 2.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	policy := domain.DefaultPolicy()
	f := &fixture{
		clock:  clock.NewManual(1_000),
		events: emitter.NewBuffer(),
	}
	f.guardians = guardian.NewRegistry(store, f.clock, f.events, policy)
	f.engine = NewEngine(store, f.clock, f.events, policy)

	for _, g := range []domain.Principal{"g1", "g2", "g3"} {
		require.NoError(t, f.guardians.AddGuardian(ctx, "alice", g))
	}
	require.NoError(t, f.guardians.SetGuardianThreshold(ctx, "alice", 2))
	return f
}

func TestTimelockedRecoveryScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.engine.InitiateRecovery(ctx, "alice", "Y", "g1"))
	n, err := f.engine.ApproveRecovery(ctx, "alice", "g2")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	f.clock.Advance(143)
	_, err = f.engine.ExecuteRecovery(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrTimelockNotExpired)

	f.clock.Advance(1)
	newOwner, err := f.engine.ExecuteRecovery(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.Principal("Y"), newOwner)

	req, err := f.engine.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, req.Executed)
	assert.False(t, req.IsActive)
	assert.Equal(t, domain.RecoveryStatusExecuted, req.Status())
	assert.Equal(t, uint64(1_144), req.ClosedAt)
}

func TestEmergencyRecoveryScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.engine.InitiateRecovery(ctx, "alice", "Y", "g1"))
	_, err := f.engine.ApproveRecovery(ctx, "alice", "g2")
	require.NoError(t, err)

	_, err = f.engine.EmergencyRecovery(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrRecoveryThresholdNotMet, "2 of 3 meets threshold but not unanimity")

	_, err = f.engine.ApproveRecovery(ctx, "alice", "g3")
	require.NoError(t, err)

	newOwner, err := f.engine.EmergencyRecovery(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.Principal("Y"), newOwner)

	_, err = f.engine.ExecuteRecovery(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrRecoveryNotActive)
}

func TestExecuteRecoveryRequiresQuorum(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.engine.InitiateRecovery(ctx, "alice", "Y", "g1"))
	f.clock.Advance(500)

	_, err := f.engine.ExecuteRecovery(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrRecoveryThresholdNotMet)
}

func TestRemovedGuardianApprovalsDoNotCount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.engine.InitiateRecovery(ctx, "alice", "Y", "g1"))
	_, err := f.engine.ApproveRecovery(ctx, "alice", "g2")
	require.NoError(t, err)
	require.NoError(t, f.guardians.RemoveGuardian(ctx, "alice", "g2"))
	f.clock.Advance(144)

	_, err = f.engine.ExecuteRecovery(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrRecoveryThresholdNotMet)

	// Unanimity is measured against the remaining active guardians.
	_, err = f.engine.ApproveRecovery(ctx, "alice", "g3")
	require.NoError(t, err)
	_, err = f.engine.EmergencyRecovery(ctx, "alice")
	require.NoError(t, err)
}

func TestInitiateRecoveryRejects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	assert.ErrorIs(t, f.engine.InitiateRecovery(ctx, "alice", "Y", "stranger"), domain.ErrNotAuthorized)
	assert.ErrorIs(t, f.engine.InitiateRecovery(ctx, "alice", "", "g1"), domain.ErrInvalidNewOwner)
	assert.ErrorIs(t, f.engine.InitiateRecovery(ctx, "alice", "alice", "g1"), domain.ErrInvalidNewOwner)

	require.NoError(t, f.engine.InitiateRecovery(ctx, "alice", "Y", "g1"))
	assert.ErrorIs(t, f.engine.InitiateRecovery(ctx, "alice", "Z", "g2"), domain.ErrRecoveryAlreadyActive)

	req, err := f.engine.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.Principal("Y"), req.NewOwner)
}

func TestApproveRecoveryRejects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.engine.ApproveRecovery(ctx, "alice", "g2")
	assert.ErrorIs(t, err, domain.ErrRecoveryNotActive)

	require.NoError(t, f.engine.InitiateRecovery(ctx, "alice", "Y", "g1"))

	_, err = f.engine.ApproveRecovery(ctx, "alice", "stranger")
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	_, err = f.engine.ApproveRecovery(ctx, "alice", "g1")
	assert.ErrorIs(t, err, domain.ErrRecoveryDuplicateApproval)

	req, err := f.engine.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []domain.Principal{"g1"}, req.Approvals.Items())
}

func TestCancelRecovery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	assert.ErrorIs(t, f.engine.CancelRecovery(ctx, "alice", "alice"), domain.ErrRecoveryNotActive)

	require.NoError(t, f.engine.InitiateRecovery(ctx, "alice", "Y", "g1"))
	assert.ErrorIs(t, f.engine.CancelRecovery(ctx, "alice", "g1"), domain.ErrNotAuthorized)
	require.NoError(t, f.engine.CancelRecovery(ctx, "alice", "alice"))

	req, err := f.engine.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.RecoveryStatusCancelled, req.Status())

	assert.ErrorIs(t, f.engine.CancelRecovery(ctx, "alice", "alice"), domain.ErrRecoveryNotActive)
	_, err = f.engine.ExecuteRecovery(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrRecoveryNotActive)

	// A cancelled request can be replaced by a new one.
	require.NoError(t, f.engine.InitiateRecovery(ctx, "alice", "Z", "g2"))
	req, err = f.engine.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.Principal("Z"), req.NewOwner)
	assert.Equal(t, []domain.Principal{"g2"}, req.Approvals.Items())
}

func TestCancelAfterExecute(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.engine.InitiateRecovery(ctx, "alice", "Y", "g1"))
	_, err := f.engine.ApproveRecovery(ctx, "alice", "g2")
	require.NoError(t, err)
	f.clock.Advance(144)
	_, err = f.engine.ExecuteRecovery(ctx, "alice")
	require.NoError(t, err)

	assert.ErrorIs(t, f.engine.CancelRecovery(ctx, "alice", "alice"), domain.ErrRecoveryAlreadyExecuted)
}

func TestGetWithoutRequest(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Get(context.Background(), "bob")
	assert.ErrorIs(t, err, domain.ErrRecoveryNotActive)
}

func TestEmergencyWithoutGuardians(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.engine.InitiateRecovery(ctx, "alice", "Y", "g1"))
	for _, g := range []domain.Principal{"g1", "g2", "g3"} {
		require.NoError(t, f.guardians.RemoveGuardian(ctx, "alice", g))
	}

	_, err := f.engine.EmergencyRecovery(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrRecoveryThresholdNotMet)
	f.clock.Advance(144)
	_, err = f.engine.ExecuteRecovery(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrRecoveryThresholdNotMet)
}

func TestRecoveryEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.engine.InitiateRecovery(ctx, "alice", "Y", "g1"))
	require.NoError(t, f.engine.CancelRecovery(ctx, "alice", "alice"))

	types := f.events.Types()
	assert.Equal(t, []domain.EventType{
		domain.EventTypeRecoveryInitiated,
		domain.EventTypeRecoveryCancelled,
	}, types[len(types)-2:])
}
