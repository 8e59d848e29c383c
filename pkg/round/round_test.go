package round

import (
	"testing"

	"github.com/cuemby/fedcoord/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_RegisterWorker(t *testing.T) {
	m := New()
	assert.True(t, m.RegisterWorker("w1"))
	assert.False(t, m.RegisterWorker("w1"))
	assert.True(t, m.IsRegistered("w1"))
	assert.False(t, m.IsRegistered("w2"))
}

func TestManager_Assign_UnregisteredWorker(t *testing.T) {
	m := New()
	_, ok := m.Assign("ghost", "v1")
	assert.False(t, ok)
}

func TestManager_Assign_NewRoundPerVersion(t *testing.T) {
	m := New()
	m.RegisterWorker("a")
	m.RegisterWorker("b")

	r1, ok := m.Assign("a", "v1")
	require.True(t, ok)
	r2, ok := m.Assign("b", "v1")
	require.True(t, ok)
	assert.Equal(t, r1, r2, "both workers should join the same open round for the same version")

	snap, ok := m.Status(r1)
	require.True(t, ok)
	assert.Equal(t, types.RoundCollecting, snap.State)
	assert.ElementsMatch(t, []string{"a", "b"}, snap.AssignedWorkers)
}

func TestManager_Assign_AlreadyAssignedSameVersion(t *testing.T) {
	m := New()
	m.RegisterWorker("a")
	_, _ = m.Assign("a", "v1")

	_, ok := m.Assign("a", "v1")
	assert.False(t, ok, "worker with a live unsaturated assignment should not get a second one")
}

func TestManager_Assign_VersionMismatchClearsAssignment(t *testing.T) {
	m := New()
	m.RegisterWorker("a")
	r1, _ := m.Assign("a", "v1")

	r2, ok := m.Assign("a", "v2")
	require.True(t, ok)
	assert.NotEqual(t, r1, r2)
}

func TestManager_Assign_SaturatedRoundSkipped(t *testing.T) {
	m := New()
	m.RegisterWorker("a")
	m.RegisterWorker("b")

	r1, _ := m.Assign("a", "v1")
	require.True(t, m.RecordUpdate("a", r1))

	r2, ok := m.Assign("b", "v1")
	require.True(t, ok)
	assert.NotEqual(t, r1, r2, "a saturated round should not receive new assignments")
}

func TestManager_ValidateAndRecordUpdate(t *testing.T) {
	m := New()
	m.RegisterWorker("a")
	r1, _ := m.Assign("a", "v1")

	assert.True(t, m.ValidateUpdate("a", r1))
	assert.False(t, m.ValidateUpdate("b", r1))
	assert.False(t, m.ValidateUpdate("a", 999))

	assert.True(t, m.RecordUpdate("a", r1))
	assert.True(t, m.Saturated(r1))
}

func TestManager_RecordUpdate_Idempotent(t *testing.T) {
	m := New()
	m.RegisterWorker("a")
	r1, _ := m.Assign("a", "v1")

	require.True(t, m.RecordUpdate("a", r1))
	require.True(t, m.RecordUpdate("a", r1))

	snap, _ := m.Status(r1)
	assert.Equal(t, 1, snap.TotalUpdates, "resubmission must not double-count")
}

func TestManager_SetState_TransitionGraph(t *testing.T) {
	m := New()
	m.RegisterWorker("a")
	r1, _ := m.Assign("a", "v1")

	assert.False(t, m.SetState(r1, types.RoundClosed), "cannot skip AGGREGATING")
	assert.True(t, m.SetState(r1, types.RoundAggregating))
	assert.True(t, m.SetState(r1, types.RoundClosed))
	assert.False(t, m.SetState(r1, types.RoundAggregating), "CLOSED is terminal")
}

func TestManager_SetState_UnknownRound(t *testing.T) {
	m := New()
	assert.False(t, m.SetState(1, types.RoundClosed))
}

func TestManager_Status_UnknownRound(t *testing.T) {
	m := New()
	_, ok := m.Status(42)
	assert.False(t, ok)
}
