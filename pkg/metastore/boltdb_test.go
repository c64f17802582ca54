package metastore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotgate/depotgate/pkg/errdefs"
	"github.com/depotgate/depotgate/pkg/types"
)

func newStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "depotgate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func pointer(id, task string, role types.ArtifactRole, createdAt time.Time) *types.ArtifactPointer {
	return &types.ArtifactPointer{
		ArtifactID:  id,
		TenantID:    "tenant-a",
		RootTaskID:  task,
		Location:    "fs://tenant-a/" + task + "/" + id,
		SizeBytes:   5,
		ContentHash: "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		Role:        role,
		CreatedAt:   createdAt,
	}
}

func TestInsertPointerIdempotent(t *testing.T) {
	s := newStore(t)
	now := time.Now().UTC()
	p := pointer("a1", "task-1", types.RoleFinalOutput, now)

	require.NoError(t, s.InsertPointer(p))
	// Same row again is a no-op.
	require.NoError(t, s.InsertPointer(p))

	// A different row under the same id is a conflict.
	changed := pointer("a1", "task-1", types.RoleSupporting, now)
	assert.ErrorIs(t, s.InsertPointer(changed), errdefs.ErrPointerConflict)
}

func TestListLivePointers(t *testing.T) {
	s := newStore(t)
	base := time.Now().UTC()

	require.NoError(t, s.InsertPointer(pointer("a1", "task-1", types.RoleSupporting, base)))
	require.NoError(t, s.InsertPointer(pointer("a2", "task-1", types.RoleFinalOutput, base.Add(time.Second))))
	require.NoError(t, s.InsertPointer(pointer("b1", "task-2", types.RoleFinalOutput, base)))

	live, err := s.ListLivePointers("tenant-a", "task-1")
	require.NoError(t, err)
	require.Len(t, live, 2)
	// Newest first.
	assert.Equal(t, "a2", live[0].ArtifactID)
	assert.Equal(t, "a1", live[1].ArtifactID)

	// Other tenants see nothing.
	other, err := s.ListLivePointers("tenant-b", "task-1")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestMarkPurged(t *testing.T) {
	s := newStore(t)
	base := time.Now().UTC()
	require.NoError(t, s.InsertPointer(pointer("a1", "task-1", types.RoleSupporting, base)))
	require.NoError(t, s.InsertPointer(pointer("a2", "task-1", types.RoleSupporting, base)))

	affected, err := s.MarkPurged("tenant-a", "task-1", []string{"a1"}, time.Now().UTC(), nil)
	require.NoError(t, err)
	require.Len(t, affected, 1)
	assert.Equal(t, "a1", affected[0].ArtifactID)

	live, err := s.ListLivePointers("tenant-a", "task-1")
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "a2", live[0].ArtifactID)

	// Purging the already-purged pointer touches nothing.
	affected, err = s.MarkPurged("tenant-a", "task-1", []string{"a1"}, time.Now().UTC(), nil)
	require.NoError(t, err)
	assert.Empty(t, affected)

	// nil ids selects every remaining live pointer.
	affected, err = s.MarkPurged("tenant-a", "task-1", nil, time.Now().UTC(), nil)
	require.NoError(t, err)
	require.Len(t, affected, 1)
	assert.Equal(t, "a2", affected[0].ArtifactID)
}

func deliverable(id string) *types.Deliverable {
	return &types.Deliverable{
		DeliverableID: id,
		TenantID:      "tenant-a",
		RootTaskID:    "task-1",
		Spec: types.DeliverableSpec{
			Requirements:        []string{"review"},
			ShippingDestination: "fs://out/run-1",
		},
		Status:    types.StatusDeclared,
		CreatedAt: time.Now().UTC(),
	}
}

func TestDeliverableTransitions(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.InsertDeliverable(deliverable("d1")))

	require.NoError(t, s.TransitionDeliverable("tenant-a", "d1", types.StatusDeclared, types.StatusRejected))

	got, err := s.GetDeliverable("tenant-a", "d1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusRejected, got.Status)

	// Terminal re-entry surfaces the terminal error.
	err = s.TransitionDeliverable("tenant-a", "d1", types.StatusDeclared, types.StatusShipped)
	assert.ErrorIs(t, err, errdefs.ErrAlreadyRejected)

	// Unknown deliverable.
	err = s.TransitionDeliverable("tenant-a", "missing", types.StatusDeclared, types.StatusShipped)
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestMarkRequirement(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.InsertDeliverable(deliverable("d1")))

	d, err := s.MarkRequirement("tenant-a", "d1", "review", time.Now().UTC())
	require.NoError(t, err)
	assert.Contains(t, d.MarkedRequirements, "review")

	// Marking twice keeps the first timestamp.
	first := d.MarkedRequirements["review"]
	d, err = s.MarkRequirement("tenant-a", "d1", "review", time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, first, d.MarkedRequirements["review"])

	// Undeclared requirement names are rejected.
	_, err = s.MarkRequirement("tenant-a", "d1", "unknown", time.Now().UTC())
	assert.ErrorIs(t, err, errdefs.ErrNotFound)

	// Marking after a terminal transition fails.
	require.NoError(t, s.TransitionDeliverable("tenant-a", "d1", types.StatusDeclared, types.StatusRejected))
	_, err = s.MarkRequirement("tenant-a", "d1", "review", time.Now().UTC())
	assert.ErrorIs(t, err, errdefs.ErrAlreadyRejected)
}

func TestCommitShipment(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.InsertDeliverable(deliverable("d1")))

	m := &types.ShipmentManifest{
		ManifestID:    "m1",
		DeliverableID: "d1",
		TenantID:      "tenant-a",
		RootTaskID:    "task-1",
		Destination:   "fs://out/run-1",
		ShippedAt:     time.Now().UTC(),
	}
	require.NoError(t, s.CommitShipment(m))

	got, err := s.GetDeliverable("tenant-a", "d1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusShipped, got.Status)

	stored, err := s.GetManifest("tenant-a", "m1")
	require.NoError(t, err)
	assert.Equal(t, "d1", stored.DeliverableID)

	// A second commit loses the CAS: the deliverable is no longer declared.
	m2 := *m
	m2.ManifestID = "m2"
	err = s.CommitShipment(&m2)
	assert.ErrorIs(t, err, errdefs.ErrRaceLost)

	// The losing manifest was rolled back with the failed transaction.
	_, err = s.GetManifest("tenant-a", "m2")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}
