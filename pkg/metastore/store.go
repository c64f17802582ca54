package metastore

import (
	"time"

	"github.com/depotgate/depotgate/pkg/types"
)

// Store is the durable metadata contract: artifact pointers, deliverable
// contracts, and shipment manifests. All writes are transactional.
type Store interface {
	// Pointers
	InsertPointer(p *types.ArtifactPointer) error
	GetPointer(tenantID, artifactID string) (*types.ArtifactPointer, error)
	ListLivePointers(tenantID, rootTaskID string) ([]*types.ArtifactPointer, error)

	// MarkPurged soft-deletes the named pointers (all live pointers of the
	// task when artifactIDs is nil) and returns the rows it touched.
	// purgeAfter, when set, records a deferred byte-deletion deadline.
	MarkPurged(tenantID, rootTaskID string, artifactIDs []string, purgedAt time.Time, purgeAfter *time.Time) ([]*types.ArtifactPointer, error)

	// Deliverables
	InsertDeliverable(d *types.Deliverable) error
	GetDeliverable(tenantID, deliverableID string) (*types.Deliverable, error)

	// MarkRequirement records an explicit requirement mark. The requirement
	// must be declared in the spec and the deliverable still declared.
	MarkRequirement(tenantID, deliverableID, name string, at time.Time) (*types.Deliverable, error)

	// TransitionDeliverable is a compare-and-swap on the status column.
	TransitionDeliverable(tenantID, deliverableID string, from, to types.DeliverableStatus) error

	// CommitShipment groups the declared→shipped CAS and the manifest
	// insert in a single transaction.
	CommitShipment(m *types.ShipmentManifest) error

	// Manifests
	GetManifest(tenantID, manifestID string) (*types.ShipmentManifest, error)

	// Utility
	Close() error
}
