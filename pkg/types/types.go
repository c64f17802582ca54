package types

import (
	"encoding/json"
	"time"
)

// ArtifactRole tags what an artifact is for. The vocabulary is closed;
// content is never inspected to infer a role.
type ArtifactRole string

const (
	RoleFinalOutput ArtifactRole = "final_output"
	RoleSupporting  ArtifactRole = "supporting"
	RolePlan        ArtifactRole = "plan"
	RoleLog         ArtifactRole = "log"
	RoleOther       ArtifactRole = "other"
)

// ValidRole reports whether r is in the closed role vocabulary.
func ValidRole(r ArtifactRole) bool {
	switch r {
	case RoleFinalOutput, RoleSupporting, RolePlan, RoleLog, RoleOther:
		return true
	}
	return false
}

// ArtifactPointer is the public identity of a stored payload. The bytes
// themselves live behind Location; ContentHash and SizeBytes are immutable
// once set.
type ArtifactPointer struct {
	ArtifactID          string       `json:"artifact_id"`
	TenantID            string       `json:"tenant_id"`
	RootTaskID          string       `json:"root_task_id"`
	Location            string       `json:"location"`
	SizeBytes           int64        `json:"size_bytes"`
	MimeType            string       `json:"mime_type"`
	ContentHash         string       `json:"content_hash"`
	Role                ArtifactRole `json:"artifact_role"`
	ProducedByReceiptID string       `json:"produced_by_receipt_id,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`

	// Soft-delete state. A pointer is live iff PurgedAt is nil.
	PurgedAt   *time.Time `json:"purged_at,omitempty"`
	PurgeAfter *time.Time `json:"purge_after,omitempty"`
}

// Live reports whether the pointer has not been purged.
func (p *ArtifactPointer) Live() bool {
	return p.PurgedAt == nil
}

// DeliverableStatus is the deliverable state machine. Transitions are
// monotonic: declared → shipped or declared → rejected, both terminal.
type DeliverableStatus string

const (
	StatusDeclared DeliverableStatus = "declared"
	StatusShipped  DeliverableStatus = "shipped"
	StatusRejected DeliverableStatus = "rejected"
)

// DeliverableSpec declares what must be present before the bundle may leave.
type DeliverableSpec struct {
	ArtifactIDs         []string       `json:"artifact_ids,omitempty"`
	ArtifactRoles       []ArtifactRole `json:"artifact_roles,omitempty"`
	Requirements        []string       `json:"requirements,omitempty"`
	ShippingDestination string         `json:"shipping_destination"`
}

// Empty reports whether the spec constrains nothing beyond the destination.
func (s *DeliverableSpec) Empty() bool {
	return len(s.ArtifactIDs) == 0 && len(s.ArtifactRoles) == 0 && len(s.Requirements) == 0
}

// Deliverable is a declared outbound contract for a task.
type Deliverable struct {
	DeliverableID string            `json:"deliverable_id"`
	TenantID      string            `json:"tenant_id"`
	RootTaskID    string            `json:"root_task_id"`
	Spec          DeliverableSpec   `json:"spec"`
	Status        DeliverableStatus `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`

	// MarkedRequirements records the explicit out-of-band requirement marks,
	// keyed by requirement name.
	MarkedRequirements map[string]time.Time `json:"marked_requirements,omitempty"`
}

// ClosureReport is the result of evaluating a deliverable contract against
// the live artifact set of its task.
type ClosureReport struct {
	Satisfied           bool              `json:"satisfied"`
	MissingIDs          []string          `json:"missing_ids,omitempty"`
	MissingRoles        []ArtifactRole    `json:"missing_roles,omitempty"`
	MissingRequirements []string          `json:"missing_requirements,omitempty"`
	MatchedPointers     []ArtifactPointer `json:"matched_pointers,omitempty"`
}

// ShipmentManifest is the frozen record of one successful shipment.
type ShipmentManifest struct {
	ManifestID    string            `json:"manifest_id"`
	DeliverableID string            `json:"deliverable_id"`
	TenantID      string            `json:"tenant_id"`
	RootTaskID    string            `json:"root_task_id"`
	Pointers      []ArtifactPointer `json:"artifact_pointers"`
	Destination   string            `json:"destination"`
	ShippedAt     time.Time         `json:"shipped_at"`
}

// ReceiptKind identifies the event class of a receipt.
type ReceiptKind string

const (
	ReceiptArtifactStaged   ReceiptKind = "artifact_staged"
	ReceiptShipmentComplete ReceiptKind = "shipment_complete"
	ReceiptShipmentRejected ReceiptKind = "shipment_rejected"
	ReceiptPurged           ReceiptKind = "purged"
)

// Receipt is an immutable causal event record. Receipts are append-only;
// no update or delete path exists anywhere in the system.
type Receipt struct {
	ReceiptID         string          `json:"receipt_id"`
	TenantID          string          `json:"tenant_id"`
	RootTaskID        string          `json:"root_task_id"`
	Kind              ReceiptKind     `json:"kind"`
	Payload           json.RawMessage `json:"payload"`
	CausedByReceiptID string          `json:"caused_by_receipt_id,omitempty"`
	EmittedAt         time.Time       `json:"emitted_at"`
}

// PurgePolicy selects how artifact bytes are reclaimed.
type PurgePolicy string

const (
	PurgeImmediate PurgePolicy = "immediate"
	PurgeRetain24h PurgePolicy = "retain_24h"
	PurgeRetain7d  PurgePolicy = "retain_7d"
	PurgeManual    PurgePolicy = "manual"
)

// PurgePolicyVersion stamps purge receipts so policy semantics can evolve.
const PurgePolicyVersion = 1

// RetainDuration returns the deferred-deletion window for retention
// policies and false for policies with no window.
func (p PurgePolicy) RetainDuration() (time.Duration, bool) {
	switch p {
	case PurgeRetain24h:
		return 24 * time.Hour, true
	case PurgeRetain7d:
		return 7 * 24 * time.Hour, true
	}
	return 0, false
}

// ValidPurgePolicy reports whether p is a recognized policy.
func ValidPurgePolicy(p PurgePolicy) bool {
	switch p {
	case PurgeImmediate, PurgeRetain24h, PurgeRetain7d, PurgeManual:
		return true
	}
	return false
}
