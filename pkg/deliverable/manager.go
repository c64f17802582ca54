package deliverable

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/depotgate/depotgate/pkg/errdefs"
	"github.com/depotgate/depotgate/pkg/log"
	"github.com/depotgate/depotgate/pkg/metastore"
	"github.com/depotgate/depotgate/pkg/sanitize"
	"github.com/depotgate/depotgate/pkg/types"
)

// Manager declares deliverable contracts and computes closure against the
// current live artifact set.
type Manager struct {
	meta   metastore.Store
	logger zerolog.Logger
}

// NewManager wires the deliverable manager.
func NewManager(meta metastore.Store) *Manager {
	return &Manager{
		meta:   meta,
		logger: log.WithComponent("deliverable"),
	}
}

// Declare validates the spec and inserts a deliverable with status
// declared. An empty spec is allowed (closure will be trivially satisfied)
// but logged.
func (m *Manager) Declare(ctx context.Context, tenantID, rootTaskID string, spec types.DeliverableSpec) (string, error) {
	if err := sanitize.ValidateTenantID(tenantID); err != nil {
		return "", err
	}
	if err := sanitize.ValidateTaskID(rootTaskID); err != nil {
		return "", err
	}
	if spec.ShippingDestination == "" {
		return "", fmt.Errorf("shipping_destination is required: %w", errdefs.ErrInvalidSpec)
	}
	if _, _, err := sanitize.ParseLocation(spec.ShippingDestination); err != nil {
		return "", fmt.Errorf("shipping_destination: %w", errdefs.ErrInvalidSpec)
	}
	for _, role := range spec.ArtifactRoles {
		if !types.ValidRole(role) {
			return "", fmt.Errorf("artifact role %q: %w", role, errdefs.ErrInvalidSpec)
		}
	}
	if spec.Empty() {
		m.logger.Warn().
			Str("tenant_id", tenantID).
			Str("root_task_id", rootTaskID).
			Msg("deliverable declared with empty spec, closure is trivially satisfied")
	}

	d := &types.Deliverable{
		DeliverableID: uuid.NewString(),
		TenantID:      tenantID,
		RootTaskID:    rootTaskID,
		Spec:          spec,
		Status:        types.StatusDeclared,
		CreatedAt:     time.Now().UTC(),
	}
	if err := m.meta.InsertDeliverable(d); err != nil {
		return "", err
	}

	m.logger.Info().
		Str("tenant_id", tenantID).
		Str("root_task_id", rootTaskID).
		Str("deliverable_id", d.DeliverableID).
		Str("destination", spec.ShippingDestination).
		Msg("deliverable declared")
	return d.DeliverableID, nil
}

// Get loads one deliverable.
func (m *Manager) Get(ctx context.Context, tenantID, deliverableID string) (*types.Deliverable, error) {
	return m.meta.GetDeliverable(tenantID, deliverableID)
}

// MarkRequirement records an explicit out-of-band requirement mark.
// Marking is only legal while the deliverable is declared; marking the
// same name twice is a no-op.
func (m *Manager) MarkRequirement(ctx context.Context, tenantID, deliverableID, name string) error {
	if name == "" {
		return fmt.Errorf("requirement name is empty: %w", errdefs.ErrInvalidSpec)
	}
	_, err := m.meta.MarkRequirement(tenantID, deliverableID, name, time.Now().UTC())
	if err != nil {
		return err
	}
	m.logger.Info().
		Str("deliverable_id", deliverableID).
		Str("requirement", name).
		Msg("requirement marked")
	return nil
}

// CheckClosure evaluates the deliverable contract against the live pointer
// set of its task. The computation is read-only and stable for fixed
// inputs.
func (m *Manager) CheckClosure(ctx context.Context, tenantID, deliverableID string) (*types.ClosureReport, error) {
	d, err := m.meta.GetDeliverable(tenantID, deliverableID)
	if err != nil {
		return nil, err
	}
	return m.closureOf(d)
}

// ClosureOf evaluates an already-loaded deliverable. Shipping uses this to
// avoid re-reading the row it just validated.
func (m *Manager) ClosureOf(d *types.Deliverable) (*types.ClosureReport, error) {
	return m.closureOf(d)
}

func (m *Manager) closureOf(d *types.Deliverable) (*types.ClosureReport, error) {
	live, err := m.meta.ListLivePointers(d.TenantID, d.RootTaskID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*types.ArtifactPointer, len(live))
	byRole := make(map[types.ArtifactRole][]*types.ArtifactPointer)
	for _, p := range live {
		byID[p.ArtifactID] = p
		byRole[p.Role] = append(byRole[p.Role], p)
	}

	report := &types.ClosureReport{}
	matched := make(map[string]*types.ArtifactPointer)

	for _, id := range d.Spec.ArtifactIDs {
		if p, ok := byID[id]; ok {
			matched[id] = p
		} else {
			report.MissingIDs = append(report.MissingIDs, id)
		}
	}
	for _, role := range d.Spec.ArtifactRoles {
		carriers := byRole[role]
		if len(carriers) == 0 {
			report.MissingRoles = append(report.MissingRoles, role)
			continue
		}
		for _, p := range carriers {
			matched[p.ArtifactID] = p
		}
	}
	for _, name := range d.Spec.Requirements {
		if _, ok := d.MarkedRequirements[name]; !ok {
			report.MissingRequirements = append(report.MissingRequirements, name)
		}
	}

	// Preserve newest-first order from the live listing.
	for _, p := range live {
		if _, ok := matched[p.ArtifactID]; ok {
			report.MatchedPointers = append(report.MatchedPointers, *p)
		}
	}

	report.Satisfied = len(report.MissingIDs) == 0 &&
		len(report.MissingRoles) == 0 &&
		len(report.MissingRequirements) == 0
	return report, nil
}
