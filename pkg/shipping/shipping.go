package shipping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/depotgate/depotgate/pkg/blob"
	"github.com/depotgate/depotgate/pkg/deliverable"
	"github.com/depotgate/depotgate/pkg/errdefs"
	"github.com/depotgate/depotgate/pkg/events"
	"github.com/depotgate/depotgate/pkg/log"
	"github.com/depotgate/depotgate/pkg/metastore"
	"github.com/depotgate/depotgate/pkg/metrics"
	"github.com/depotgate/depotgate/pkg/receipts"
	"github.com/depotgate/depotgate/pkg/sanitize"
	"github.com/depotgate/depotgate/pkg/sink"
	"github.com/depotgate/depotgate/pkg/types"
)

// Service ships deliverables (gated by closure) and purges staged
// artifacts, orchestrating blobs, sinks, metadata and receipts under the
// partial-failure rules of the shipping state machine.
type Service struct {
	blobs        *blob.Registry
	sinks        *sink.Registry
	meta         metastore.Store
	receipts     receipts.Store
	deliverables *deliverable.Manager
	broker       *events.Broker
	logger       zerolog.Logger
}

// NewService wires the shipping service.
func NewService(blobs *blob.Registry, sinks *sink.Registry, meta metastore.Store, rcpts receipts.Store, deliverables *deliverable.Manager, broker *events.Broker) *Service {
	return &Service{
		blobs:        blobs,
		sinks:        sinks,
		meta:         meta,
		receipts:     rcpts,
		deliverables: deliverables,
		broker:       broker,
		logger:       log.WithComponent("shipping"),
	}
}

type rejectedPayload struct {
	DeliverableID       string               `json:"deliverable_id"`
	MissingIDs          []string             `json:"missing_ids,omitempty"`
	MissingRoles        []types.ArtifactRole `json:"missing_roles,omitempty"`
	MissingRequirements []string             `json:"missing_requirements,omitempty"`
}

type completePayload struct {
	ManifestID    string   `json:"manifest_id"`
	DeliverableID string   `json:"deliverable_id"`
	ArtifactIDs   []string `json:"artifact_ids"`
}

type purgedPayload struct {
	Policy        types.PurgePolicy `json:"policy"`
	PolicyVersion int               `json:"policy_version"`
	ArtifactIDs   []string          `json:"artifact_ids"`
}

// Ship verifies closure and, if satisfied, transfers the matched artifacts
// to the deliverable's destination.
//
// Failure ordering: a sink failure leaves all state unchanged and emits no
// receipt — the deliverable stays declared and may be re-attempted. A
// commit failure after the sink succeeded reports ManifestPersistFailed
// and also leaves state unchanged (at-least-once: the sink has already
// externalized bytes). A receipt failure after the commit returns the
// manifest together with ReceiptWriteFailed — the shipment is committed.
func (s *Service) Ship(ctx context.Context, tenantID, rootTaskID, deliverableID string) (*types.ShipmentManifest, error) {
	start := time.Now()

	d, err := s.meta.GetDeliverable(tenantID, deliverableID)
	if err != nil {
		return nil, err
	}
	if d.RootTaskID != rootTaskID {
		return nil, fmt.Errorf("deliverable %s does not belong to task %s: %w", deliverableID, rootTaskID, errdefs.ErrNotFound)
	}
	switch d.Status {
	case types.StatusShipped:
		return nil, fmt.Errorf("deliverable %s: %w", deliverableID, errdefs.ErrAlreadyShipped)
	case types.StatusRejected:
		return nil, fmt.Errorf("deliverable %s: %w", deliverableID, errdefs.ErrAlreadyRejected)
	}

	report, err := s.deliverables.ClosureOf(d)
	if err != nil {
		return nil, err
	}
	if !report.Satisfied {
		return nil, s.reject(ctx, d, report)
	}

	// Freeze the matched pointers; everything downstream works off this
	// snapshot.
	pointers := report.MatchedPointers

	snk, err := s.sinks.For(d.Spec.ShippingDestination)
	if err != nil {
		return nil, err
	}

	manifest := &types.ShipmentManifest{
		ManifestID:    uuid.NewString(),
		DeliverableID: d.DeliverableID,
		TenantID:      tenantID,
		RootTaskID:    rootTaskID,
		Pointers:      pointers,
		Destination:   d.Spec.ShippingDestination,
		ShippedAt:     time.Now().UTC(),
	}

	getContent := func(ctx context.Context, artifactID string) (io.ReadCloser, error) {
		for _, p := range pointers {
			if p.ArtifactID == artifactID {
				return s.blobs.Retrieve(ctx, p.Location)
			}
		}
		return nil, fmt.Errorf("artifact %s not in shipment snapshot: %w", artifactID, errdefs.ErrArtifactMissing)
	}

	if err := snk.Ship(ctx, pointers, d.Spec.ShippingDestination, manifest, getContent); err != nil {
		// No state change, no receipt; the deliverable stays declared.
		metrics.ShipmentsTotal.WithLabelValues("sink_failure").Inc()
		return nil, err
	}

	if err := s.meta.CommitShipment(manifest); err != nil {
		if errors.Is(err, errdefs.ErrRaceLost) || errors.Is(err, errdefs.ErrNotFound) {
			metrics.ShipmentsTotal.WithLabelValues("race_lost").Inc()
			return nil, err
		}
		metrics.ShipmentsTotal.WithLabelValues("commit_failure").Inc()
		return nil, fmt.Errorf("shipment %s externalized but not recorded: %w", manifest.ManifestID, errdefs.ErrManifestPersistFailed)
	}

	metrics.ShipmentsTotal.WithLabelValues("complete").Inc()
	metrics.ShipmentDuration.Observe(time.Since(start).Seconds())

	artifactIDs := make([]string, len(pointers))
	for i, p := range pointers {
		artifactIDs[i] = p.ArtifactID
	}
	payload, _ := json.Marshal(completePayload{
		ManifestID:    manifest.ManifestID,
		DeliverableID: d.DeliverableID,
		ArtifactIDs:   artifactIDs,
	})
	receipt := &types.Receipt{
		ReceiptID:  uuid.NewString(),
		TenantID:   tenantID,
		RootTaskID: rootTaskID,
		Kind:       types.ReceiptShipmentComplete,
		Payload:    payload,
		EmittedAt:  time.Now().UTC(),
	}
	if err := s.receipts.Append(receipt); err != nil {
		metrics.ReceiptWriteFailures.Inc()
		s.logger.Error().Err(err).Str("manifest_id", manifest.ManifestID).Msg("completion receipt lost")
		return manifest, fmt.Errorf("shipment %s committed but receipt lost: %w", manifest.ManifestID, errdefs.ErrReceiptWriteFailed)
	}
	metrics.ReceiptsAppendedTotal.WithLabelValues(string(types.ReceiptShipmentComplete)).Inc()

	s.broker.Publish(&events.Event{
		ID:         uuid.NewString(),
		Type:       events.EventShipmentComplete,
		TenantID:   tenantID,
		RootTaskID: rootTaskID,
		Message:    "shipment complete",
		Metadata: map[string]string{
			"deliverable_id": d.DeliverableID,
			"manifest_id":    manifest.ManifestID,
			"destination":    manifest.Destination,
		},
	})

	s.logger.Info().
		Str("tenant_id", tenantID).
		Str("root_task_id", rootTaskID).
		Str("deliverable_id", d.DeliverableID).
		Str("manifest_id", manifest.ManifestID).
		Int("artifacts", len(pointers)).
		Msg("shipment complete")

	return manifest, nil
}

// reject transitions the deliverable to rejected and emits the terminal
// rejection receipt. Always returns ClosureNotSatisfied (with the CAS
// re-entry error instead when a concurrent call already terminated the
// deliverable).
func (s *Service) reject(ctx context.Context, d *types.Deliverable, report *types.ClosureReport) error {
	if err := s.meta.TransitionDeliverable(d.TenantID, d.DeliverableID, types.StatusDeclared, types.StatusRejected); err != nil {
		return err
	}

	payload, _ := json.Marshal(rejectedPayload{
		DeliverableID:       d.DeliverableID,
		MissingIDs:          report.MissingIDs,
		MissingRoles:        report.MissingRoles,
		MissingRequirements: report.MissingRequirements,
	})
	receipt := &types.Receipt{
		ReceiptID:  uuid.NewString(),
		TenantID:   d.TenantID,
		RootTaskID: d.RootTaskID,
		Kind:       types.ReceiptShipmentRejected,
		Payload:    payload,
		EmittedAt:  time.Now().UTC(),
	}
	if err := s.receipts.Append(receipt); err != nil {
		// The rejection is committed; the receipt loss is logged but the
		// caller still learns why shipping failed.
		metrics.ReceiptWriteFailures.Inc()
		s.logger.Error().Err(err).Str("deliverable_id", d.DeliverableID).Msg("rejection receipt lost")
	} else {
		metrics.ReceiptsAppendedTotal.WithLabelValues(string(types.ReceiptShipmentRejected)).Inc()
	}

	metrics.ShipmentsTotal.WithLabelValues("rejected").Inc()
	s.broker.Publish(&events.Event{
		ID:         uuid.NewString(),
		Type:       events.EventShipmentRejected,
		TenantID:   d.TenantID,
		RootTaskID: d.RootTaskID,
		Message:    "shipment rejected",
		Metadata:   map[string]string{"deliverable_id": d.DeliverableID},
	})

	s.logger.Info().
		Str("deliverable_id", d.DeliverableID).
		Strs("missing_ids", report.MissingIDs).
		Strs("missing_requirements", report.MissingRequirements).
		Msg("shipment rejected")

	return fmt.Errorf("deliverable %s: %w", d.DeliverableID, errdefs.ErrClosureNotSatisfied)
}

// Purge reclaims staged artifacts under the given policy and emits exactly
// one purged receipt per invocation.
func (s *Service) Purge(ctx context.Context, tenantID, rootTaskID string, policy types.PurgePolicy, artifactIDs []string) (*types.Receipt, error) {
	if err := sanitize.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}
	if err := sanitize.ValidateTaskID(rootTaskID); err != nil {
		return nil, err
	}
	if !types.ValidPurgePolicy(policy) {
		return nil, fmt.Errorf("purge policy %q: %w", policy, errdefs.ErrInvalidIdentifier)
	}

	now := time.Now().UTC()
	var affectedIDs []string

	switch policy {
	case types.PurgeImmediate:
		affected, err := s.meta.MarkPurged(tenantID, rootTaskID, artifactIDs, now, nil)
		if err != nil {
			return nil, err
		}
		for _, p := range affected {
			affectedIDs = append(affectedIDs, p.ArtifactID)
			// Byte-delete failures do not block the purge; leftovers are
			// orphans for the janitor.
			if err := s.blobs.Delete(ctx, p.Location); err != nil {
				s.logger.Warn().Err(err).Str("location", p.Location).Msg("purged bytes not deleted")
			}
		}

	case types.PurgeRetain24h, types.PurgeRetain7d:
		window, _ := policy.RetainDuration()
		purgeAfter := now.Add(window)
		affected, err := s.meta.MarkPurged(tenantID, rootTaskID, artifactIDs, now, &purgeAfter)
		if err != nil {
			return nil, err
		}
		for _, p := range affected {
			affectedIDs = append(affectedIDs, p.ArtifactID)
		}

	case types.PurgeManual:
		// Intent only: no pointer state change. The receipt records which
		// artifacts the caller had in scope.
		if artifactIDs != nil {
			affectedIDs = artifactIDs
		} else {
			live, err := s.meta.ListLivePointers(tenantID, rootTaskID)
			if err != nil {
				return nil, err
			}
			for _, p := range live {
				affectedIDs = append(affectedIDs, p.ArtifactID)
			}
		}
	}

	if affectedIDs == nil {
		affectedIDs = []string{}
	}
	payload, _ := json.Marshal(purgedPayload{
		Policy:        policy,
		PolicyVersion: types.PurgePolicyVersion,
		ArtifactIDs:   affectedIDs,
	})
	receipt := &types.Receipt{
		ReceiptID:  uuid.NewString(),
		TenantID:   tenantID,
		RootTaskID: rootTaskID,
		Kind:       types.ReceiptPurged,
		Payload:    payload,
		EmittedAt:  now,
	}
	if err := s.receipts.Append(receipt); err != nil {
		metrics.ReceiptWriteFailures.Inc()
		return nil, fmt.Errorf("purge executed but receipt lost: %w", errdefs.ErrReceiptWriteFailed)
	}
	metrics.ReceiptsAppendedTotal.WithLabelValues(string(types.ReceiptPurged)).Inc()
	metrics.PurgesTotal.WithLabelValues(string(policy)).Inc()

	s.broker.Publish(&events.Event{
		ID:         uuid.NewString(),
		Type:       events.EventPurgeExecuted,
		TenantID:   tenantID,
		RootTaskID: rootTaskID,
		Message:    "purge executed",
		Metadata: map[string]string{
			"policy":   string(policy),
			"affected": fmt.Sprintf("%d", len(affectedIDs)),
		},
	})

	s.logger.Info().
		Str("tenant_id", tenantID).
		Str("root_task_id", rootTaskID).
		Str("policy", string(policy)).
		Int("affected", len(affectedIDs)).
		Msg("purge executed")

	return receipt, nil
}

// ListReceipts returns a task's receipt trail, oldest first.
func (s *Service) ListReceipts(ctx context.Context, tenantID, rootTaskID string) ([]*types.Receipt, error) {
	if err := sanitize.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}
	if err := sanitize.ValidateTaskID(rootTaskID); err != nil {
		return nil, err
	}
	return s.receipts.ListByTask(tenantID, rootTaskID)
}
