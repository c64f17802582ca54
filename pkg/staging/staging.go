package staging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/depotgate/depotgate/pkg/blob"
	"github.com/depotgate/depotgate/pkg/errdefs"
	"github.com/depotgate/depotgate/pkg/events"
	"github.com/depotgate/depotgate/pkg/log"
	"github.com/depotgate/depotgate/pkg/metastore"
	"github.com/depotgate/depotgate/pkg/metrics"
	"github.com/depotgate/depotgate/pkg/receipts"
	"github.com/depotgate/depotgate/pkg/sanitize"
	"github.com/depotgate/depotgate/pkg/types"
)

// Stager accepts artifact uploads, binds pointer metadata to stored bytes,
// and emits artifact_staged receipts.
type Stager struct {
	blobs    *blob.Registry
	meta     metastore.Store
	receipts receipts.Store
	broker   *events.Broker
	logger   zerolog.Logger
}

// NewStager wires the staging area.
func NewStager(blobs *blob.Registry, meta metastore.Store, rcpts receipts.Store, broker *events.Broker) *Stager {
	return &Stager{
		blobs:    blobs,
		meta:     meta,
		receipts: rcpts,
		broker:   broker,
		logger:   log.WithComponent("staging"),
	}
}

// stagedPayload is the artifact_staged receipt payload.
type stagedPayload struct {
	Pointer types.ArtifactPointer `json:"pointer"`
}

// Stage ingests one artifact: bytes to the active backend, pointer row to
// the metadata store, then the receipt. If the receipt append fails after
// the pointer insert committed, the pointer stays live and the call
// reports ReceiptWriteFailed.
func (s *Stager) Stage(ctx context.Context, tenantID, rootTaskID string, content io.Reader, mimeType string, role types.ArtifactRole, producedByReceiptID string) (*types.ArtifactPointer, error) {
	if err := sanitize.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}
	if err := sanitize.ValidateTaskID(rootTaskID); err != nil {
		return nil, err
	}
	if !types.ValidRole(role) {
		return nil, fmt.Errorf("artifact role %q: %w", role, errdefs.ErrInvalidIdentifier)
	}

	artifactID := uuid.NewString()
	backend := s.blobs.Active()

	location, size, hash, err := backend.Store(ctx, tenantID, rootTaskID, artifactID, content, mimeType)
	if err != nil {
		return nil, err
	}

	pointer := &types.ArtifactPointer{
		ArtifactID:          artifactID,
		TenantID:            tenantID,
		RootTaskID:          rootTaskID,
		Location:            location,
		SizeBytes:           size,
		MimeType:            mimeType,
		ContentHash:         hash,
		Role:                role,
		ProducedByReceiptID: producedByReceiptID,
		CreatedAt:           time.Now().UTC(),
	}

	if err := s.meta.InsertPointer(pointer); err != nil {
		// Best-effort cleanup of the stored bytes.
		if derr := backend.Delete(ctx, location); derr != nil {
			s.logger.Warn().Err(derr).Str("location", location).Msg("orphaned bytes after pointer conflict")
		}
		return nil, err
	}

	payload, _ := json.Marshal(stagedPayload{Pointer: *pointer})
	receipt := &types.Receipt{
		ReceiptID:         uuid.NewString(),
		TenantID:          tenantID,
		RootTaskID:        rootTaskID,
		Kind:              types.ReceiptArtifactStaged,
		Payload:           payload,
		CausedByReceiptID: producedByReceiptID,
		EmittedAt:         time.Now().UTC(),
	}
	if err := s.receipts.Append(receipt); err != nil {
		// The pointer is committed and stays live; only the receipt is lost.
		metrics.ReceiptWriteFailures.Inc()
		s.logger.Error().Err(err).Str("artifact_id", artifactID).Msg("staged receipt lost")
		return nil, fmt.Errorf("artifact %s staged but receipt lost: %w", artifactID, errdefs.ErrReceiptWriteFailed)
	}

	metrics.ArtifactsStagedTotal.WithLabelValues(string(role)).Inc()
	metrics.StagedBytesTotal.Add(float64(size))
	metrics.ReceiptsAppendedTotal.WithLabelValues(string(types.ReceiptArtifactStaged)).Inc()

	s.broker.Publish(&events.Event{
		ID:         uuid.NewString(),
		Type:       events.EventArtifactStaged,
		TenantID:   tenantID,
		RootTaskID: rootTaskID,
		Message:    "artifact staged",
		Metadata: map[string]string{
			"artifact_id": artifactID,
			"role":        string(role),
			"receipt_id":  receipt.ReceiptID,
		},
	})

	s.logger.Info().
		Str("tenant_id", tenantID).
		Str("root_task_id", rootTaskID).
		Str("artifact_id", artifactID).
		Int64("size_bytes", size).
		Str("role", string(role)).
		Msg("artifact staged")

	return pointer, nil
}

// List returns the task's live pointers, newest first.
func (s *Stager) List(ctx context.Context, tenantID, rootTaskID string) ([]*types.ArtifactPointer, error) {
	if err := sanitize.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}
	if err := sanitize.ValidateTaskID(rootTaskID); err != nil {
		return nil, err
	}
	return s.meta.ListLivePointers(tenantID, rootTaskID)
}

// Get returns one pointer by artifact id.
func (s *Stager) Get(ctx context.Context, tenantID, artifactID string) (*types.ArtifactPointer, error) {
	return s.meta.GetPointer(tenantID, artifactID)
}

// GetContent opens the byte stream behind a pointer. The caller closes it.
func (s *Stager) GetContent(ctx context.Context, tenantID, artifactID string) (io.ReadCloser, *types.ArtifactPointer, error) {
	pointer, err := s.meta.GetPointer(tenantID, artifactID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Retrieve(ctx, pointer.Location)
	if err != nil {
		return nil, nil, err
	}
	return rc, pointer, nil
}
