package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/depotgate/depotgate/pkg/errdefs"
	"github.com/depotgate/depotgate/pkg/types"
)

// Header names carrying stage metadata alongside the raw payload body.
const (
	headerArtifactRole = "X-Artifact-Role"
	headerProducedBy   = "X-Produced-By-Receipt"
)

func (s *Server) handleStage(w http.ResponseWriter, r *http.Request) {
	task := r.PathValue("task")
	role := types.ArtifactRole(r.Header.Get(headerArtifactRole))
	if role == "" {
		role = types.RoleOther
	}
	mimeType := r.Header.Get("Content-Type")
	producedBy := r.Header.Get(headerProducedBy)

	pointer, err := s.stager.Stage(r.Context(), s.tenantID, task, r.Body, mimeType, role, producedBy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pointer)
}

func (s *Server) handleStageList(w http.ResponseWriter, r *http.Request) {
	pointers, err := s.stager.List(r.Context(), s.tenantID, r.PathValue("task"))
	if err != nil {
		writeError(w, err)
		return
	}
	if pointers == nil {
		pointers = []*types.ArtifactPointer{}
	}
	writeJSON(w, http.StatusOK, pointers)
}

func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	pointer, err := s.stager.Get(r.Context(), s.tenantID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pointer)
}

func (s *Server) handleGetContent(w http.ResponseWriter, r *http.Request) {
	rc, pointer, err := s.stager.GetContent(r.Context(), s.tenantID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer rc.Close()

	contentType := pointer.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", pointer.SizeBytes))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}

func (s *Server) handleDeclare(w http.ResponseWriter, r *http.Request) {
	var spec types.DeliverableSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, fmt.Errorf("decode spec: %w", errdefs.ErrInvalidSpec))
		return
	}
	id, err := s.deliverables.Declare(r.Context(), s.tenantID, r.PathValue("task"), spec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"deliverable_id": id})
}

func (s *Server) handleCheckClosure(w http.ResponseWriter, r *http.Request) {
	report, err := s.deliverables.CheckClosure(r.Context(), s.tenantID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleMarkRequirement(w http.ResponseWriter, r *http.Request) {
	err := s.deliverables.MarkRequirement(r.Context(), s.tenantID, r.PathValue("id"), r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleShip(w http.ResponseWriter, r *http.Request) {
	manifest, err := s.shipper.Ship(r.Context(), s.tenantID, r.PathValue("task"), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, manifest)
}

type purgeRequest struct {
	Policy      types.PurgePolicy `json:"policy"`
	ArtifactIDs []string          `json:"artifact_ids,omitempty"`
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	var req purgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("decode purge request: %w", errdefs.ErrInvalidSpec))
		return
	}
	receipt, err := s.shipper.Purge(r.Context(), s.tenantID, r.PathValue("task"), req.Policy, req.ArtifactIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.shipper.ListReceipts(r.Context(), s.tenantID, r.PathValue("task"))
	if err != nil {
		writeError(w, err)
		return
	}
	if receipts == nil {
		receipts = []*types.Receipt{}
	}
	writeJSON(w, http.StatusOK, receipts)
}
