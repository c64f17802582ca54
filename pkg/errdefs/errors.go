package errdefs

import (
	"context"
	"errors"
)

// Sentinel errors - Identifiers and locations
var (
	ErrInvalidIdentifier = errors.New("depotgate: invalid identifier")
	ErrInvalidLocation   = errors.New("depotgate: invalid location")
	ErrPathViolation     = errors.New("depotgate: path escapes base directory")
	ErrInvalidSpec       = errors.New("depotgate: invalid deliverable spec")
)

// Sentinel errors - Lookup
var (
	ErrNotFound        = errors.New("depotgate: not found")
	ErrArtifactMissing = errors.New("depotgate: artifact bytes missing")
)

// Sentinel errors - Staging
var (
	ErrArtifactTooLarge = errors.New("depotgate: artifact exceeds size limit")
	ErrStorageFailure   = errors.New("depotgate: byte persistence failed")
	ErrPointerConflict  = errors.New("depotgate: artifact id already bound")
)

// Sentinel errors - Shipping
var (
	ErrClosureNotSatisfied   = errors.New("depotgate: closure not satisfied")
	ErrAlreadyShipped        = errors.New("depotgate: deliverable already shipped")
	ErrAlreadyRejected       = errors.New("depotgate: deliverable already rejected")
	ErrRaceLost              = errors.New("depotgate: concurrent ship won the transition")
	ErrSinkTransportFailure  = errors.New("depotgate: sink transport failure")
	ErrUnknownSink           = errors.New("depotgate: no sink registered for scheme")
	ErrManifestPersistFailed = errors.New("depotgate: sink succeeded but manifest persist failed")
	ErrReceiptWriteFailed    = errors.New("depotgate: receipt could not be appended")
)

// kinds maps sentinels to the stable kind strings surfaced to callers.
var kinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidIdentifier, "InvalidIdentifier"},
	{ErrInvalidLocation, "InvalidLocation"},
	{ErrPathViolation, "PathViolation"},
	{ErrInvalidSpec, "InvalidSpec"},
	{ErrNotFound, "NotFound"},
	{ErrArtifactMissing, "ArtifactMissing"},
	{ErrArtifactTooLarge, "ArtifactTooLarge"},
	{ErrStorageFailure, "StorageFailure"},
	{ErrPointerConflict, "StorageFailure"},
	{ErrClosureNotSatisfied, "ClosureNotSatisfied"},
	{ErrAlreadyShipped, "AlreadyShipped"},
	{ErrAlreadyRejected, "AlreadyRejected"},
	{ErrRaceLost, "RaceLost"},
	{ErrSinkTransportFailure, "SinkTransportFailure"},
	{ErrUnknownSink, "UnknownSink"},
	{ErrManifestPersistFailed, "ManifestPersistFailed"},
	{ErrReceiptWriteFailed, "ReceiptWriteFailed"},
}

// KindOf returns the stable error kind for err, or "Internal" when err does
// not wrap any DepotGate sentinel. Context deadline errors map to
// "DeadlineExceeded" so per-call deadlines surface uniformly.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "DeadlineExceeded"
	}
	return "Internal"
}
