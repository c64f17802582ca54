package errdefs

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"sentinel directly", ErrNotFound, "NotFound"},
		{"wrapped once", fmt.Errorf("artifact a1: %w", ErrArtifactMissing), "ArtifactMissing"},
		{"wrapped twice", fmt.Errorf("ship: %w", fmt.Errorf("deliverable d1: %w", ErrAlreadyShipped)), "AlreadyShipped"},
		{"pointer conflict surfaces as storage failure", ErrPointerConflict, "StorageFailure"},
		{"deadline", context.DeadlineExceeded, "DeadlineExceeded"},
		{"canceled", context.Canceled, "DeadlineExceeded"},
		{"unknown", errors.New("boom"), "Internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}
