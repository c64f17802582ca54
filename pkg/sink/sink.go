package sink

import (
	"context"
	"fmt"
	"io"

	"github.com/depotgate/depotgate/pkg/errdefs"
	"github.com/depotgate/depotgate/pkg/sanitize"
	"github.com/depotgate/depotgate/pkg/types"
)

// ContentGetter returns the byte stream for one artifact. Sinks call it
// lazily, one artifact at a time, and close the returned stream.
type ContentGetter func(ctx context.Context, artifactID string) (io.ReadCloser, error)

// Sink transfers a set of artifacts plus their manifest to an external
// destination. Sinks never retry; transient failures surface to the caller.
type Sink interface {
	// Ship writes every pointer's bytes and the manifest document to the
	// destination. The manifest is already frozen; sinks must not mutate it.
	Ship(ctx context.Context, pointers []types.ArtifactPointer, destination string, manifest *types.ShipmentManifest, getContent ContentGetter) error

	// Schemes returns the destination schemes this sink serves.
	Schemes() []string
}

// Registry selects a sink by destination scheme. Built once at the
// composition root.
type Registry struct {
	sinks map[string]Sink
}

// NewRegistry builds a registry from the given sinks.
func NewRegistry(sinks ...Sink) (*Registry, error) {
	m := make(map[string]Sink)
	for _, s := range sinks {
		for _, scheme := range s.Schemes() {
			if _, dup := m[scheme]; dup {
				return nil, fmt.Errorf("duplicate sink for scheme %q", scheme)
			}
			m[scheme] = s
		}
	}
	return &Registry{sinks: m}, nil
}

// For returns the sink serving the destination's scheme.
func (r *Registry) For(destination string) (Sink, error) {
	scheme, _, err := sanitize.ParseLocation(destination)
	if err != nil {
		return nil, fmt.Errorf("destination %q: %w", destination, errdefs.ErrUnknownSink)
	}
	s, ok := r.sinks[scheme]
	if !ok {
		return nil, fmt.Errorf("destination scheme %q: %w", scheme, errdefs.ErrUnknownSink)
	}
	return s, nil
}
