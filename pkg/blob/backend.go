package blob

import (
	"context"
	"fmt"
	"io"

	"github.com/depotgate/depotgate/pkg/errdefs"
	"github.com/depotgate/depotgate/pkg/sanitize"
)

// Backend stores and retrieves opaque byte payloads addressed by location
// URI. Implementations must be safe for concurrent use; a given artifact id
// is written exactly once.
type Backend interface {
	// Store persists the stream under the task namespace and returns the
	// location URI, the stored length, and the hex SHA-256 of the bytes.
	Store(ctx context.Context, tenantID, rootTaskID, artifactID string, content io.Reader, mimeType string) (location string, sizeBytes int64, contentHash string, err error)

	// Retrieve opens the payload at location. The caller closes the stream.
	Retrieve(ctx context.Context, location string) (io.ReadCloser, error)

	// Delete removes the payload at location. Deleting an absent payload is
	// not an error.
	Delete(ctx context.Context, location string) error

	// Exists reports whether a payload is present at location.
	Exists(ctx context.Context, location string) (bool, error)

	// Scheme returns the location scheme this backend serves.
	Scheme() string
}

// Registry dispatches by location scheme. It is built once at the
// composition root; there is no runtime registration.
type Registry struct {
	backends map[string]Backend
	active   Backend
}

// NewRegistry builds a registry from the given backends. The first backend
// is the active one used for new writes.
func NewRegistry(backends ...Backend) (*Registry, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("no storage backends configured")
	}
	m := make(map[string]Backend, len(backends))
	for _, b := range backends {
		if _, dup := m[b.Scheme()]; dup {
			return nil, fmt.Errorf("duplicate storage backend for scheme %q", b.Scheme())
		}
		m[b.Scheme()] = b
	}
	return &Registry{backends: m, active: backends[0]}, nil
}

// Active returns the backend new artifacts are written to.
func (r *Registry) Active() Backend {
	return r.active
}

// For returns the backend serving the location's scheme.
func (r *Registry) For(location string) (Backend, error) {
	scheme, _, err := sanitize.ParseLocation(location)
	if err != nil {
		return nil, err
	}
	b, ok := r.backends[scheme]
	if !ok {
		return nil, fmt.Errorf("scheme %q: %w", scheme, errdefs.ErrInvalidLocation)
	}
	return b, nil
}

// Retrieve dispatches retrieval by location scheme.
func (r *Registry) Retrieve(ctx context.Context, location string) (io.ReadCloser, error) {
	b, err := r.For(location)
	if err != nil {
		return nil, err
	}
	return b.Retrieve(ctx, location)
}

// Delete dispatches deletion by location scheme.
func (r *Registry) Delete(ctx context.Context, location string) error {
	b, err := r.For(location)
	if err != nil {
		return err
	}
	return b.Delete(ctx, location)
}
