package blob

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"github.com/depotgate/depotgate/pkg/errdefs"
	"github.com/depotgate/depotgate/pkg/sanitize"
)

// MemBackend keeps payloads in process memory. It backs tests and
// short-lived single-tenant deployments.
type MemBackend struct {
	mu       sync.RWMutex
	payloads map[string][]byte
	maxBytes int64
}

// NewMemBackend creates an in-memory backend. maxBytes caps a single
// artifact; zero means unlimited.
func NewMemBackend(maxBytes int64) *MemBackend {
	return &MemBackend{
		payloads: make(map[string][]byte),
		maxBytes: maxBytes,
	}
}

// Scheme returns "mem".
func (b *MemBackend) Scheme() string {
	return "mem"
}

// Store buffers the stream, enforcing the size cap while reading.
func (b *MemBackend) Store(ctx context.Context, tenantID, rootTaskID, artifactID string, content io.Reader, mimeType string) (string, int64, string, error) {
	limit := b.maxBytes
	var buf bytes.Buffer
	var reader io.Reader = content
	if limit > 0 {
		reader = io.LimitReader(content, limit+1)
	}
	n, err := buf.ReadFrom(reader)
	if err != nil {
		return "", 0, "", fmt.Errorf("read content: %w", errdefs.ErrStorageFailure)
	}
	if limit > 0 && n > limit {
		return "", 0, "", fmt.Errorf("artifact exceeds %d bytes: %w", limit, errdefs.ErrArtifactTooLarge)
	}

	location := "mem://" + sanitize.Component(tenantID) + "/" + sanitize.Component(rootTaskID) + "/" + artifactID
	sum := sha256.Sum256(buf.Bytes())

	b.mu.Lock()
	b.payloads[location] = buf.Bytes()
	b.mu.Unlock()

	return location, n, hex.EncodeToString(sum[:]), nil
}

// Retrieve returns a reader over the stored payload.
func (b *MemBackend) Retrieve(ctx context.Context, location string) (io.ReadCloser, error) {
	if err := b.check(location); err != nil {
		return nil, err
	}
	b.mu.RLock()
	data, ok := b.payloads[location]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", location, errdefs.ErrArtifactMissing)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes the payload. Absent payloads are ignored.
func (b *MemBackend) Delete(ctx context.Context, location string) error {
	if err := b.check(location); err != nil {
		return err
	}
	b.mu.Lock()
	delete(b.payloads, location)
	b.mu.Unlock()
	return nil
}

// Exists reports whether a payload is present.
func (b *MemBackend) Exists(ctx context.Context, location string) (bool, error) {
	if err := b.check(location); err != nil {
		return false, err
	}
	b.mu.RLock()
	_, ok := b.payloads[location]
	b.mu.RUnlock()
	return ok, nil
}

func (b *MemBackend) check(location string) error {
	scheme, _, err := sanitize.ParseLocation(location)
	if err != nil {
		return err
	}
	if scheme != "mem" {
		return fmt.Errorf("scheme %q not served by memory backend: %w", scheme, errdefs.ErrInvalidLocation)
	}
	return nil
}
