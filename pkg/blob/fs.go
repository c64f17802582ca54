package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/depotgate/depotgate/pkg/errdefs"
	"github.com/depotgate/depotgate/pkg/sanitize"
)

// FSBackend stores payloads on the local filesystem under
// <base>/<sanitized-tenant>/<sanitized-task>/<artifact_id>.
type FSBackend struct {
	base     string
	maxBytes int64 // 0 = unlimited
}

// NewFSBackend creates a filesystem backend rooted at base. maxBytes caps
// a single artifact; zero means unlimited.
func NewFSBackend(base string, maxBytes int64) (*FSBackend, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("resolve staging base: %w", err)
	}
	if err := os.MkdirAll(absBase, 0755); err != nil {
		return nil, fmt.Errorf("create staging base: %w", err)
	}
	return &FSBackend{base: absBase, maxBytes: maxBytes}, nil
}

// Scheme returns "fs".
func (b *FSBackend) Scheme() string {
	return "fs"
}

// Store streams content to disk, hashing and counting in the same pass.
// If the configured max size is exceeded mid-stream the partial file is
// removed and the call fails.
func (b *FSBackend) Store(ctx context.Context, tenantID, rootTaskID, artifactID string, content io.Reader, mimeType string) (string, int64, string, error) {
	rel := filepath.Join(sanitize.Component(tenantID), sanitize.Component(rootTaskID), artifactID)
	abs, err := sanitize.ResolveUnderBase(b.base, rel)
	if err != nil {
		return "", 0, "", err
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return "", 0, "", fmt.Errorf("create task directory: %w", errdefs.ErrStorageFailure)
	}

	// Write to a temp sibling, rename on success.
	tmp := abs + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return "", 0, "", fmt.Errorf("open %s: %w", tmp, errdefs.ErrStorageFailure)
	}

	hasher := sha256.New()
	var size int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			f.Close()
			os.Remove(tmp)
			return "", 0, "", err
		}
		n, rerr := content.Read(buf)
		if n > 0 {
			size += int64(n)
			if b.maxBytes > 0 && size > b.maxBytes {
				f.Close()
				os.Remove(tmp)
				return "", 0, "", fmt.Errorf("artifact exceeds %d bytes: %w", b.maxBytes, errdefs.ErrArtifactTooLarge)
			}
			if _, werr := f.Write(buf[:n]); werr != nil {
				f.Close()
				os.Remove(tmp)
				return "", 0, "", fmt.Errorf("write bytes: %w", errdefs.ErrStorageFailure)
			}
			hasher.Write(buf[:n])
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			f.Close()
			os.Remove(tmp)
			return "", 0, "", fmt.Errorf("read content: %w", errdefs.ErrStorageFailure)
		}
	}

	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", 0, "", fmt.Errorf("close %s: %w", tmp, errdefs.ErrStorageFailure)
	}
	if err := os.Rename(tmp, abs); err != nil {
		os.Remove(tmp)
		return "", 0, "", fmt.Errorf("commit %s: %w", abs, errdefs.ErrStorageFailure)
	}

	location := "fs://" + filepath.ToSlash(rel)
	return location, size, hex.EncodeToString(hasher.Sum(nil)), nil
}

// Retrieve opens the payload at a fs:// location after containment checks.
func (b *FSBackend) Retrieve(ctx context.Context, location string) (io.ReadCloser, error) {
	abs, err := b.resolve(location)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", location, errdefs.ErrArtifactMissing)
		}
		return nil, fmt.Errorf("open %s: %w", location, errdefs.ErrStorageFailure)
	}
	return f, nil
}

// Delete removes the payload at a fs:// location. Absent files are ignored.
func (b *FSBackend) Delete(ctx context.Context, location string) error {
	abs, err := b.resolve(location)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", location, errdefs.ErrStorageFailure)
	}
	return nil
}

// Exists reports whether a payload is present at a fs:// location.
func (b *FSBackend) Exists(ctx context.Context, location string) (bool, error) {
	abs, err := b.resolve(location)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", location, errdefs.ErrStorageFailure)
	}
	return true, nil
}

// resolve parses a location, requires the fs scheme, and verifies the
// resolved path stays under the staging base.
func (b *FSBackend) resolve(location string) (string, error) {
	scheme, body, err := sanitize.ParseLocation(location)
	if err != nil {
		return "", err
	}
	if scheme != "fs" {
		return "", fmt.Errorf("scheme %q not served by filesystem backend: %w", scheme, errdefs.ErrInvalidLocation)
	}
	return sanitize.ResolveUnderBase(b.base, filepath.FromSlash(body))
}
