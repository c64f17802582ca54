package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/depotgate/depotgate/pkg/errdefs"
	"github.com/depotgate/depotgate/pkg/sanitize"
	"github.com/depotgate/depotgate/pkg/types"
)

// FSSink writes shipments into per-manifest directories under a base
// directory. The destination body is a relative subpath under the base;
// absolute bodies are rejected and "." / ".." segments are dropped.
type FSSink struct {
	base string
}

// NewFSSink creates a filesystem sink rooted at base.
func NewFSSink(base string) (*FSSink, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("resolve sink base: %w", err)
	}
	if err := os.MkdirAll(absBase, 0755); err != nil {
		return nil, fmt.Errorf("create sink base: %w", err)
	}
	return &FSSink{base: absBase}, nil
}

// Schemes returns the fs scheme.
func (s *FSSink) Schemes() []string {
	return []string{"fs"}
}

// Ship writes each artifact as <dir>/<artifact_id>[.ext] plus a sibling
// manifest.json, where dir is <base>/<destination>/<manifest_id>/.
func (s *FSSink) Ship(ctx context.Context, pointers []types.ArtifactPointer, destination string, manifest *types.ShipmentManifest, getContent ContentGetter) error {
	scheme, body, err := sanitize.ParseLocation(destination)
	if err != nil {
		return err
	}
	if scheme != "fs" {
		return fmt.Errorf("destination scheme %q not served by filesystem sink: %w", scheme, errdefs.ErrUnknownSink)
	}
	if filepath.IsAbs(filepath.FromSlash(body)) || (body != "" && body[0] == '/') {
		return fmt.Errorf("absolute destination %q: %w", destination, errdefs.ErrPathViolation)
	}

	rel := sanitize.NeutralizeSegments(body)
	destDir, err := sanitize.ResolveUnderBase(s.base, filepath.FromSlash(rel))
	if err != nil {
		return err
	}
	shipDir := filepath.Join(destDir, manifest.ManifestID)
	if err := os.MkdirAll(shipDir, 0755); err != nil {
		return fmt.Errorf("create shipment directory: %w", errdefs.ErrSinkTransportFailure)
	}

	for _, p := range pointers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.writeArtifact(ctx, shipDir, p, getContent); err != nil {
			return err
		}
	}

	manifestPath := filepath.Join(shipDir, "manifest.json")
	doc, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath, doc, 0644); err != nil {
		return fmt.Errorf("write manifest.json: %w", errdefs.ErrSinkTransportFailure)
	}
	return nil
}

func (s *FSSink) writeArtifact(ctx context.Context, dir string, p types.ArtifactPointer, getContent ContentGetter) error {
	src, err := getContent(ctx, p.ArtifactID)
	if err != nil {
		return err
	}
	defer src.Close()

	name := p.ArtifactID + extensionFor(p.MimeType)
	dst, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, errdefs.ErrSinkTransportFailure)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("write %s: %w", name, errdefs.ErrSinkTransportFailure)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, errdefs.ErrSinkTransportFailure)
	}
	return nil
}

// extensionFor maps a declared mime type to a filename extension. Unknown
// or empty types get no extension.
func extensionFor(mimeType string) string {
	switch mimeType {
	case "", "application/octet-stream":
		return ""
	case "text/plain":
		return ".txt"
	case "application/json":
		return ".json"
	}
	exts, err := mime.ExtensionsByType(mimeType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}
