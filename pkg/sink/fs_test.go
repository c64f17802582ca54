package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotgate/depotgate/pkg/errdefs"
	"github.com/depotgate/depotgate/pkg/types"
)

func staticGetter(contents map[string]string) ContentGetter {
	return func(ctx context.Context, artifactID string) (io.ReadCloser, error) {
		data, ok := contents[artifactID]
		if !ok {
			return nil, errdefs.ErrArtifactMissing
		}
		return io.NopCloser(strings.NewReader(data)), nil
	}
}

func testManifest(pointers []types.ArtifactPointer, destination string) *types.ShipmentManifest {
	return &types.ShipmentManifest{
		ManifestID:    "manifest-1",
		DeliverableID: "deliverable-1",
		TenantID:      "tenant-a",
		RootTaskID:    "task-1",
		Pointers:      pointers,
		Destination:   destination,
		ShippedAt:     time.Now().UTC(),
	}
}

func TestFSSinkShip(t *testing.T) {
	base := t.TempDir()
	s, err := NewFSSink(base)
	require.NoError(t, err)

	pointers := []types.ArtifactPointer{
		{ArtifactID: "a1", MimeType: ""},
		{ArtifactID: "a2", MimeType: "application/json"},
	}
	manifest := testManifest(pointers, "fs://out/run-1")
	getter := staticGetter(map[string]string{"a1": "hello", "a2": `{"k":1}`})

	require.NoError(t, s.Ship(context.Background(), pointers, "fs://out/run-1", manifest, getter))

	shipDir := filepath.Join(base, "out", "run-1", "manifest-1")

	data, err := os.ReadFile(filepath.Join(shipDir, "a1"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	data, err = os.ReadFile(filepath.Join(shipDir, "a2.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"k":1}`, string(data))

	raw, err := os.ReadFile(filepath.Join(shipDir, "manifest.json"))
	require.NoError(t, err)
	var decoded types.ShipmentManifest
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "manifest-1", decoded.ManifestID)
	assert.Len(t, decoded.Pointers, 2)
}

func TestFSSinkRejectsAbsoluteDestination(t *testing.T) {
	base := t.TempDir()
	s, err := NewFSSink(base)
	require.NoError(t, err)

	pointers := []types.ArtifactPointer{{ArtifactID: "a1"}}
	manifest := testManifest(pointers, "fs:///etc/cron.d")
	getter := staticGetter(map[string]string{"a1": "x"})

	err = s.Ship(context.Background(), pointers, "fs:///etc/cron.d", manifest, getter)
	assert.ErrorIs(t, err, errdefs.ErrPathViolation)

	// Nothing was written anywhere under the base.
	entries, rerr := os.ReadDir(base)
	require.NoError(t, rerr)
	assert.Empty(t, entries)
}

func TestFSSinkNeutralizesTraversal(t *testing.T) {
	base := t.TempDir()
	s, err := NewFSSink(base)
	require.NoError(t, err)

	pointers := []types.ArtifactPointer{{ArtifactID: "a1"}}
	manifest := testManifest(pointers, "fs://../../escape")
	getter := staticGetter(map[string]string{"a1": "x"})

	require.NoError(t, s.Ship(context.Background(), pointers, "fs://../../escape", manifest, getter))

	// The ".." segments were dropped: the shipment landed under
	// <base>/escape, not outside the base.
	_, err = os.Stat(filepath.Join(base, "escape", "manifest-1", "a1"))
	assert.NoError(t, err)
}

func TestRegistrySelection(t *testing.T) {
	base := t.TempDir()
	fsSink, err := NewFSSink(base)
	require.NoError(t, err)
	reg, err := NewRegistry(fsSink, NewHTTPSink(nil))
	require.NoError(t, err)

	got, err := reg.For("fs://out")
	require.NoError(t, err)
	assert.Equal(t, fsSink, got)

	_, err = reg.For("http://example.com/x")
	require.NoError(t, err)

	_, err = reg.For("sftp://host/path")
	assert.ErrorIs(t, err, errdefs.ErrUnknownSink)

	_, err = reg.For("no-scheme")
	assert.ErrorIs(t, err, errdefs.ErrUnknownSink)
}
