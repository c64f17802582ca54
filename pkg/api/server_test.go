package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotgate/depotgate/pkg/blob"
	"github.com/depotgate/depotgate/pkg/deliverable"
	"github.com/depotgate/depotgate/pkg/events"
	"github.com/depotgate/depotgate/pkg/log"
	"github.com/depotgate/depotgate/pkg/metastore"
	"github.com/depotgate/depotgate/pkg/receipts"
	"github.com/depotgate/depotgate/pkg/shipping"
	"github.com/depotgate/depotgate/pkg/sink"
	"github.com/depotgate/depotgate/pkg/staging"
	"github.com/depotgate/depotgate/pkg/types"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
	os.Exit(m.Run())
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()

	blobs, err := blob.NewRegistry(blob.NewMemBackend(0))
	require.NoError(t, err)

	fsSink, err := sink.NewFSSink(filepath.Join(dir, "shipped"))
	require.NoError(t, err)
	sinks, err := sink.NewRegistry(fsSink)
	require.NoError(t, err)

	meta, err := metastore.NewBoltStore(filepath.Join(dir, "depotgate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = meta.Close() })

	rcpts, err := receipts.NewBoltStore(filepath.Join(dir, "receipts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rcpts.Close() })

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	stager := staging.NewStager(blobs, meta, rcpts, broker)
	deliverables := deliverable.NewManager(meta)
	shipper := shipping.NewService(blobs, sinks, meta, rcpts, deliverables, broker)

	srv := httptest.NewServer(NewServer("tenant-a", stager, deliverables, shipper).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body io.Reader, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, data
}

func TestStageAndFetchRoundtrip(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/tasks/task-1/artifacts",
		strings.NewReader("hello"), map[string]string{
			"Content-Type":    "text/plain",
			"X-Artifact-Role": "final_output",
		})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var pointer types.ArtifactPointer
	require.NoError(t, json.Unmarshal(body, &pointer))
	assert.Equal(t, int64(5), pointer.SizeBytes)
	assert.Equal(t, types.RoleFinalOutput, pointer.Role)

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/tasks/task-1/artifacts", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed []types.ArtifactPointer
	require.NoError(t, json.Unmarshal(body, &listed))
	require.Len(t, listed, 1)

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/artifacts/"+pointer.ArtifactID+"/content", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello", string(body))
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
}

func TestDeclareClosureShipFlow(t *testing.T) {
	srv := newTestServer(t)

	_, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/tasks/task-1/artifacts",
		strings.NewReader("hello"), map[string]string{"X-Artifact-Role": "final_output"})

	spec := types.DeliverableSpec{
		ArtifactRoles:       []types.ArtifactRole{types.RoleFinalOutput},
		ShippingDestination: "fs://out/run-1",
	}
	specJSON, err := json.Marshal(spec)
	require.NoError(t, err)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/tasks/task-1/deliverables",
		bytes.NewReader(specJSON), map[string]string{"Content-Type": "application/json"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var declared map[string]string
	require.NoError(t, json.Unmarshal(body, &declared))
	id := declared["deliverable_id"]
	require.NotEmpty(t, id)

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/deliverables/"+id+"/closure", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var report types.ClosureReport
	require.NoError(t, json.Unmarshal(body, &report))
	assert.True(t, report.Satisfied)

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/v1/tasks/task-1/deliverables/"+id+"/ship", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var manifest types.ShipmentManifest
	require.NoError(t, json.Unmarshal(body, &manifest))
	assert.Len(t, manifest.Pointers, 1)

	// A second ship is a conflict with a stable error kind.
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/v1/tasks/task-1/deliverables/"+id+"/ship", nil, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	var failure struct {
		Error struct {
			Kind string `json:"kind"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &failure))
	assert.Equal(t, "AlreadyShipped", failure.Error.Kind)

	// Receipt trail in order.
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/tasks/task-1/receipts", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var trail []types.Receipt
	require.NoError(t, json.Unmarshal(body, &trail))
	require.Len(t, trail, 2)
	assert.Equal(t, types.ReceiptArtifactStaged, trail[0].Kind)
	assert.Equal(t, types.ReceiptShipmentComplete, trail[1].Kind)
}

func TestRequirementFlow(t *testing.T) {
	srv := newTestServer(t)

	spec := types.DeliverableSpec{
		Requirements:        []string{"review"},
		ShippingDestination: "fs://out/run-1",
	}
	specJSON, _ := json.Marshal(spec)
	_, body := doJSON(t, http.MethodPost, srv.URL+"/v1/tasks/task-1/deliverables",
		bytes.NewReader(specJSON), nil)
	var declared map[string]string
	require.NoError(t, json.Unmarshal(body, &declared))
	id := declared["deliverable_id"]

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/deliverables/"+id+"/closure", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var report types.ClosureReport
	require.NoError(t, json.Unmarshal(body, &report))
	assert.False(t, report.Satisfied)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/deliverables/"+id+"/requirements/review", nil, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, body = doJSON(t, http.MethodGet, srv.URL+"/v1/deliverables/"+id+"/closure", nil, nil)
	require.NoError(t, json.Unmarshal(body, &report))
	assert.True(t, report.Satisfied)
}

func TestErrorKinds(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name       string
		method     string
		path       string
		body       io.Reader
		wantStatus int
		wantKind   string
	}{
		{
			name:   "unknown artifact",
			method: http.MethodGet, path: "/v1/artifacts/ghost",
			wantStatus: http.StatusNotFound, wantKind: "NotFound",
		},
		{
			name:   "unknown deliverable closure",
			method: http.MethodGet, path: "/v1/deliverables/ghost/closure",
			wantStatus: http.StatusNotFound, wantKind: "NotFound",
		},
		{
			name:   "bad task id on stage",
			method: http.MethodPost, path: "/v1/tasks/task.1/artifacts",
			body:       strings.NewReader("x"),
			wantStatus: http.StatusBadRequest, wantKind: "InvalidIdentifier",
		},
		{
			name:   "bad purge body",
			method: http.MethodPost, path: "/v1/tasks/task-1/purge",
			body:       strings.NewReader("{"),
			wantStatus: http.StatusBadRequest, wantKind: "InvalidSpec",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, tt.method, srv.URL+tt.path, tt.body, nil)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			var failure struct {
				Error struct {
					Kind string `json:"kind"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(body, &failure))
			assert.Equal(t, tt.wantKind, failure.Error.Kind)
		})
	}
}
