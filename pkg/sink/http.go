package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/depotgate/depotgate/pkg/errdefs"
	"github.com/depotgate/depotgate/pkg/types"
)

// HTTPSink POSTs a shipment as a multipart body: one manifest part followed
// by one part per artifact. The sink never retries.
type HTTPSink struct {
	client *http.Client
}

// NewHTTPSink creates an HTTP sink. A nil client gets a default with a
// 30 second timeout.
func NewHTTPSink(client *http.Client) *HTTPSink {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPSink{client: client}
}

// Schemes returns http and https.
func (s *HTTPSink) Schemes() []string {
	return []string{"http", "https"}
}

// Ship builds the multipart body and POSTs it to the destination URL.
// Any transport error or non-2xx response is a SinkTransportFailure.
func (s *HTTPSink) Ship(ctx context.Context, pointers []types.ArtifactPointer, destination string, manifest *types.ShipmentManifest, getContent ContentGetter) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	doc, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	mh := textproto.MIMEHeader{}
	mh.Set("Content-Disposition", `form-data; name="manifest"; filename="manifest.json"`)
	mh.Set("Content-Type", "application/json")
	part, err := w.CreatePart(mh)
	if err != nil {
		return fmt.Errorf("create manifest part: %w", err)
	}
	if _, err := part.Write(doc); err != nil {
		return fmt.Errorf("write manifest part: %w", err)
	}

	for _, p := range pointers {
		if err := s.writePart(ctx, w, p, getContent); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, destination, &body)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", destination, errdefs.ErrSinkTransportFailure)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", destination, errdefs.ErrSinkTransportFailure)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sink responded %d: %w", resp.StatusCode, errdefs.ErrSinkTransportFailure)
	}
	return nil
}

func (s *HTTPSink) writePart(ctx context.Context, w *multipart.Writer, p types.ArtifactPointer, getContent ContentGetter) error {
	src, err := getContent(ctx, p.ArtifactID)
	if err != nil {
		return err
	}
	defer src.Close()

	mh := textproto.MIMEHeader{}
	mh.Set("Content-Disposition", fmt.Sprintf(`form-data; name="artifact"; filename=%q`, p.ArtifactID))
	contentType := p.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	mh.Set("Content-Type", contentType)
	part, err := w.CreatePart(mh)
	if err != nil {
		return fmt.Errorf("create part for %s: %w", p.ArtifactID, err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("stream %s: %w", p.ArtifactID, errdefs.ErrSinkTransportFailure)
	}
	return nil
}
