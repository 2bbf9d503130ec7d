package extraction

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/septivank/invoice-review/internal/ingest"
	"go.uber.org/zap"
)

// Extractor turns a rendered invoice image into a structured payload
type Extractor interface {
	Extract(ctx context.Context, ref ingest.ImageRef) (*Payload, error)
}

// ImageSource opens rendered images by reference
type ImageSource interface {
	Open(ref ingest.ImageRef) (io.ReadCloser, error)
}

// maxResponseBytes bounds the extraction service response body
const maxResponseBytes = 1 << 20

// HTTPClient calls an external extraction service over HTTP. The image is
// posted as the request body and the service answers with a payload document.
type HTTPClient struct {
	url    string
	images ImageSource
	client *http.Client
	logger *zap.Logger
}

// NewHTTPClient creates a new extraction client for the given endpoint
func NewHTTPClient(url string, timeout time.Duration, images ImageSource, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		url:    url,
		images: images,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Extract posts the referenced image and decodes the returned payload.
// It never retries; retry policy belongs to the caller.
func (c *HTTPClient) Extract(ctx context.Context, ref ingest.ImageRef) (*Payload, error) {
	img, err := c.images.Open(ref)
	if err != nil {
		return nil, NewExtractionError("cannot open rendered image", err)
	}
	defer img.Close()

	body, err := io.ReadAll(img)
	if err != nil {
		return nil, NewExtractionError("cannot read rendered image", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, NewExtractionError("cannot build request", err)
	}
	req.Header.Set("Content-Type", contentTypeFor(ref))
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, NewExtractionError("extraction service unreachable", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, NewExtractionError("cannot read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, NewExtractionError(fmt.Sprintf("extraction service returned status %d", resp.StatusCode), nil)
	}

	payload, err := Decode(data)
	if err != nil {
		return nil, NewExtractionError("unparseable extraction output", err)
	}

	c.logger.Debug("extraction completed",
		zap.String("image_ref", string(ref)),
		zap.Float64("confidence", payload.Confidence),
	)

	return payload, nil
}

func contentTypeFor(ref ingest.ImageRef) string {
	switch filepath.Ext(string(ref)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "image/png"
	}
}
