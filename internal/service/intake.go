package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/septivank/invoice-review/internal/extraction"
	"github.com/septivank/invoice-review/internal/ingest"
	"github.com/septivank/invoice-review/internal/logging"
	"go.uber.org/zap"
)

// ExtractionMessage is a finished extraction delivered by the extraction service
type ExtractionMessage struct {
	RequestID      string          `json:"request_id"`
	SourceImageRef string          `json:"source_image_ref"`
	Payload        json.RawMessage `json:"payload"`
	// Error is set instead of Payload when the extraction failed
	Error string `json:"error,omitempty"`
}

// ProcessExtractionMessage queues the payload carried by an intake message.
// Failed or malformed extractions return an ExtractionError and create nothing.
func (c *QueueController) ProcessExtractionMessage(ctx context.Context, body []byte) error {
	var msg ExtractionMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return extraction.NewExtractionError("failed to unmarshal message", err)
	}

	reqLogger := logging.WithRequestID(c.logger, msg.RequestID)

	if msg.Error != "" {
		reqLogger.Warn("extraction service reported failure", zap.String("reason", msg.Error))
		return extraction.NewExtractionError(msg.Error, nil)
	}
	if len(msg.Payload) == 0 || string(msg.Payload) == "null" {
		return extraction.NewExtractionError("message carries no payload", nil)
	}
	if msg.SourceImageRef == "" {
		return extraction.NewExtractionError("message carries no source image reference", nil)
	}

	payload, err := extraction.Decode(msg.Payload)
	if err != nil {
		reqLogger.Warn("unparseable extraction payload", zap.Error(err))
		return extraction.NewExtractionError("unparseable extraction output", err)
	}

	item, err := c.Intake(ctx, payload, ingest.ImageRef(msg.SourceImageRef))
	if err != nil {
		reqLogger.Error("failed to queue extraction", zap.Error(err))
		return fmt.Errorf("failed to queue extraction: %w", err)
	}

	reqLogger.Info("extraction queued for review",
		zap.String("record_id", item.ID),
		zap.String("tier", string(item.Tier)),
	)

	return nil
}
