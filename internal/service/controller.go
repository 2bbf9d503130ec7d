package service

import (
	"context"
	"encoding/json"

	"github.com/septivank/invoice-review/internal/audit"
	"github.com/septivank/invoice-review/internal/extraction"
	"github.com/septivank/invoice-review/internal/ingest"
	"github.com/septivank/invoice-review/internal/logging"
	"github.com/septivank/invoice-review/internal/mq"
	"github.com/septivank/invoice-review/internal/review"
	"github.com/septivank/invoice-review/internal/triage"
	"github.com/septivank/invoice-review/internal/validator"
	"go.uber.org/zap"
)

// Renderer turns an uploaded document into a rendered image
type Renderer interface {
	Render(ctx context.Context, data []byte, mimeType string) (ingest.ImageRef, error)
	Discard(ref ingest.ImageRef) error
}

// QueueItem is a record together with its advisory triage tier
type QueueItem struct {
	review.Record
	Tier      triage.Tier `json:"tier"`
	TierLabel string      `json:"tier_label"`
}

// QueueController is the surface used by the API layer and the intake
// consumer. It orchestrates collaborators and delegates every queue
// mutation to review.Queue.
type QueueController struct {
	queue      *review.Queue
	log        *audit.Log
	classifier *triage.Classifier
	validator  *validator.Validator
	renderer   Renderer
	extractor  extraction.Extractor
	notifier   Notifier
	logger     *zap.Logger
}

// NewQueueController creates a new queue controller. extractor may be nil,
// in which case uploads fail with an ExtractionError.
func NewQueueController(
	queue *review.Queue,
	log *audit.Log,
	classifier *triage.Classifier,
	validator *validator.Validator,
	renderer Renderer,
	extractor extraction.Extractor,
	notifier Notifier,
	logger *zap.Logger,
) *QueueController {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &QueueController{
		queue:      queue,
		log:        log,
		classifier: classifier,
		validator:  validator,
		renderer:   renderer,
		extractor:  extractor,
		notifier:   notifier,
		logger:     logger,
	}
}

// Upload renders and extracts a document, then queues the result. Collaborator
// failures are returned as they are and never create a record.
func (c *QueueController) Upload(ctx context.Context, data []byte, mimeType string) (QueueItem, error) {
	if c.renderer == nil {
		return QueueItem{}, &ingest.IngestionError{MimeType: mimeType, Reason: "no renderer configured"}
	}
	if c.extractor == nil {
		return QueueItem{}, extraction.NewExtractionError("no extraction service configured", extraction.ErrUnavailable)
	}

	ref, err := c.renderer.Render(ctx, data, mimeType)
	if err != nil {
		c.logger.Warn("upload rejected by renderer", zap.String("mime_type", mimeType), zap.Error(err))
		return QueueItem{}, err
	}

	payload, err := c.extractor.Extract(ctx, ref)
	if err != nil {
		c.logger.Warn("extraction failed", zap.String("image_ref", string(ref)), zap.Error(err))
		c.discard(ref)
		return QueueItem{}, err
	}

	item, err := c.Intake(ctx, payload, ref)
	if err != nil {
		c.discard(ref)
		return QueueItem{}, err
	}
	return item, nil
}

// discard removes an image no record will ever point at
func (c *QueueController) discard(ref ingest.ImageRef) {
	if err := c.renderer.Discard(ref); err != nil {
		c.logger.Warn("failed to remove orphaned image", zap.String("image_ref", string(ref)), zap.Error(err))
	}
}

// Intake queues an extracted payload
func (c *QueueController) Intake(ctx context.Context, payload *extraction.Payload, ref ingest.ImageRef) (QueueItem, error) {
	rec, err := c.queue.Intake(ctx, payload, ref)
	if err != nil {
		return QueueItem{}, err
	}
	return c.item(rec), nil
}

// Get returns a live record with its tier
func (c *QueueController) Get(id string) (QueueItem, error) {
	rec, err := c.queue.Get(id)
	if err != nil {
		return QueueItem{}, err
	}
	return c.item(rec), nil
}

// ListPending returns the live records, oldest first, with their tiers
func (c *QueueController) ListPending() []QueueItem {
	records := c.queue.ListPending()
	items := make([]QueueItem, len(records))
	for i, rec := range records {
		items[i] = c.item(rec)
	}
	return items
}

// Tier derives the triage tier of a live record from its current payload
func (c *QueueController) Tier(id string) (triage.Tier, error) {
	rec, err := c.queue.Get(id)
	if err != nil {
		return "", err
	}
	return c.classifier.Classify(rec.Payload.Confidence), nil
}

// Edit replaces the payload of a record
func (c *QueueController) Edit(ctx context.Context, id string, payload *extraction.Payload) (QueueItem, error) {
	rec, err := c.queue.Edit(ctx, id, payload)
	if err != nil {
		return QueueItem{}, err
	}
	return c.item(rec), nil
}

// EditJSON strictly decodes a reviewer's JSON edit and applies it
func (c *QueueController) EditJSON(ctx context.Context, id string, raw []byte) (QueueItem, error) {
	// Unknown ids report not-found before any complaint about the body
	if _, err := c.queue.Get(id); err != nil {
		return QueueItem{}, err
	}

	payload, result := c.validator.DecodePayload(raw)
	if !result.IsValid {
		return QueueItem{}, &review.Error{Kind: review.ErrValidation, RecordID: id, Reason: result.Reason}
	}

	return c.Edit(ctx, id, payload)
}

// Approve accepts a record and notifies downstream sync
func (c *QueueController) Approve(ctx context.Context, id string) (QueueItem, error) {
	rec, err := c.queue.Approve(ctx, id)
	if err != nil {
		return QueueItem{}, err
	}
	c.notify(ctx, rec)
	return c.item(rec), nil
}

// Reject discards a record and notifies downstream consumers
func (c *QueueController) Reject(ctx context.Context, id string) (QueueItem, error) {
	rec, err := c.queue.Reject(ctx, id)
	if err != nil {
		return QueueItem{}, err
	}
	c.notify(ctx, rec)
	return c.item(rec), nil
}

// Flag marks a record for closer review
func (c *QueueController) Flag(ctx context.Context, id string) (QueueItem, error) {
	rec, err := c.queue.Flag(ctx, id)
	if err != nil {
		return QueueItem{}, err
	}
	return c.item(rec), nil
}

// AuditTrail returns all audit events, or only those of recordID when it is set
func (c *QueueController) AuditTrail(recordID string) []audit.Event {
	if recordID != "" {
		return c.log.ForRecord(recordID)
	}
	return c.log.Events()
}

func (c *QueueController) item(rec review.Record) QueueItem {
	tier := c.classifier.Classify(rec.Payload.Confidence)
	return QueueItem{Record: rec, Tier: tier, TierLabel: tier.Label()}
}

// notify publishes a decision after the transition is committed. A failed
// publish is logged and never undoes the decision.
func (c *QueueController) notify(ctx context.Context, rec review.Record) {
	logger := logging.WithRecordID(c.logger, rec.ID)

	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		logger.Error("failed to encode decision payload", zap.Error(err))
		return
	}

	var sequence uint64
	if events := c.log.ForRecord(rec.ID); len(events) > 0 {
		sequence = events[len(events)-1].Sequence
	}

	event := mq.DecisionEvent{
		RecordID:       rec.ID,
		Decision:       string(rec.Status),
		Sequence:       sequence,
		SourceImageRef: string(rec.SourceImageRef),
		Payload:        payload,
		DecidedAt:      rec.UpdatedAt,
	}

	if err := c.notifier.PublishDecision(ctx, event); err != nil {
		logger.Error("failed to publish review decision",
			zap.String("decision", event.Decision),
			zap.Error(err),
		)
		return
	}

	logger.Info("review decision published", zap.String("decision", event.Decision))
}
