// Package review implements the review queue: the live set of extraction
// records awaiting a human decision and the state machine they move through.
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/invoice-review/internal/audit"
	"github.com/septivank/invoice-review/internal/extraction"
	"github.com/septivank/invoice-review/internal/ingest"
	"github.com/septivank/invoice-review/internal/logging"
	"github.com/septivank/invoice-review/internal/validator"
	"go.uber.org/zap"
)

// entry guards one record. mu serialises mutations of the record; cur is
// swapped whole so readers never observe a partially applied change.
type entry struct {
	mu      sync.Mutex
	removed bool
	cur     atomic.Pointer[Record]
}

// Queue owns the live, non-terminal review records keyed by id
type Queue struct {
	mu   sync.RWMutex
	live map[string]*entry

	log       *audit.Log
	validator *validator.Validator
	now       func() time.Time
	logger    *zap.Logger
}

// NewQueue creates a new review queue recording transitions in log
func NewQueue(log *audit.Log, v *validator.Validator, logger *zap.Logger) *Queue {
	return &Queue{
		live:      make(map[string]*entry),
		log:       log,
		validator: v,
		now:       time.Now,
		logger:    logger,
	}
}

// Intake wraps payload into a new pending record
func (q *Queue) Intake(ctx context.Context, payload *extraction.Payload, sourceImageRef ingest.ImageRef) (Record, error) {
	if payload == nil {
		return Record{}, newError(ErrInvalidPayload, "", "payload is required")
	}
	if sourceImageRef == "" {
		return Record{}, newError(ErrInvalidPayload, "", "source_image_ref is required")
	}

	now := q.now().UTC()
	rec := Record{
		ID:             uuid.New().String(),
		SourceImageRef: sourceImageRef,
		Payload:        *payload.Clone(),
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	snapshot, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("failed to encode record snapshot: %w", err)
	}

	ev, err := q.log.Record(ctx, audit.Entry{
		Kind:     audit.KindUploaded,
		RecordID: rec.ID,
		Detail:   rec.Payload.ConfidenceDetail(),
		Snapshot: snapshot,
	})
	if err != nil {
		return Record{}, err
	}
	rec.IntakeSequence = ev.Sequence

	e := &entry{}
	e.cur.Store(&rec)

	q.mu.Lock()
	q.live[rec.ID] = e
	q.mu.Unlock()

	logging.WithRecordID(q.logger, rec.ID).Info("record queued for review",
		zap.Uint64("sequence", ev.Sequence),
		zap.Float64("confidence", rec.Payload.Confidence),
	)

	return rec.clone(), nil
}

// Get returns the live record with id
func (q *Queue) Get(id string) (Record, error) {
	e := q.lookup(id)
	if e == nil {
		return Record{}, newError(ErrNotFound, id, "no live record with this id")
	}
	return e.cur.Load().clone(), nil
}

// ListPending returns all live records, oldest first. The order depends only
// on record data, so repeated calls list the same record at the same position.
func (q *Queue) ListPending() []Record {
	q.mu.RLock()
	out := make([]Record, 0, len(q.live))
	for _, e := range q.live {
		out = append(out, e.cur.Load().clone())
	}
	q.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].IntakeSequence < out[j].IntakeSequence
	})
	return out
}

// Len returns the number of live records
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.live)
}

// Edit replaces the payload of a pending or flagged record after validation
func (q *Queue) Edit(ctx context.Context, id string, payload *extraction.Payload) (Record, error) {
	return q.transition(ctx, id, actionEdit, payload)
}

// Approve moves a record to approved and removes it from the live set
func (q *Queue) Approve(ctx context.Context, id string) (Record, error) {
	return q.transition(ctx, id, actionApprove, nil)
}

// Reject moves a record to rejected and removes it from the live set
func (q *Queue) Reject(ctx context.Context, id string) (Record, error) {
	return q.transition(ctx, id, actionReject, nil)
}

// Flag marks a record for closer review. The record stays live; flagging a
// flagged record is logged but changes nothing.
func (q *Queue) Flag(ctx context.Context, id string) (Record, error) {
	return q.transition(ctx, id, actionFlag, nil)
}

// Restore loads persisted live records into an empty queue
func (q *Queue) Restore(records []Record) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.live) > 0 {
		return fmt.Errorf("refusing to restore queue: queue already holds %d records", len(q.live))
	}

	restored := make(map[string]*entry, len(records))
	for _, r := range records {
		if r.Status.Terminal() {
			continue
		}
		if _, dup := restored[r.ID]; dup {
			return fmt.Errorf("refusing to restore queue: duplicate record %s", r.ID)
		}
		rec := r.clone()
		e := &entry{}
		e.cur.Store(&rec)
		restored[r.ID] = e
	}
	q.live = restored

	q.logger.Info("review queue restored", zap.Int("records", len(restored)))
	return nil
}

func (q *Queue) lookup(id string) *entry {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.live[id]
}

// transition applies one action to one record as a single unit: the audit
// event is persisted first and the new state becomes visible only after it.
func (q *Queue) transition(ctx context.Context, id string, a action, payload *extraction.Payload) (Record, error) {
	e := q.lookup(id)
	if e == nil {
		return Record{}, newError(ErrNotFound, id, "no live record with this id")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Lost a race against a terminal transition
	if e.removed {
		return Record{}, newError(ErrNotFound, id, "record has already left the queue")
	}

	cur := e.cur.Load()
	target, ok := nextStatus(cur.Status, a)
	if !ok {
		return Record{}, newError(ErrInvalidState, id, fmt.Sprintf("cannot %s a record in status %s", a, cur.Status))
	}

	next := cur.clone()
	next.Status = target
	next.UpdatedAt = q.now().UTC()

	detail := fmt.Sprintf("%s -> %s", cur.Status, target)
	if a == actionEdit {
		result := q.validator.ValidateEdit(&cur.Payload, payload)
		if !result.IsValid {
			return Record{}, newError(ErrValidation, id, result.Reason)
		}
		next.Payload = *payload.Clone()
		detail = next.Payload.ConfidenceDetail()
	}

	snapshot, err := json.Marshal(next)
	if err != nil {
		return Record{}, fmt.Errorf("failed to encode record snapshot: %w", err)
	}

	ev, err := q.log.Record(ctx, audit.Entry{
		Kind:     a.kind(),
		RecordID: id,
		Detail:   detail,
		Snapshot: snapshot,
	})
	if err != nil {
		return Record{}, err
	}

	if target.Terminal() {
		q.mu.Lock()
		delete(q.live, id)
		q.mu.Unlock()
		e.removed = true
	}
	e.cur.Store(&next)

	logging.WithRecordID(q.logger, id).Info("review record updated",
		zap.String("action", a.String()),
		zap.String("status", string(target)),
		zap.Uint64("sequence", ev.Sequence),
	)

	return next.clone(), nil
}
