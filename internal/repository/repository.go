package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/septivank/invoice-review/internal/audit"
	"github.com/septivank/invoice-review/internal/db"
	"github.com/septivank/invoice-review/internal/extraction"
	"github.com/septivank/invoice-review/internal/ingest"
	"github.com/septivank/invoice-review/internal/review"
	"go.uber.org/zap"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS audit_events (
		sequence    BIGINT PRIMARY KEY,
		occurred_at TIMESTAMPTZ NOT NULL,
		record_id   TEXT NOT NULL DEFAULT '',
		kind        TEXT NOT NULL,
		detail      TEXT NOT NULL DEFAULT '',
		prev_hash   TEXT NOT NULL,
		hash        TEXT NOT NULL UNIQUE
	)`,
	`CREATE INDEX IF NOT EXISTS audit_events_record_id_idx ON audit_events (record_id)`,
	`CREATE TABLE IF NOT EXISTS review_records (
		id               UUID PRIMARY KEY,
		source_image_ref TEXT NOT NULL,
		payload          JSONB NOT NULL,
		status           TEXT NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL,
		intake_sequence  BIGINT NOT NULL REFERENCES audit_events (sequence)
	)`,
	`CREATE INDEX IF NOT EXISTS review_records_status_idx ON review_records (status)`,
}

// Repository persists the audit trail and the latest state of every record
type Repository struct {
	pool   db.Pool
	logger *zap.Logger
}

// NewRepository creates a new repository
func NewRepository(pool db.Pool, logger *zap.Logger) *Repository {
	return &Repository{pool: pool, logger: logger}
}

// Migrate creates the tables if they do not exist yet
func (r *Repository) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	r.logger.Info("database schema ready")
	return nil
}

// AppendEvent stores an audit event and, when it carries a snapshot, the
// record state it produced. Both writes commit together or not at all.
func (r *Repository) AppendEvent(ctx context.Context, ev audit.Event) error {
	var row *db.ReviewRecordRow
	if len(ev.Snapshot) > 0 {
		var err error
		if row, err = recordRow(ev); err != nil {
			return err
		}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := insertEventTx(ctx, tx, ev); err != nil {
		return err
	}

	if row != nil {
		if err := upsertRecordTx(ctx, tx, row); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit audit event %d: %w", ev.Sequence, err)
	}
	return nil
}

func insertEventTx(ctx context.Context, tx pgx.Tx, ev audit.Event) error {
	query := `
		INSERT INTO audit_events (sequence, occurred_at, record_id, kind, detail, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := tx.Exec(ctx, query,
		int64(ev.Sequence),
		ev.Timestamp,
		ev.RecordID,
		string(ev.Kind),
		ev.Detail,
		ev.PrevHash,
		ev.Hash,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event %d: %w", ev.Sequence, err)
	}
	return nil
}

func upsertRecordTx(ctx context.Context, tx pgx.Tx, row *db.ReviewRecordRow) error {
	query := `
		INSERT INTO review_records (id, source_image_ref, payload, status, created_at, updated_at, intake_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET payload = EXCLUDED.payload,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`

	_, err := tx.Exec(ctx, query,
		row.ID,
		row.SourceImageRef,
		row.Payload,
		row.Status,
		row.CreatedAt,
		row.UpdatedAt,
		row.IntakeSequence,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert review record %s: %w", row.ID, err)
	}
	return nil
}

// recordRow converts the snapshot of ev into a row. The uploaded event is
// the one that assigns the intake sequence.
func recordRow(ev audit.Event) (*db.ReviewRecordRow, error) {
	var rec review.Record
	if err := json.Unmarshal(ev.Snapshot, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot of event %d: %w", ev.Sequence, err)
	}

	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("snapshot of event %d has invalid record id %q: %w", ev.Sequence, rec.ID, err)
	}

	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload of record %s: %w", rec.ID, err)
	}

	intake := rec.IntakeSequence
	if ev.Kind == audit.KindUploaded {
		intake = ev.Sequence
	}

	return &db.ReviewRecordRow{
		ID:             id,
		SourceImageRef: string(rec.SourceImageRef),
		Payload:        payload,
		Status:         string(rec.Status),
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
		IntakeSequence: int64(intake),
	}, nil
}

// LoadEvents returns the whole audit trail in sequence order
func (r *Repository) LoadEvents(ctx context.Context) ([]audit.Event, error) {
	query := `
		SELECT sequence, occurred_at, record_id, kind, detail, prev_hash, hash
		FROM audit_events
		ORDER BY sequence
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var row db.AuditEventRow
		if err := rows.Scan(
			&row.Sequence,
			&row.OccurredAt,
			&row.RecordID,
			&row.Kind,
			&row.Detail,
			&row.PrevHash,
			&row.Hash,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, audit.Event{
			Sequence:  uint64(row.Sequence),
			Timestamp: row.OccurredAt.UTC(),
			RecordID:  row.RecordID,
			Kind:      audit.Kind(row.Kind),
			Detail:    row.Detail,
			PrevHash:  row.PrevHash,
			Hash:      row.Hash,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return events, nil
}

// LoadLiveRecords returns the records still waiting for a decision
func (r *Repository) LoadLiveRecords(ctx context.Context) ([]review.Record, error) {
	query := `
		SELECT id, source_image_ref, payload, status, created_at, updated_at, intake_sequence
		FROM review_records
		WHERE status IN ($1, $2)
		ORDER BY created_at, intake_sequence
	`

	rows, err := r.pool.Query(ctx, query, string(review.StatusPending), string(review.StatusFlagged))
	if err != nil {
		return nil, fmt.Errorf("failed to query live records: %w", err)
	}
	defer rows.Close()

	var records []review.Record
	for rows.Next() {
		var row db.ReviewRecordRow
		if err := rows.Scan(
			&row.ID,
			&row.SourceImageRef,
			&row.Payload,
			&row.Status,
			&row.CreatedAt,
			&row.UpdatedAt,
			&row.IntakeSequence,
		); err != nil {
			return nil, fmt.Errorf("failed to scan review record: %w", err)
		}

		var payload extraction.Payload
		if err := json.Unmarshal(row.Payload, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload of record %s: %w", row.ID, err)
		}

		records = append(records, review.Record{
			ID:             row.ID.String(),
			SourceImageRef: ingest.ImageRef(row.SourceImageRef),
			Payload:        payload,
			Status:         review.Status(row.Status),
			CreatedAt:      row.CreatedAt.UTC(),
			UpdatedAt:      row.UpdatedAt.UTC(),
			IntakeSequence: uint64(row.IntakeSequence),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return records, nil
}
