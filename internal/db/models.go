package db

import (
	"time"

	"github.com/google/uuid"
)

// AuditEventRow is one row of audit_events
type AuditEventRow struct {
	Sequence   int64
	OccurredAt time.Time
	RecordID   string
	Kind       string
	Detail     string
	PrevHash   string
	Hash       string
}

// ReviewRecordRow is the latest persisted state of one review record.
// Payload holds the extraction payload as JSON.
type ReviewRecordRow struct {
	ID             uuid.UUID
	SourceImageRef string
	Payload        []byte
	Status         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	IntakeSequence int64
}
