package review

import (
	"time"

	"github.com/septivank/invoice-review/internal/audit"
	"github.com/septivank/invoice-review/internal/extraction"
	"github.com/septivank/invoice-review/internal/ingest"
)

// Status is the lifecycle state of a review record
type Status string

const (
	StatusPending  Status = "pending"
	StatusFlagged  Status = "flagged"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Terminal reports whether no further transition is allowed from s
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Record is one queue entry wrapping an extracted payload
type Record struct {
	ID             string             `json:"id"`
	SourceImageRef ingest.ImageRef    `json:"source_image_ref"`
	Payload        extraction.Payload `json:"payload"`
	Status         Status             `json:"status"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	// IntakeSequence is the audit sequence of the record's uploaded event
	IntakeSequence uint64 `json:"intake_sequence"`
}

func (r Record) clone() Record {
	r.Payload = *r.Payload.Clone()
	return r
}

type action int

const (
	actionEdit action = iota
	actionFlag
	actionApprove
	actionReject
)

func (a action) kind() audit.Kind {
	switch a {
	case actionFlag:
		return audit.KindFlagged
	case actionApprove:
		return audit.KindApproved
	case actionReject:
		return audit.KindRejected
	default:
		return audit.KindEdited
	}
}

func (a action) String() string {
	switch a {
	case actionFlag:
		return "flag"
	case actionApprove:
		return "approve"
	case actionReject:
		return "reject"
	default:
		return "edit"
	}
}

// transitions is the review state machine. Edits keep the current status.
var transitions = map[Status]map[action]Status{
	StatusPending: {
		actionEdit:    StatusPending,
		actionFlag:    StatusFlagged,
		actionApprove: StatusApproved,
		actionReject:  StatusRejected,
	},
	StatusFlagged: {
		actionEdit:    StatusFlagged,
		actionFlag:    StatusFlagged,
		actionApprove: StatusApproved,
		actionReject:  StatusRejected,
	},
}

func nextStatus(from Status, a action) (Status, bool) {
	to, ok := transitions[from][a]
	return to, ok
}
