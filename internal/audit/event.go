package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the type of auditable event
type Kind string

const (
	KindUploaded Kind = "uploaded"
	KindEdited   Kind = "edited"
	KindApproved Kind = "approved"
	KindRejected Kind = "rejected"
	KindFlagged  Kind = "flagged"
)

// Valid reports whether k is a known event kind
func (k Kind) Valid() bool {
	switch k {
	case KindUploaded, KindEdited, KindApproved, KindRejected, KindFlagged:
		return true
	}
	return false
}

// Event is one immutable entry of the audit trail. Hash chains every event
// to its predecessor so that a rewritten history no longer verifies.
type Event struct {
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	RecordID  string    `json:"record_id,omitempty"`
	Kind      Kind      `json:"kind"`
	Detail    string    `json:"detail,omitempty"`
	PrevHash  string    `json:"prev_hash"`
	Hash      string    `json:"hash"`

	// Snapshot is the record state produced by the transition, opaque to the
	// log. Stores persist it alongside the event.
	Snapshot json.RawMessage `json:"-"`
}

// Entry is what a caller asks the log to record
type Entry struct {
	Kind     Kind
	RecordID string
	Detail   string
	Snapshot json.RawMessage
}

func (e Event) computeHash() string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(e.Sequence, 10))
	b.WriteByte('|')
	b.WriteString(e.Timestamp.UTC().Format(time.RFC3339Nano))
	b.WriteByte('|')
	b.WriteString(e.RecordID)
	b.WriteByte('|')
	b.WriteString(string(e.Kind))
	b.WriteByte('|')
	b.WriteString(e.Detail)
	b.WriteByte('|')
	b.WriteString(e.PrevHash)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
