// Package audit implements the append-only, hash-chained audit trail of
// review decisions.
package audit

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store persists audit events. AppendEvent must be atomic: either the event
// (and its snapshot) is durably stored or nothing is.
type Store interface {
	AppendEvent(ctx context.Context, ev Event) error
}

// Log is the ordered, append-only event store
type Log struct {
	// appendMu serialises sequence assignment with persistence
	appendMu sync.Mutex

	mu     sync.RWMutex
	events []Event

	store          Store
	persistTimeout time.Duration
	now            func() time.Time
	logger         *zap.Logger
}

const defaultPersistTimeout = 10 * time.Second

// Option configures a Log
type Option func(*Log)

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// WithPersistTimeout bounds how long a single durable append may take
func WithPersistTimeout(d time.Duration) Option {
	return func(l *Log) { l.persistTimeout = d }
}

// NewLog creates a new audit log. store may be nil for a process-lifetime log.
func NewLog(store Store, logger *zap.Logger, opts ...Option) *Log {
	l := &Log{
		store:          store,
		persistTimeout: defaultPersistTimeout,
		now:            time.Now,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append records an event of kind for recordID
func (l *Log) Append(ctx context.Context, kind Kind, recordID, detail string) (Event, error) {
	return l.Record(ctx, Entry{Kind: kind, RecordID: recordID, Detail: detail})
}

// Record assigns the next sequence number to e, persists it and makes it
// visible to readers. On failure no sequence number is consumed.
// Cancelling ctx only aborts the wait for the append lock; once the lock is
// held the write runs to completion so memory and store cannot diverge.
func (l *Log) Record(ctx context.Context, e Entry) (Event, error) {
	if !e.Kind.Valid() {
		return Event{}, fmt.Errorf("unknown audit event kind %q", e.Kind)
	}
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}

	l.appendMu.Lock()
	defer l.appendMu.Unlock()

	last := l.last()
	ev := Event{
		Sequence: last.Sequence + 1,
		// Postgres keeps microseconds; the hash must survive a round trip
		Timestamp: l.now().UTC().Truncate(time.Microsecond),
		RecordID:  e.RecordID,
		Kind:      e.Kind,
		Detail:    e.Detail,
		PrevHash:  last.Hash,
		Snapshot:  e.Snapshot,
	}
	ev.Hash = ev.computeHash()

	if l.store != nil {
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.persistTimeout)
		err := l.store.AppendEvent(storeCtx, ev)
		cancel()
		if err != nil {
			l.logger.Error("failed to persist audit event",
				zap.Uint64("sequence", ev.Sequence),
				zap.String("kind", string(ev.Kind)),
				zap.String("record_id", ev.RecordID),
				zap.Error(err),
			)
			return Event{}, &PersistenceError{Sequence: ev.Sequence, Err: err}
		}
	}

	// Snapshots live in the store only
	ev.Snapshot = nil

	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()

	l.logger.Debug("audit event appended",
		zap.Uint64("sequence", ev.Sequence),
		zap.String("kind", string(ev.Kind)),
		zap.String("record_id", ev.RecordID),
	)

	return ev, nil
}

// All returns a lazy, restartable sequence of events in ascending order.
// Each iteration reads the events that existed when it started.
func (l *Log) All() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for _, ev := range l.snapshot() {
			if !yield(ev) {
				return
			}
		}
	}
}

// Events returns a copy of all events in ascending order
func (l *Log) Events() []Event {
	snap := l.snapshot()
	out := make([]Event, len(snap))
	copy(out, snap)
	return out
}

// ForRecord returns the events concerning recordID in ascending order
func (l *Log) ForRecord(recordID string) []Event {
	var out []Event
	for ev := range l.All() {
		if ev.RecordID == recordID {
			out = append(out, ev)
		}
	}
	return out
}

// Len returns the number of events
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Verify checks sequence continuity and the hash chain
func (l *Log) Verify() error {
	return verifyChain(l.snapshot())
}

// Restore loads a previously persisted history into an empty log
func (l *Log) Restore(events []Event) error {
	if err := verifyChain(events); err != nil {
		return fmt.Errorf("refusing to restore audit log: %w", err)
	}

	l.appendMu.Lock()
	defer l.appendMu.Unlock()
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.events) > 0 {
		return fmt.Errorf("refusing to restore audit log: log already holds %d events", len(l.events))
	}
	l.events = append([]Event(nil), events...)

	l.logger.Info("audit log restored", zap.Int("events", len(events)))
	return nil
}

// snapshot returns the current events without copying. Stored events are
// never modified, so the returned slice stays valid after later appends.
func (l *Log) snapshot() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.events[:len(l.events):len(l.events)]
}

func (l *Log) last() Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.events) == 0 {
		return Event{}
	}
	return l.events[len(l.events)-1]
}

func verifyChain(events []Event) error {
	prevHash := ""
	for i, ev := range events {
		if ev.Sequence != uint64(i)+1 {
			return fmt.Errorf("sequence gap: expected %d, found %d", i+1, ev.Sequence)
		}
		if ev.PrevHash != prevHash {
			return fmt.Errorf("event %d does not link to its predecessor", ev.Sequence)
		}
		if ev.Hash != ev.computeHash() {
			return fmt.Errorf("event %d hash mismatch", ev.Sequence)
		}
		prevHash = ev.Hash
	}
	return nil
}
