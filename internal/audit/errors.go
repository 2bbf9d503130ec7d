package audit

import (
	"errors"
	"fmt"
)

// PersistenceError reports that the audit store could not record an event.
// The transition that produced the event did not happen and may be retried.
type PersistenceError struct {
	Sequence uint64
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("[AUDIT] failed to persist event %d: %v", e.Sequence, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsPersistence returns true if err (or any error in its chain) is a PersistenceError
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
