package review

import (
	"errors"
	"fmt"

	"github.com/septivank/invoice-review/internal/audit"
)

// Business-rule error kinds. Match them with errors.Is.
var (
	ErrInvalidPayload = errors.New("invalid payload")
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("record not found")
	ErrInvalidState   = errors.New("invalid state transition")
)

// Error attributes a business-rule failure to a record and a reason
type Error struct {
	Kind     error
	RecordID string
	Reason   string
}

func (e *Error) Error() string {
	if e.RecordID == "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%v: record %s: %s", e.Kind, e.RecordID, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, recordID, reason string) *Error {
	return &Error{Kind: kind, RecordID: recordID, Reason: reason}
}

// IsRetryable returns true only for infrastructure failures. Business-rule
// errors must not be retried without changing the input.
func IsRetryable(err error) bool {
	return audit.IsPersistence(err)
}
