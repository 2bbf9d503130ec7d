package extraction

import (
	"errors"
	"fmt"
)

// ErrUnavailable means no extraction service is configured
var ErrUnavailable = errors.New("extraction service unavailable")

// ExtractionError reports a failed extraction: unparseable model output,
// timeout, refusal or an unreachable extraction service.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("extraction failed: %s", e.Reason)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// NewExtractionError wraps err as an extraction failure with a reason
func NewExtractionError(reason string, err error) *ExtractionError {
	return &ExtractionError{Reason: reason, Err: err}
}
