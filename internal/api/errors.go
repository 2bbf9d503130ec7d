package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/septivank/invoice-review/internal/audit"
	"github.com/septivank/invoice-review/internal/extraction"
	"github.com/septivank/invoice-review/internal/ingest"
	"github.com/septivank/invoice-review/internal/review"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error    string `json:"error"`
	Kind     string `json:"kind"`
	RecordID string `json:"record_id,omitempty"`
}

// classify maps an error from the controller to an HTTP status and a kind
func classify(err error) (int, string) {
	var (
		ingestErr *ingest.IngestionError
		extErr    *extraction.ExtractionError
	)

	switch {
	case errors.Is(err, review.ErrInvalidPayload):
		return http.StatusBadRequest, "invalid_payload"
	case errors.Is(err, review.ErrValidation):
		return http.StatusUnprocessableEntity, "validation"
	case errors.Is(err, review.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, review.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case audit.IsPersistence(err):
		return http.StatusServiceUnavailable, "persistence"
	case errors.As(err, &ingestErr):
		return http.StatusBadRequest, "ingestion"
	case errors.Is(err, extraction.ErrUnavailable):
		return http.StatusServiceUnavailable, "extraction_unavailable"
	case errors.As(err, &extErr):
		return http.StatusBadGateway, "extraction"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "cancelled"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func errorResponse(err error) (int, ErrorResponse) {
	status, kind := classify(err)
	resp := ErrorResponse{Error: err.Error(), Kind: kind}

	var reviewErr *review.Error
	if errors.As(err, &reviewErr) {
		resp.RecordID = reviewErr.RecordID
	}
	if status == http.StatusInternalServerError {
		resp.Error = "internal server error"
	}
	return status, resp
}
