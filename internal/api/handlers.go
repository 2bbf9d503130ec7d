package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/septivank/invoice-review/internal/audit"
	"github.com/septivank/invoice-review/internal/extraction"
	"github.com/septivank/invoice-review/internal/ingest"
	"github.com/septivank/invoice-review/internal/logging"
	"github.com/septivank/invoice-review/internal/review"
	"github.com/septivank/invoice-review/internal/service"
	"go.uber.org/zap"
)

// maxJSONBody bounds every JSON request body
const maxJSONBody = 1 << 20

// Handler serves the review HTTP API on top of the queue controller
type Handler struct {
	controller     *service.QueueController
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(controller *service.QueueController, maxUploadBytes int64, logger *zap.Logger) *Handler {
	return &Handler{
		controller:     controller,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// intakeRequest is the body of POST /records
type intakeRequest struct {
	SourceImageRef string          `json:"source_image_ref"`
	Payload        json.RawMessage `json:"payload"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"pending": len(h.controller.ListPending()),
	})
}

func (h *Handler) intake(w http.ResponseWriter, r *http.Request) {
	var req intakeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.fail(w, r, &review.Error{Kind: review.ErrInvalidPayload, Reason: fmt.Sprintf("malformed request body: %v", err)})
		return
	}

	var payload *extraction.Payload
	if len(bytes.TrimSpace(req.Payload)) > 0 && !bytes.Equal(bytes.TrimSpace(req.Payload), []byte("null")) {
		p, err := extraction.Decode(req.Payload)
		if err != nil {
			h.fail(w, r, &review.Error{Kind: review.ErrInvalidPayload, Reason: err.Error()})
			return
		}
		payload = p
	}

	item, err := h.controller.Intake(r.Context(), payload, ingest.ImageRef(req.SourceImageRef))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	// Multipart framing needs headroom above the file limit
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+maxJSONBody)

	file, header, err := r.FormFile("file")
	if err != nil {
		h.fail(w, r, &ingest.IngestionError{Reason: "multipart field \"file\" is required", Err: err})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.fail(w, r, &ingest.IngestionError{Reason: "failed to read upload", Err: err})
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}

	item, err := h.controller.Upload(r.Context(), data, mimeType)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.controller.ListPending())
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	item, err := h.controller.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		h.fail(w, r, &review.Error{Kind: review.ErrValidation, RecordID: chi.URLParam(r, "id"), Reason: "request body too large"})
		return
	}

	item, err := h.controller.EditJSON(r.Context(), chi.URLParam(r, "id"), body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// decision adapts one of the controller's id-only transitions to a handler
func (h *Handler) decision(op func(ctx context.Context, id string) (service.QueueItem, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := op(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

func (h *Handler) auditTrail(w http.ResponseWriter, r *http.Request) {
	events := h.controller.AuditTrail(r.URL.Query().Get("record_id"))
	if events == nil {
		events = []audit.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := errorResponse(err)

	logger := logging.WithRequestID(h.logger, middleware.GetReqID(r.Context()))
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.String("kind", resp.Kind),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", fields...)
	} else {
		logger.Info("request rejected", fields...)
	}

	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
