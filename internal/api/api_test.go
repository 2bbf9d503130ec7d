package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/septivank/invoice-review/internal/audit"
	"github.com/septivank/invoice-review/internal/extraction"
	"github.com/septivank/invoice-review/internal/ingest"
	"github.com/septivank/invoice-review/internal/review"
	"github.com/septivank/invoice-review/internal/service"
	"github.com/septivank/invoice-review/internal/triage"
	"github.com/septivank/invoice-review/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubRenderer struct{}

func (stubRenderer) Render(_ context.Context, data []byte, mimeType string) (ingest.ImageRef, error) {
	if mimeType != ingest.MimePNG {
		return "", &ingest.IngestionError{MimeType: mimeType, Reason: "unsupported content type"}
	}
	return "upload.png", nil
}

func (stubRenderer) Discard(ingest.ImageRef) error { return nil }

type stubExtractor struct {
	confidence float64
	err        error
}

func (s stubExtractor) Extract(context.Context, ingest.ImageRef) (*extraction.Payload, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &extraction.Payload{Confidence: s.confidence}, nil
}

type failingStore struct{}

func (failingStore) AppendEvent(context.Context, audit.Event) error {
	return errors.New("database unavailable")
}

func newServer(t *testing.T, store audit.Store, extractor extraction.Extractor) *httptest.Server {
	t.Helper()
	logger := zap.NewNop()
	log := audit.NewLog(store, logger)
	v := validator.NewValidator(400)
	queue := review.NewQueue(log, v, logger)
	controller := service.NewQueueController(queue, log, triage.NewClassifier(90, 70), v, stubRenderer{}, extractor, nil, logger)

	srv := httptest.NewServer(NewRouter(NewHandler(controller, 1<<20, logger)))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func createRecord(t *testing.T, baseURL string, confidence float64) service.QueueItem {
	t.Helper()
	body := fmt.Sprintf(`{"source_image_ref": "inv.png", "payload": {"country": "FR", "confidence": %g}}`, confidence)
	resp, raw := do(t, http.MethodPost, baseURL+"/records", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	var item service.QueueItem
	require.NoError(t, json.Unmarshal(raw, &item))
	return item
}

func decodeError(t *testing.T, raw []byte) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

func TestHealth(t *testing.T) {
	srv := newServer(t, nil, nil)

	resp, raw := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status": "ok", "pending": 0}`, string(raw))
}

func TestIntakeAndList(t *testing.T) {
	srv := newServer(t, nil, nil)

	first := createRecord(t, srv.URL, 95)
	second := createRecord(t, srv.URL, 50)
	assert.Equal(t, review.StatusPending, first.Status)
	assert.Equal(t, "auto-approve ready", first.TierLabel)
	assert.Equal(t, triage.Low, second.Tier)

	resp, raw := do(t, http.MethodGet, srv.URL+"/records", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var items []service.QueueItem
	require.NoError(t, json.Unmarshal(raw, &items))
	require.Len(t, items, 2)
	assert.Equal(t, first.ID, items[0].ID)
	assert.Equal(t, second.ID, items[1].ID)
}

func TestIntake_InvalidPayload(t *testing.T) {
	srv := newServer(t, nil, nil)

	tests := map[string]string{
		"missing payload":   `{"source_image_ref": "a.png"}`,
		"null payload":      `{"source_image_ref": "a.png", "payload": null}`,
		"no confidence":     `{"source_image_ref": "a.png", "payload": {"country": "FR"}}`,
		"unknown field":     `{"source_image_ref": "a.png", "payload": {"confidence": 80, "tax": 1}}`,
		"malformed request": `{"source_image_ref":`,
		"missing image ref": `{"payload": {"confidence": 80}}`,
		"empty image ref":   `{"source_image_ref": "", "payload": {"confidence": 80}}`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			resp, raw := do(t, http.MethodPost, srv.URL+"/records", body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "invalid_payload", decodeError(t, raw).Kind)
		})
	}
}

func TestGet_NotFound(t *testing.T) {
	srv := newServer(t, nil, nil)

	resp, raw := do(t, http.MethodGet, srv.URL+"/records/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	errResp := decodeError(t, raw)
	assert.Equal(t, "not_found", errResp.Kind)
	assert.Equal(t, "missing", errResp.RecordID)
}

func TestEditPayload(t *testing.T) {
	srv := newServer(t, nil, nil)
	item := createRecord(t, srv.URL, 60)

	resp, raw := do(t, http.MethodPut, srv.URL+"/records/"+item.ID+"/payload", `{"country": "DE", "confidence": 92}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var updated service.QueueItem
	require.NoError(t, json.Unmarshal(raw, &updated))
	assert.Equal(t, "DE", *updated.Payload.Country)
	assert.Equal(t, triage.High, updated.Tier)
}

func TestEditPayload_Validation(t *testing.T) {
	srv := newServer(t, nil, nil)
	item := createRecord(t, srv.URL, 60)

	tests := map[string]string{
		"confidence above range": `{"confidence": 140}`,
		"negative usage":         `{"energy_usage_kwh": -3, "confidence": 80}`,
		"period reversed":        `{"billing_period": {"start_date": "2024-03-01", "end_date": "2024-02-01"}, "confidence": 80}`,
		"not json":               `nope`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			resp, raw := do(t, http.MethodPut, srv.URL+"/records/"+item.ID+"/payload", body)
			assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

			errResp := decodeError(t, raw)
			assert.Equal(t, "validation", errResp.Kind)
			assert.Equal(t, item.ID, errResp.RecordID)
		})
	}

	resp, raw := do(t, http.MethodGet, srv.URL+"/records/"+item.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var current service.QueueItem
	require.NoError(t, json.Unmarshal(raw, &current))
	assert.Equal(t, 60.0, current.Payload.Confidence)
}

func TestDecisions(t *testing.T) {
	srv := newServer(t, nil, nil)
	item := createRecord(t, srv.URL, 75)

	resp, raw := do(t, http.MethodPost, srv.URL+"/records/"+item.ID+"/flag", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	resp, raw = do(t, http.MethodPost, srv.URL+"/records/"+item.ID+"/approve", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var approved service.QueueItem
	require.NoError(t, json.Unmarshal(raw, &approved))
	assert.Equal(t, review.StatusApproved, approved.Status)

	resp, raw = do(t, http.MethodPost, srv.URL+"/records/"+item.ID+"/reject", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", decodeError(t, raw).Kind)

	resp, raw = do(t, http.MethodGet, srv.URL+"/audit?record_id="+item.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var events []audit.Event
	require.NoError(t, json.Unmarshal(raw, &events))
	require.Len(t, events, 3)
	assert.Equal(t, audit.KindUploaded, events[0].Kind)
	assert.Equal(t, audit.KindFlagged, events[1].Kind)
	assert.Equal(t, audit.KindApproved, events[2].Kind)
}

func TestAudit_Empty(t *testing.T) {
	srv := newServer(t, nil, nil)

	resp, raw := do(t, http.MethodGet, srv.URL+"/audit", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestPersistenceFailure(t *testing.T) {
	srv := newServer(t, failingStore{}, nil)

	resp, raw := do(t, http.MethodPost, srv.URL+"/records", `{"source_image_ref": "a.png", "payload": {"confidence": 80}}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "persistence", decodeError(t, raw).Kind)

	resp, raw = do(t, http.MethodGet, srv.URL+"/records", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(raw))
}

func upload(t *testing.T, baseURL, contentType string, data []byte) (*http.Response, []byte) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="invoice"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(baseURL+"/uploads", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func TestUpload(t *testing.T) {
	t.Run("queued", func(t *testing.T) {
		srv := newServer(t, nil, stubExtractor{confidence: 91})
		resp, raw := upload(t, srv.URL, ingest.MimePNG, []byte("png-bytes"))
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

		var item service.QueueItem
		require.NoError(t, json.Unmarshal(raw, &item))
		assert.Equal(t, ingest.ImageRef("upload.png"), item.SourceImageRef)
	})

	t.Run("unsupported type", func(t *testing.T) {
		srv := newServer(t, nil, stubExtractor{confidence: 91})
		resp, raw := upload(t, srv.URL, "text/csv", []byte("a,b"))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "ingestion", decodeError(t, raw).Kind)
	})

	t.Run("extraction failed", func(t *testing.T) {
		srv := newServer(t, nil, stubExtractor{err: extraction.NewExtractionError("timeout", nil)})
		resp, raw := upload(t, srv.URL, ingest.MimePNG, []byte("png-bytes"))
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		assert.Equal(t, "extraction", decodeError(t, raw).Kind)
	})

	t.Run("no extractor", func(t *testing.T) {
		srv := newServer(t, nil, nil)
		resp, raw := upload(t, srv.URL, ingest.MimePNG, []byte("png-bytes"))
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "extraction_unavailable", decodeError(t, raw).Kind)
	})

	t.Run("missing file", func(t *testing.T) {
		srv := newServer(t, nil, nil)
		resp, raw := do(t, http.MethodPost, srv.URL+"/uploads", `{}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "ingestion", decodeError(t, raw).Kind)
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{&review.Error{Kind: review.ErrInvalidState, RecordID: "r"}, http.StatusConflict, "invalid_state"},
		{&audit.PersistenceError{Sequence: 1, Err: errors.New("x")}, http.StatusServiceUnavailable, "persistence"},
		{fmt.Errorf("wrapped: %w", context.Canceled), http.StatusServiceUnavailable, "cancelled"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		status, kind := classify(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.kind, kind, tt.err.Error())
	}
}
