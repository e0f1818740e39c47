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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/documentquery/internal/models"
	"github.com/Lllllllleong/documentquery/internal/services"
)

type mockExtractor struct {
	ProcessFunc func(ctx context.Context, req *services.ExtractRequest) (*models.ExtractResponse, error)
	last        *services.ExtractRequest
}

func (m *mockExtractor) Process(ctx context.Context, req *services.ExtractRequest) (*models.ExtractResponse, error) {
	m.last = req
	return m.ProcessFunc(ctx, req)
}

type mockSearcher struct {
	ProcessFunc func(ctx context.Context, req *services.SearchRequest) (*models.SearchResponse, error)
	last        *services.SearchRequest
}

func (m *mockSearcher) Process(ctx context.Context, req *services.SearchRequest) (*models.SearchResponse, error) {
	m.last = req
	return m.ProcessFunc(ctx, req)
}

func newTestRouter(ext Extractor, srch Searcher, dev bool) http.Handler {
	return NewRouter(NewHandler(ext, srch, func() bool { return true }, HandlerConfig{
		MaxFileSize: 1024,
		OwnerHeader: "X-Owner-Id",
		Development: dev,
	}))
}

func multipartBody(t *testing.T, field, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestExtract_Success(t *testing.T) {
	ext := &mockExtractor{ProcessFunc: func(_ context.Context, req *services.ExtractRequest) (*models.ExtractResponse, error) {
		return &models.ExtractResponse{RecordID: "r1", DisplayName: "a.pdf", ExtractedData: map[string]any{"pdf_title": "a"}}, nil
	}}
	router := newTestRouter(ext, &mockSearcher{}, false)

	body, ct := multipartBody(t, FileField, "a.pdf", "application/pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/extract", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("X-Owner-Id", "alice")
	req.Header.Set(RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))

	env := decodeEnvelope(t, rec)
	assert.Equal(t, true, env["success"])
	assert.Equal(t, services.MsgExtractionSucceeded, env["message"])
	assert.Nil(t, env["error"])
	assert.Equal(t, "req-1", env["requestId"])
	data := env["data"].(map[string]any)
	assert.Equal(t, "r1", data["recordId"])

	require.NotNil(t, ext.last)
	assert.Equal(t, "alice", ext.last.OwnerID)
	assert.Equal(t, "a.pdf", ext.last.OriginalName)
	assert.Equal(t, "application/pdf", ext.last.ContentType)
	assert.Equal(t, []byte("%PDF-1.4"), ext.last.Data)
	assert.Equal(t, "req-1", ext.last.RequestID)
}

func TestExtract_MissingOwnerIsUnauthorized(t *testing.T) {
	ext := &mockExtractor{}
	router := newTestRouter(ext, &mockSearcher{}, false)

	body, ct := multipartBody(t, FileField, "a.pdf", "application/pdf", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/extract", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "AUTH_ERROR", env["error"].(map[string]any)["code"])
	assert.Nil(t, ext.last)
}

func TestExtract_MissingFileIsValidationError(t *testing.T) {
	ext := &mockExtractor{}
	router := newTestRouter(ext, &mockSearcher{}, false)

	body, ct := multipartBody(t, "document", "a.pdf", "application/pdf", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/extract", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("X-Owner-Id", "alice")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, false, env["success"])
	assert.Nil(t, env["data"])
	errBody := env["error"].(map[string]any)
	assert.Equal(t, "Validation Error", errBody["type"])
	assert.Equal(t, "VALIDATION_ERROR", errBody["code"])
	assert.Equal(t, services.MsgUploadFailed, errBody["message"])
	fields := errBody["errors"].([]any)
	require.Len(t, fields, 1)
	assert.Equal(t, FileField, fields[0].(map[string]any)["field"])
	assert.Nil(t, ext.last)
}

func TestExtract_OversizedBodyIsRejected(t *testing.T) {
	ext := &mockExtractor{}
	router := newTestRouter(ext, &mockSearcher{}, false)

	body, ct := multipartBody(t, FileField, "a.pdf", "application/pdf", make([]byte, 1024+multipartOverhead+1))
	req := httptest.NewRequest(http.MethodPost, "/extract", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("X-Owner-Id", "alice")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Contains(t, env["message"], "File too large")
	assert.Nil(t, ext.last)
}

func TestExtract_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", &services.ValidationError{Field: "contentType", Message: services.MsgInvalidFileType}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unavailable", fmt.Errorf("extract: %w", services.ErrServiceUnavailable), http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{"timeout", fmt.Errorf("extract: %w", services.ErrTimeout), http.StatusGatewayTimeout, "TIMEOUT"},
		{"not found", services.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"internal", errors.New("firestore: deadline"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ext := &mockExtractor{ProcessFunc: func(context.Context, *services.ExtractRequest) (*models.ExtractResponse, error) {
				return nil, tc.err
			}}
			router := newTestRouter(ext, &mockSearcher{}, false)

			body, ct := multipartBody(t, FileField, "a.pdf", "application/pdf", []byte("x"))
			req := httptest.NewRequest(http.MethodPost, "/extract", body)
			req.Header.Set("Content-Type", ct)
			req.Header.Set("X-Owner-Id", "alice")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			env := decodeEnvelope(t, rec)
			errBody := env["error"].(map[string]any)
			assert.Equal(t, tc.code, errBody["code"])
			assert.NotContains(t, errBody, "detail", "no internal detail outside development")
		})
	}
}

func TestWriteError_InternalMessageIsGeneric(t *testing.T) {
	ext := &mockExtractor{ProcessFunc: func(context.Context, *services.ExtractRequest) (*models.ExtractResponse, error) {
		return nil, errors.New("secret connection string leaked")
	}}
	for _, dev := range []bool{false, true} {
		router := newTestRouter(ext, &mockSearcher{}, dev)
		body, ct := multipartBody(t, FileField, "a.pdf", "application/pdf", []byte("x"))
		req := httptest.NewRequest(http.MethodPost, "/extract", body)
		req.Header.Set("Content-Type", ct)
		req.Header.Set("X-Owner-Id", "alice")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		env := decodeEnvelope(t, rec)
		errBody := env["error"].(map[string]any)
		assert.Equal(t, "Internal server error", errBody["message"])
		assert.Equal(t, "Server Error", errBody["type"])
		if dev {
			assert.Contains(t, errBody["detail"], "secret connection string")
		} else {
			assert.NotContains(t, rec.Body.String(), "secret")
		}
	}
}

func TestSearch_Success(t *testing.T) {
	srch := &mockSearcher{ProcessFunc: func(_ context.Context, req *services.SearchRequest) (*models.SearchResponse, error) {
		return &models.SearchResponse{Query: req.Query, Results: []models.SearchResult{
			{RecordID: "r1", RecordName: "a.pdf", Answer: []any{"x"}},
		}}, nil
	}}
	router := newTestRouter(&mockExtractor{}, srch, false)

	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"query":"total?","recordId":" r1 "}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Owner-Id", "alice")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, services.MsgSearchSucceeded, env["message"])
	data := env["data"].(map[string]any)
	assert.Equal(t, "total?", data["query"])
	assert.Len(t, data["results"], 1)

	require.NotNil(t, srch.last)
	assert.Equal(t, "alice", srch.last.OwnerID)
	assert.Equal(t, "r1", srch.last.RecordID)
	assert.NotEmpty(t, srch.last.RequestID, "request id is generated when absent")
}

func TestSearch_DecodesAllDocumentsScope(t *testing.T) {
	srch := &mockSearcher{ProcessFunc: func(_ context.Context, req *services.SearchRequest) (*models.SearchResponse, error) {
		return &models.SearchResponse{Query: req.Query, Results: []models.SearchResult{}}, nil
	}}
	router := newTestRouter(&mockExtractor{}, srch, false)

	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"query":"  how many pages  "}`))
	req.Header.Set("X-Owner-Id", "alice")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, srch.last)
	assert.Equal(t, "  how many pages  ", srch.last.Query)
	assert.Empty(t, srch.last.RecordID)

	data := decodeEnvelope(t, rec)["data"].(map[string]any)
	assert.Equal(t, "  how many pages  ", data["query"])
	assert.Empty(t, data["results"])
}

func TestSearch_InvalidJSON(t *testing.T) {
	srch := &mockSearcher{}
	router := newTestRouter(&mockExtractor{}, srch, false)

	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"query":`))
	req.Header.Set("X-Owner-Id", "alice")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, srch.last)
}

func TestSearch_NotFound(t *testing.T) {
	srch := &mockSearcher{ProcessFunc: func(context.Context, *services.SearchRequest) (*models.SearchResponse, error) {
		return nil, fmt.Errorf("%w: no documents in scope", services.ErrNotFound)
	}}
	router := newTestRouter(&mockExtractor{}, srch, false)

	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"query":"q"}`))
	req.Header.Set("X-Owner-Id", "alice")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, services.MsgFileNotFound, env["message"])
}

func TestHealth(t *testing.T) {
	router := newTestRouter(&mockExtractor{}, &mockSearcher{}, false)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	data := env["data"].(map[string]any)
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, ServiceName, data["service"])
	assert.Equal(t, true, data["inference"])
	assert.NotEmpty(t, data["timestamp"])
}

func TestHandler_RejectsWrongMethod(t *testing.T) {
	h := NewHandler(&mockExtractor{}, &mockSearcher{}, nil, HandlerConfig{})
	rec := httptest.NewRecorder()
	h.Search(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
}

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}
