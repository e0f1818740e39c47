package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Lllllllleong/documentquery/internal/models"
	"github.com/Lllllllleong/documentquery/internal/services"
)

// multipartOverhead is the allowance for multipart framing on top of the
// file size limit.
const multipartOverhead = 1 << 20

// FileField is the multipart field carrying the uploaded document.
const FileField = "file"

// ServiceName is reported by the health endpoint.
const ServiceName = "docquery"

// Extractor runs the extraction pipeline for one upload.
type Extractor interface {
	Process(ctx context.Context, req *services.ExtractRequest) (*models.ExtractResponse, error)
}

// Searcher answers one query.
type Searcher interface {
	Process(ctx context.Context, req *services.SearchRequest) (*models.SearchResponse, error)
}

// HandlerConfig controls request parsing and error detail.
type HandlerConfig struct {
	MaxFileSize int64
	OwnerHeader string
	Development bool
}

// Handler serves the extraction and search endpoints.
type Handler struct {
	extractor Extractor
	searcher  Searcher
	available func() bool
	config    HandlerConfig
}

// NewHandler builds a Handler. available reports whether inference is
// configured and may be nil.
func NewHandler(extractor Extractor, searcher Searcher, available func() bool, cfg HandlerConfig) *Handler {
	if cfg.OwnerHeader == "" {
		cfg.OwnerHeader = "X-Owner-Id"
	}
	return &Handler{extractor: extractor, searcher: searcher, available: available, config: cfg}
}

// NewPipelineHandler builds a Handler over p.
func NewPipelineHandler(p *services.Pipeline) *Handler {
	return NewHandler(p.Extractor, p.Search, p.InferenceAvailable, HandlerConfig{
		MaxFileSize: p.Config.MaxFileSize,
		OwnerHeader: p.Config.OwnerHeader,
		Development: p.Config.IsDevelopment(),
	})
}

func (h *Handler) owner(r *http.Request) (string, error) {
	owner := strings.TrimSpace(r.Header.Get(h.config.OwnerHeader))
	if owner == "" {
		return "", fmt.Errorf("%w: missing %s header", ErrUnauthorized, h.config.OwnerHeader)
	}
	return owner, nil
}

// Extract handles POST /extract with a multipart "file" field.
func (h *Handler) Extract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	owner, err := h.owner(r)
	if err != nil {
		writeError(w, r, err, h.config.Development)
		return
	}

	req, err := h.readUpload(w, r)
	if err != nil {
		writeError(w, r, err, h.config.Development)
		return
	}
	req.OwnerID = owner
	req.RequestID = RequestIDFrom(r.Context())

	res, err := h.extractor.Process(r.Context(), req)
	if err != nil {
		writeError(w, r, err, h.config.Development)
		return
	}
	writeSuccess(w, r, services.MsgExtractionSucceeded, res)
}

func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (*services.ExtractRequest, error) {
	limit := h.config.MaxFileSize
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	}
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, &services.ValidationError{
				Field:   FileField,
				Message: fmt.Sprintf("File too large. Maximum size is %d bytes", limit),
			}
		}
		return nil, &services.ValidationError{Field: FileField, Message: services.MsgUploadFailed}
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(FileField)
	if err != nil {
		return nil, &services.ValidationError{Field: FileField, Message: services.MsgUploadFailed}
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return &services.ExtractRequest{
		OriginalName: header.Filename,
		ContentType:  header.Header.Get("Content-Type"),
		Data:         data,
	}, nil
}

// Search handles POST /search with a JSON body.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	owner, err := h.owner(r)
	if err != nil {
		writeError(w, r, err, h.config.Development)
		return
	}

	var body models.SearchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil {
		writeError(w, r, &services.ValidationError{Message: "Invalid JSON body"}, h.config.Development)
		return
	}

	res, err := h.searcher.Process(r.Context(), &services.SearchRequest{
		OwnerID:   owner,
		Query:     body.Query,
		RecordID:  strings.TrimSpace(body.RecordID),
		RequestID: RequestIDFrom(r.Context()),
	})
	if err != nil {
		writeError(w, r, err, h.config.Development)
		return
	}
	writeSuccess(w, r, services.MsgSearchSucceeded, res)
}

// Health reports liveness and whether inference is configured.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	available := h.available != nil && h.available()
	writeSuccess(w, r, "OK", map[string]any{
		"service":   ServiceName,
		"status":    "ok",
		"inference": available,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
