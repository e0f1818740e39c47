package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/Lllllllleong/documentquery/internal/gcp"
	"github.com/Lllllllleong/documentquery/internal/inference"
	"github.com/Lllllllleong/documentquery/internal/metrics"
	"github.com/Lllllllleong/documentquery/internal/models"
	"github.com/Lllllllleong/documentquery/internal/store"
	"github.com/google/uuid"
)

// Extraction outcomes, also used as metric labels.
const (
	OutcomeCompleted = "completed"
	OutcomeDegraded  = "degraded"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
)

// ExtractorConfig holds the limits applied to every upload.
type ExtractorConfig struct {
	MaxFileSize     int64
	AllowedFileType string
	// Timeout bounds the inference call; zero means unbounded.
	Timeout time.Duration
}

// ExtractRequest is one validated-or-not upload.
type ExtractRequest struct {
	OwnerID      string
	OriginalName string
	ContentType  string
	Data         []byte
	RequestID    string
}

// ExtractorFunction drives a document from upload to a terminal record.
type ExtractorFunction struct {
	records   store.RecordStore
	blobs     store.BlobStore
	inference *inference.Client
	validator Validator
	config    ExtractorConfig
	newID     func() string
}

// NewExtractor wires the extraction pipeline.
func NewExtractor(records store.RecordStore, blobs store.BlobStore, client *inference.Client, config ExtractorConfig) *ExtractorFunction {
	return &ExtractorFunction{
		records:   records,
		blobs:     blobs,
		inference: client,
		validator: Validator{MaxSize: config.MaxFileSize, AllowedType: config.AllowedFileType},
		config:    config,
		newID:     uuid.NewString,
	}
}

// Process validates the upload, creates the record in processing, runs
// extraction and persists the terminal state before returning.
func (f *ExtractorFunction) Process(ctx context.Context, req *ExtractRequest) (*models.ExtractResponse, error) {
	logCtx := slog.With("ownerId", req.OwnerID, "requestId", req.RequestID, "fileName", req.OriginalName)

	if err := f.validate(req); err != nil {
		logCtx.Warn("Upload rejected.", "error", err, "contentType", req.ContentType, "sizeBytes", len(req.Data))
		metrics.ExtractionsTotal.WithLabelValues(OutcomeRejected).Inc()
		return nil, err
	}

	id := f.newID()
	logCtx = logCtx.With("recordId", id)
	rec := models.NewDocumentRecord(id, req.OwnerID, SanitizeDisplayName(req.OriginalName), req.OriginalName, req.ContentType, int64(len(req.Data)))
	rec.ContentHash = calculateContentHash(req.Data)
	if pages, err := InspectPDF(req.Data); err != nil {
		logCtx.Debug("Could not read page count; continuing without it.", "error", err)
	} else {
		rec.PageCount = pages
	}

	uri, err := f.blobs.Put(ctx, rawContentKey(req.OwnerID, id), req.ContentType, req.Data)
	if err != nil {
		logCtx.Error("Failed to store raw content", "error", err)
		metrics.ExtractionsTotal.WithLabelValues(OutcomeFailed).Inc()
		return nil, fmt.Errorf("%w: store raw content: %w", ErrInternal, err)
	}
	rec.RawContentURI = uri

	if err := f.records.Create(ctx, rec); err != nil {
		logCtx.Error("Failed to create record", "error", err)
		metrics.ExtractionsTotal.WithLabelValues(OutcomeFailed).Inc()
		return nil, fmt.Errorf("%w: create record: %w", ErrInternal, err)
	}
	logCtx.Info("Document processing started.", "contentHash", rec.ContentHash, "pageCount", rec.PageCount)

	if err := f.extract(ctx, logCtx, rec, req.Data); err != nil {
		metrics.ExtractionsTotal.WithLabelValues(OutcomeFailed).Inc()
		return nil, err
	}

	outcome := OutcomeCompleted
	if rec.Degraded() {
		outcome = OutcomeDegraded
	}
	metrics.ExtractionsTotal.WithLabelValues(outcome).Inc()
	logCtx.Info("Document processing completed.", "outcome", outcome)

	return &models.ExtractResponse{
		RecordID:      rec.ID,
		DisplayName:   rec.DisplayName,
		ExtractedData: rec.ExtractedData,
	}, nil
}

func (f *ExtractorFunction) validate(req *ExtractRequest) error {
	if req.OwnerID == "" {
		return &ValidationError{Field: "ownerId", Message: "owner is required"}
	}
	if len(req.Data) == 0 {
		return &ValidationError{Field: "file", Message: MsgUploadFailed}
	}
	return f.validator.Validate(req.ContentType, int64(len(req.Data)))
}

// extract runs inference on a record already persisted in processing and
// finalizes it.
func (f *ExtractorFunction) extract(ctx context.Context, logCtx *slog.Logger, rec *models.DocumentRecord, data []byte) error {
	if !f.inference.Available() {
		logCtx.Error("Inference is not configured", "reason", f.inference.Reason())
		return f.handleFailure(ctx, logCtx, rec, MsgServiceUnavailable, fmt.Errorf("%w: %s", ErrServiceUnavailable, f.inference.Reason()))
	}

	logCtx.Debug("Sending document to the model.")
	start := time.Now()
	text, err := f.inference.Infer(ctx, gcp.ExtractionInstructions(rec.PageCount), inference.Bytes(data, rec.ContentType), f.config.Timeout)
	metrics.ObserveInference("extract", start)
	if err != nil {
		message := err.Error()
		if errors.Is(err, ErrServiceUnavailable) {
			message = MsgServiceUnavailable
		}
		return f.handleFailure(ctx, logCtx, rec, message, err)
	}
	logCtx.Debug("Raw response from the model.", "rawResponse", truncate(text, 500))

	extracted, note := interpretExtraction(logCtx, text, rec.DisplayName)
	if err := rec.Complete(extracted, note); err != nil {
		return f.handleFailure(ctx, logCtx, rec, "failed to complete record", err)
	}
	if err := f.records.Finalize(context.WithoutCancel(ctx), rec); err != nil {
		logCtx.Error("CRITICAL: Failed to persist completed record", "error", err)
		return fmt.Errorf("%w: finalize record: %w", ErrInternal, err)
	}
	return nil
}

// handleFailure marks the record failed, persists it and returns the
// classified error. A failed status write is logged but does not mask the
// original error.
func (f *ExtractorFunction) handleFailure(ctx context.Context, logCtx *slog.Logger, rec *models.DocumentRecord, message string, cause error) error {
	logCtx.Error("Extraction failed", "error", cause)
	if err := rec.Fail(message); err != nil {
		logCtx.Error("CRITICAL: Record could not be marked failed", "error", err)
		return classify(cause)
	}
	if err := f.records.Finalize(context.WithoutCancel(ctx), rec); err != nil {
		logCtx.Error("CRITICAL: Failed to update record status to failed", "error", err)
	}
	return classify(cause)
}

// interpretExtraction turns model output into extracted data. Output that
// cannot be parsed, even after repair, yields the fallback structure and a
// note for the record's error field.
func interpretExtraction(logCtx *slog.Logger, raw, displayName string) (any, string) {
	cleaned := stripFences(raw)
	if v, ok := decodeJSON(cleaned); ok {
		return v, ""
	}
	if v, ok := decodeJSON(repairJSON(cleaned)); ok {
		logCtx.Info("Model output required JSON repair.")
		return v, ""
	}
	logCtx.Warn("Failed to parse extracted data as JSON", "rawResponse", truncate(raw, 500))
	return FallbackData(displayName), MsgFallbackNote
}

// FallbackData is the degraded structure stored when extraction output
// cannot be parsed.
func FallbackData(title string) map[string]any {
	return map[string]any{
		"pdf_title": title,
		"pages": []any{
			map[string]any{
				"page_number": 1,
				"content": []any{
					map[string]any{"type": "text", "text": MsgFallbackText},
				},
			},
		},
	}
}

func rawContentKey(ownerID, recordID string) string {
	return fmt.Sprintf("%s/%s", ownerID, recordID)
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
