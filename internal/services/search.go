package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Lllllllleong/documentquery/internal/gcp"
	"github.com/Lllllllleong/documentquery/internal/inference"
	"github.com/Lllllllleong/documentquery/internal/metrics"
	"github.com/Lllllllleong/documentquery/internal/models"
	"github.com/Lllllllleong/documentquery/internal/store"
	"golang.org/x/sync/errgroup"
)

// SearchConfig bounds the per-document fan-out.
type SearchConfig struct {
	// Timeout bounds each document's inference call.
	Timeout     time.Duration
	Concurrency int
}

// SearchRequest asks one question over an owner's documents.
type SearchRequest struct {
	OwnerID   string
	Query     string
	RecordID  string
	RequestID string
}

// SearchFunction answers a query against every document in scope.
type SearchFunction struct {
	records   store.RecordStore
	inference *inference.Client
	config    SearchConfig
}

// NewSearch wires the search pipeline.
func NewSearch(records store.RecordStore, client *inference.Client, config SearchConfig) *SearchFunction {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &SearchFunction{records: records, inference: client, config: config}
}

// Process resolves the scope, fans out one bounded inference call per
// document and returns the answers in scope order. Per-document failures
// are logged and omitted.
func (f *SearchFunction) Process(ctx context.Context, req *SearchRequest) (*models.SearchResponse, error) {
	logCtx := slog.With("ownerId", req.OwnerID, "requestId", req.RequestID)

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, &ValidationError{Field: "query", Message: "Missing required fields: query"}
	}
	if req.OwnerID == "" {
		return nil, &ValidationError{Field: "ownerId", Message: "owner is required"}
	}

	scopeLabel := req.RecordID
	if scopeLabel == "" {
		scopeLabel = "all"
	}
	logCtx = logCtx.With("scope", scopeLabel)
	logCtx.Debug("Searching documents.", "query", query)

	records, err := store.ResolveScope(ctx, f.records, req.OwnerID, req.RecordID)
	if err != nil {
		logCtx.Error("Failed to resolve search scope", "error", err)
		return nil, fmt.Errorf("%w: resolve scope: %w", ErrInternal, err)
	}
	if len(records) == 0 {
		logCtx.Warn("No files found for search.")
		return nil, fmt.Errorf("%w: %s", ErrNotFound, MsgFileNotFound)
	}

	if !f.inference.Available() {
		logCtx.Error("Inference is not configured", "reason", f.inference.Reason())
		return nil, fmt.Errorf("%w: %s", ErrServiceUnavailable, f.inference.Reason())
	}

	slots := make([]*models.SearchResult, len(records))
	var g errgroup.Group
	g.SetLimit(f.config.Concurrency)
	for i, rec := range records {
		i, rec := i, rec
		g.Go(func() error {
			slots[i] = f.searchOne(ctx, logCtx.With("recordId", rec.ID), rec, query)
			return nil
		})
	}
	_ = g.Wait()

	results := make([]models.SearchResult, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			results = append(results, *r)
		}
	}
	logCtx.Info("Search completed.", "documents", len(records), "answered", len(results))
	return &models.SearchResponse{Query: req.Query, Results: results}, nil
}

// searchOne returns nil when the document is skipped or its call fails.
// A panic inside one task is contained to that task.
func (f *SearchFunction) searchOne(ctx context.Context, logCtx *slog.Logger, rec *models.DocumentRecord, query string) (result *models.SearchResult) {
	defer func() {
		if r := recover(); r != nil {
			logCtx.Error("Search task panicked", "panic", r)
			metrics.SearchDocumentsTotal.WithLabelValues("error").Inc()
			result = nil
		}
	}()

	if rec.ExtractedData == nil {
		logCtx.Warn("File has no extracted data.", "status", rec.Status)
		metrics.SearchDocumentsTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	serialized, err := searchableText(rec)
	if err != nil {
		logCtx.Error("Failed to serialize extracted data", "error", err)
		metrics.SearchDocumentsTotal.WithLabelValues("error").Inc()
		return nil
	}

	start := time.Now()
	raw, err := f.inference.Infer(ctx, gcp.SearchInstructions(query, serialized), inference.Text(""), f.config.Timeout)
	metrics.ObserveInference("search", start)
	if err != nil {
		outcome := "error"
		if errors.Is(err, ErrTimeout) {
			outcome = "timeout"
		}
		logCtx.Warn("Search failed for file", "error", err, "outcome", outcome)
		metrics.SearchDocumentsTotal.WithLabelValues(outcome).Inc()
		return nil
	}

	answer := DecodeAnswer(raw)
	logCtx.Debug("Search answer received.", "kind", answer.Kind.String(), "answer", truncate(strings.TrimSpace(raw), 100))
	metrics.SearchDocumentsTotal.WithLabelValues("answered").Inc()
	return &models.SearchResult{
		RecordID:   rec.ID,
		RecordName: rec.OriginalName,
		Answer:     answer.Value(),
	}
}

func searchableText(rec *models.DocumentRecord) (string, error) {
	if rec.SearchableText != nil {
		return *rec.SearchableText, nil
	}
	b, err := json.Marshal(rec.ExtractedData)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
