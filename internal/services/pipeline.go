package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/documentquery/internal/config"
	"github.com/Lllllllleong/documentquery/internal/gcp"
	"github.com/Lllllllleong/documentquery/internal/inference"
	"github.com/Lllllllleong/documentquery/internal/store"
)

// Pipeline bundles the functions built from one configuration. Each entry
// point builds it once and shares it across requests.
type Pipeline struct {
	Config    *config.Config
	Extractor *ExtractorFunction
	Search    *SearchFunction
	// Upload is nil when no object reader is available.
	Upload *UploadFunction

	extraction *inference.Client
	closers    []func() error
}

// NewPipeline loads the configuration from the environment and connects to
// Firestore, Cloud Storage and Vertex AI.
func NewPipeline(ctx context.Context) (*Pipeline, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return NewPipelineFromConfig(ctx, cfg)
}

// NewPipelineFromConfig builds the pipeline for cfg. In development, a
// missing project or bucket falls back to in-memory stores.
func NewPipelineFromConfig(ctx context.Context, cfg *config.Config) (*Pipeline, error) {
	extraction, search, closeVertex := newInferenceClients(ctx, cfg)

	if err := cfg.RequireCloud(); err != nil {
		if !cfg.IsDevelopment() {
			_ = closeVertex()
			return nil, err
		}
		slog.Warn("Cloud storage not configured; using in-memory stores.", "reason", err.Error())
		p := NewLocalPipeline(cfg, extraction, search)
		p.closers = append(p.closers, closeVertex)
		return p, nil
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
	if err != nil {
		_ = closeVertex()
		return nil, err
	}
	storageClient, err := gcp.NewStorageClient(ctx)
	if err != nil {
		_ = closeVertex()
		_ = firestoreClient.Close()
		return nil, err
	}

	records := store.NewFirestoreRecords(firestoreClient, cfg.CollectionName)
	blobs := store.NewGCSBlobs(storageClient, cfg.RawContentBucket)
	p := assemble(cfg, records, blobs, extraction, search, &gcp.BucketReader{Client: storageClient})
	p.closers = append(p.closers, closeVertex, firestoreClient.Close, storageClient.Close)

	slog.Info("Pipeline initialized.",
		"collection", cfg.CollectionName,
		"rawContentBucket", cfg.RawContentBucket,
		"inferenceAvailable", extraction.Available())
	return p, nil
}

// NewLocalPipeline builds a pipeline over in-memory stores.
func NewLocalPipeline(cfg *config.Config, extraction, search *inference.Client) *Pipeline {
	return assemble(cfg, store.NewMemoryRecords(), store.NewMemoryBlobs(), extraction, search, nil)
}

func assemble(cfg *config.Config, records store.RecordStore, blobs store.BlobStore, extraction, search *inference.Client, reader ObjectReader) *Pipeline {
	p := &Pipeline{
		Config: cfg,
		Extractor: NewExtractor(records, blobs, extraction, ExtractorConfig{
			MaxFileSize:     cfg.MaxFileSize,
			AllowedFileType: cfg.AllowedFileType,
			Timeout:         cfg.ExtractionTimeout,
		}),
		Search: NewSearch(records, search, SearchConfig{
			Timeout:     cfg.SearchTimeout,
			Concurrency: cfg.SearchConcurrency,
		}),
		extraction: extraction,
	}
	if reader != nil {
		p.Upload = NewUpload(p.Extractor, records, reader, UploadConfig{
			Bucket:      cfg.UploadBucket,
			MaxFileSize: cfg.MaxFileSize,
		})
	}
	return p
}

// newInferenceClients never fails: a Vertex AI setup error produces
// unconfigured clients that report the reason on every call.
func newInferenceClients(ctx context.Context, cfg *config.Config) (extraction, search *inference.Client, closer func() error) {
	noop := func() error { return nil }
	vertex, err := gcp.NewVertexClient(ctx, gcp.VertexConfig{
		ProjectID: cfg.ProjectID,
		Region:    cfg.VertexAIRegion,
		Model:     cfg.VertexAIModel,
	})
	if err != nil {
		slog.Warn("Vertex AI unavailable; extraction and search will be rejected.", "error", err)
		reason := err.Error()
		return inference.Unconfigured(reason, nil), inference.Unconfigured(reason, nil), noop
	}
	return inference.New(vertex.Extractor(), nil), inference.New(vertex.Searcher(), nil), vertex.Close
}

// InferenceAvailable reports whether extraction can reach a model.
func (p *Pipeline) InferenceAvailable() bool {
	return p.extraction.Available()
}

// Close releases every client opened by the pipeline.
func (p *Pipeline) Close() error {
	var errs []error
	for _, c := range p.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
