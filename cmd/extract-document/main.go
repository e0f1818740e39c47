package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/documentquery/internal/api"
	"github.com/Lllllllleong/documentquery/internal/config"
	"github.com/Lllllllleong/documentquery/internal/metrics"
	"github.com/Lllllllleong/documentquery/internal/services"
)

var (
	handler *api.Handler
	once    sync.Once
	initErr error
)

func init() {
	config.SetupLogging(os.Getenv("LOG_LEVEL"))

	functions.HTTP("HandleExtract", metrics.Instrument("/extract", api.RequestID(http.HandlerFunc(handleExtract)).ServeHTTP))
}

// main is required by the Go Functions Framework.
func main() {}

func handleExtract(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		var p *services.Pipeline
		p, initErr = services.NewPipeline(context.Background())
		if initErr == nil {
			handler = api.NewPipelineHandler(p)
		}
	})
	if initErr != nil {
		slog.Error("CRITICAL: extractor initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	handler.Extract(w, r)
}
