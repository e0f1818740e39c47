package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/documentquery/internal/config"
	"github.com/Lllllllleong/documentquery/internal/models"
	"github.com/Lllllllleong/documentquery/internal/services"
)

var (
	uploadInstance *services.UploadFunction
	once           sync.Once
	initErr        error
)

func init() {
	config.SetupLogging(os.Getenv("LOG_LEVEL"))

	functions.CloudEvent("ExtractFromUpload", extractFromUpload)
}

// main is required by the Go Functions Framework.
func main() {}

// extractFromUpload runs extraction for a PDF finalized in the upload bucket.
func extractFromUpload(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		var p *services.Pipeline
		p, initErr = services.NewPipeline(context.Background())
		if initErr != nil {
			return
		}
		if p.Upload == nil {
			initErr = errors.New("UPLOAD_BUCKET is not configured")
			return
		}
		uploadInstance = p.Upload
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	return uploadInstance.Process(ctx, gcsEvent)
}
