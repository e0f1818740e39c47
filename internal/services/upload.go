package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path"
	"strconv"
	"strings"

	"github.com/Lllllllleong/documentquery/internal/gcp"
	"github.com/Lllllllleong/documentquery/internal/models"
	"github.com/Lllllllleong/documentquery/internal/store"
)

// ObjectReader fetches an uploaded object.
type ObjectReader interface {
	ReadObject(ctx context.Context, bucket, objectName string, limit int64) ([]byte, error)
}

// UploadConfig selects the watched bucket.
type UploadConfig struct {
	Bucket      string
	MaxFileSize int64
}

// UploadFunction runs extraction for objects finalized in the upload bucket.
// Objects are named <ownerId>/<filename>.
type UploadFunction struct {
	extractor *ExtractorFunction
	records   store.RecordStore
	reader    ObjectReader
	config    UploadConfig
}

// NewUpload wires the upload-triggered extraction.
func NewUpload(extractor *ExtractorFunction, records store.RecordStore, reader ObjectReader, config UploadConfig) *UploadFunction {
	return &UploadFunction{extractor: extractor, records: records, reader: reader, config: config}
}

// Process handles one storage event. Returning nil acknowledges the event;
// only errors worth retrying are returned.
func (f *UploadFunction) Process(ctx context.Context, e models.GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	logCtx.Info("Processing new GCS object.")

	if f.config.Bucket != "" && e.Bucket != f.config.Bucket {
		logCtx.Warn("Event for an unexpected bucket. Skipping.", "expected", f.config.Bucket)
		return nil
	}
	ownerID, fileName, ok := splitUploadName(e.Name)
	if !ok {
		logCtx.Warn("Object name is not <ownerId>/<filename>. Skipping.")
		return nil
	}
	logCtx = logCtx.With("ownerId", ownerID)

	contentType := e.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(strings.ToLower(path.Ext(fileName)))
	}
	if size, err := strconv.ParseInt(e.Size, 10, 64); err == nil && f.config.MaxFileSize > 0 && size > f.config.MaxFileSize {
		logCtx.Warn("Upload exceeds the size limit. Skipping.", "sizeBytes", size)
		return nil
	}

	data, err := f.reader.ReadObject(ctx, e.Bucket, e.Name, f.config.MaxFileSize)
	if errors.Is(err, gcp.ErrObjectTooLarge) {
		logCtx.Warn("Upload exceeds the size limit. Skipping.", "error", err)
		return nil
	}
	if err != nil {
		logCtx.Error("Failed to download uploaded object", "error", err)
		return fmt.Errorf("failed to read upload: %w", err)
	}

	isDuplicate, existingID, err := f.isDuplicate(ctx, ownerID, calculateContentHash(data))
	if err != nil {
		logCtx.Error("Failed to check for duplicate", "error", err)
		return err
	}
	if isDuplicate {
		logCtx.Info("Duplicate file detected. Skipping.", "existingRecordId", existingID)
		return nil
	}

	res, err := f.extractor.Process(ctx, &ExtractRequest{
		OwnerID:      ownerID,
		OriginalName: fileName,
		ContentType:  contentType,
		Data:         data,
		RequestID:    e.Bucket + "/" + e.Name,
	})
	switch {
	case err == nil:
		logCtx.Info("Upload extracted.", "recordId", res.RecordID)
		return nil
	case errors.Is(err, ErrValidation), errors.Is(err, ErrServiceUnavailable), errors.Is(err, ErrTimeout):
		// Terminal: the record, if any, is already failed.
		logCtx.Warn("Upload not extracted.", "error", err)
		return nil
	default:
		return err
	}
}

// isDuplicate reports an existing record of the owner with the same content
// that has not failed.
func (f *UploadFunction) isDuplicate(ctx context.Context, ownerID, hash string) (bool, string, error) {
	recs, err := f.records.FindByOwner(ctx, ownerID)
	if err != nil {
		return false, "", fmt.Errorf("failed to query for duplicates: %w", err)
	}
	for _, r := range recs {
		if r.ContentHash == hash && r.Status != models.StatusFailed {
			return true, r.ID, nil
		}
	}
	return false, "", nil
}

func splitUploadName(name string) (ownerID, fileName string, ok bool) {
	ownerID, rest, found := strings.Cut(name, "/")
	if !found || ownerID == "" {
		return "", "", false
	}
	fileName = path.Base(rest)
	if rest == "" || fileName == "." || fileName == "/" || strings.HasSuffix(rest, "/") {
		return "", "", false
	}
	return ownerID, fileName, true
}
