package store

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/documentquery/internal/gcp"
)

// GCSBlobs keeps raw content in a Cloud Storage bucket.
type GCSBlobs struct {
	bucket     *storage.BucketHandle
	bucketName string
}

// NewGCSBlobs returns a blob store over the named bucket.
func NewGCSBlobs(client *storage.Client, bucketName string) *GCSBlobs {
	return &GCSBlobs{bucket: client.Bucket(bucketName), bucketName: bucketName}
}

func (b *GCSBlobs) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if err := gcp.SaveToGCSAtomically(ctx, b.bucket, key, contentType, data); err != nil {
		return "", err
	}
	return fmt.Sprintf("gs://%s/%s", b.bucketName, key), nil
}

func (b *GCSBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := gcp.ReadObject(ctx, b.bucket, key, 0)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("blob %s: %w", key, ErrNotFound)
	}
	return data, err
}
