// Package store persists document records and their raw content.
package store

import (
	"context"
	"errors"
	"sort"

	"github.com/Lllllllleong/documentquery/internal/models"
)

// ErrNotFound is returned when a record or blob does not exist.
var ErrNotFound = errors.New("not found")

// RecordStore is the persistence boundary for document records. It stamps
// CreatedAt/UpdatedAt and refuses status changes that break the lifecycle.
type RecordStore interface {
	// Create stores a new record. The record must be in processing.
	Create(ctx context.Context, rec *models.DocumentRecord) error
	// Finalize writes a terminal record over its stored processing state.
	Finalize(ctx context.Context, rec *models.DocumentRecord) error
	Get(ctx context.Context, id string) (*models.DocumentRecord, error)
	FindByOwner(ctx context.Context, ownerID string) ([]*models.DocumentRecord, error)
}

// BlobStore holds the immutable raw bytes of each record.
type BlobStore interface {
	// Put writes data under key and returns a URI for the record. Writing an
	// existing key fails.
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// ResolveScope returns the records a search runs over: every record of the
// owner, or only recordID when it is set and owned by ownerID. The result is
// ordered by creation time, then id.
func ResolveScope(ctx context.Context, rs RecordStore, ownerID, recordID string) ([]*models.DocumentRecord, error) {
	if recordID != "" {
		rec, err := rs.Get(ctx, recordID)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if rec.OwnerID != ownerID {
			return nil, nil
		}
		return []*models.DocumentRecord{rec}, nil
	}

	recs, err := rs.FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	SortRecords(recs)
	return recs, nil
}

// SortRecords orders records by CreatedAt, breaking ties by ID.
func SortRecords(recs []*models.DocumentRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		}
		return recs[i].ID < recs[j].ID
	})
}
