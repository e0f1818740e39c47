package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/documentquery/internal/models"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// recordDoc is the Firestore shape of a DocumentRecord. Extracted data is kept
// only in its serialized form: Firestore rejects nested arrays, which
// extraction output routinely contains.
type recordDoc struct {
	OwnerID        string    `firestore:"ownerId"`
	DisplayName    string    `firestore:"displayName"`
	OriginalName   string    `firestore:"originalName"`
	ContentType    string    `firestore:"contentType"`
	SizeBytes      int64     `firestore:"sizeBytes"`
	ContentHash    string    `firestore:"contentHash,omitempty"`
	PageCount      int       `firestore:"pageCount,omitempty"`
	RawContentURI  string    `firestore:"rawContentUri,omitempty"`
	SearchableText *string   `firestore:"searchableText"`
	Status         string    `firestore:"status"`
	Error          *string   `firestore:"error"`
	CreatedAt      time.Time `firestore:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

func toRecordDoc(rec *models.DocumentRecord) recordDoc {
	return recordDoc{
		OwnerID:        rec.OwnerID,
		DisplayName:    rec.DisplayName,
		OriginalName:   rec.OriginalName,
		ContentType:    rec.ContentType,
		SizeBytes:      rec.SizeBytes,
		ContentHash:    rec.ContentHash,
		PageCount:      rec.PageCount,
		RawContentURI:  rec.RawContentURI,
		SearchableText: rec.SearchableText,
		Status:         string(rec.Status),
		Error:          rec.Error,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}

func fromRecordDoc(id string, doc recordDoc) (*models.DocumentRecord, error) {
	rec := &models.DocumentRecord{
		ID:             id,
		OwnerID:        doc.OwnerID,
		DisplayName:    doc.DisplayName,
		OriginalName:   doc.OriginalName,
		ContentType:    doc.ContentType,
		SizeBytes:      doc.SizeBytes,
		ContentHash:    doc.ContentHash,
		PageCount:      doc.PageCount,
		RawContentURI:  doc.RawContentURI,
		SearchableText: doc.SearchableText,
		Status:         models.Status(doc.Status),
		Error:          doc.Error,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
	if rec.Status == models.StatusCompleted && doc.SearchableText != nil {
		var data any
		if err := json.Unmarshal([]byte(*doc.SearchableText), &data); err != nil {
			return nil, fmt.Errorf("record %s: decode extracted data: %w", id, err)
		}
		rec.ExtractedData = data
	}
	return rec, nil
}

// FirestoreRecords stores records as documents in one collection, keyed by
// record id.
type FirestoreRecords struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

// NewFirestoreRecords returns a store over the named collection.
func NewFirestoreRecords(client *firestore.Client, collection string) *FirestoreRecords {
	return &FirestoreRecords{client: client, collection: collection, now: time.Now}
}

func (s *FirestoreRecords) doc(id string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(id)
}

func (s *FirestoreRecords) Create(ctx context.Context, rec *models.DocumentRecord) error {
	if rec.Status != models.StatusProcessing {
		return fmt.Errorf("%w: new record must be %s, got %s", models.ErrInvalidTransition, models.StatusProcessing, rec.Status)
	}
	now := s.now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now
	if _, err := s.doc(rec.ID).Create(ctx, toRecordDoc(rec)); err != nil {
		return fmt.Errorf("failed to create record %s: %w", rec.ID, err)
	}
	return nil
}

// Finalize writes the terminal state inside a transaction so that a record
// that already left processing is never overwritten.
func (s *FirestoreRecords) Finalize(ctx context.Context, rec *models.DocumentRecord) error {
	if err := rec.CheckInvariants(); err != nil {
		return err
	}
	docRef := s.doc(rec.ID)
	updatedAt := s.now().UTC()

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(docRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("record %s: %w", rec.ID, ErrNotFound)
			}
			return err
		}
		current, err := snap.DataAt("status")
		if err != nil {
			return fmt.Errorf("record %s has no status: %w", rec.ID, err)
		}
		from, _ := current.(string)
		if !models.CanTransition(models.Status(from), rec.Status) {
			return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, from, rec.Status)
		}
		return tx.Update(docRef, []firestore.Update{
			{Path: "status", Value: string(rec.Status)},
			{Path: "searchableText", Value: rec.SearchableText},
			{Path: "error", Value: rec.Error},
			{Path: "updatedAt", Value: updatedAt},
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, models.ErrInvalidTransition) {
			return err
		}
		return fmt.Errorf("failed to finalize record %s: %w", rec.ID, err)
	}
	rec.UpdatedAt = updatedAt
	return nil
}

func (s *FirestoreRecords) Get(ctx context.Context, id string) (*models.DocumentRecord, error) {
	snap, err := s.doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("record %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get record %s: %w", id, err)
	}
	var doc recordDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode record %s: %w", id, err)
	}
	return fromRecordDoc(snap.Ref.ID, doc)
}

// FindByOwner returns the owner's records sorted in scope order. Sorting is
// done here to avoid requiring a composite index.
func (s *FirestoreRecords) FindByOwner(ctx context.Context, ownerID string) ([]*models.DocumentRecord, error) {
	iter := s.client.Collection(s.collection).Where("ownerId", "==", ownerID).Documents(ctx)
	defer iter.Stop()

	var out []*models.DocumentRecord
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query records for owner: %w", err)
		}
		var doc recordDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode record %s: %w", snap.Ref.ID, err)
		}
		rec, err := fromRecordDoc(snap.Ref.ID, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	SortRecords(out)
	return out, nil
}
