package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Lllllllleong/documentquery/internal/models"
)

// MemoryRecords is an in-process RecordStore used by tests and local runs.
type MemoryRecords struct {
	mu      sync.RWMutex
	records map[string]models.DocumentRecord
	now     func() time.Time
}

// NewMemoryRecords returns an empty store.
func NewMemoryRecords() *MemoryRecords {
	return &MemoryRecords{records: make(map[string]models.DocumentRecord), now: time.Now}
}

func (m *MemoryRecords) Create(_ context.Context, rec *models.DocumentRecord) error {
	if rec.Status != models.StatusProcessing {
		return fmt.Errorf("%w: new record must be %s, got %s", models.ErrInvalidTransition, models.StatusProcessing, rec.Status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.ID]; ok {
		return fmt.Errorf("record %s already exists", rec.ID)
	}
	now := m.now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now
	m.records[rec.ID] = *rec
	return nil
}

func (m *MemoryRecords) Finalize(_ context.Context, rec *models.DocumentRecord) error {
	if err := rec.CheckInvariants(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.records[rec.ID]
	if !ok {
		return fmt.Errorf("record %s: %w", rec.ID, ErrNotFound)
	}
	if !models.CanTransition(current.Status, rec.Status) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, current.Status, rec.Status)
	}
	current.Status = rec.Status
	current.ExtractedData = rec.ExtractedData
	current.SearchableText = rec.SearchableText
	current.Error = rec.Error
	current.UpdatedAt = m.now().UTC()
	rec.UpdatedAt = current.UpdatedAt
	m.records[rec.ID] = current
	return nil
}

func (m *MemoryRecords) Get(_ context.Context, id string) (*models.DocumentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	return &rec, nil
}

func (m *MemoryRecords) FindByOwner(_ context.Context, ownerID string) ([]*models.DocumentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.DocumentRecord
	for _, rec := range m.records {
		if rec.OwnerID == ownerID {
			r := rec
			out = append(out, &r)
		}
	}
	SortRecords(out)
	return out, nil
}

// MemoryBlobs is an in-process BlobStore.
type MemoryBlobs struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryBlobs returns an empty blob store.
func NewMemoryBlobs() *MemoryBlobs {
	return &MemoryBlobs{blobs: make(map[string][]byte)}
}

func (m *MemoryBlobs) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[key]; ok {
		return "", fmt.Errorf("blob %s already exists", key)
	}
	m.blobs[key] = append([]byte(nil), data...)
	return "mem://" + key, nil
}

func (m *MemoryBlobs) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[key]
	if !ok {
		return nil, fmt.Errorf("blob %s: %w", key, ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}
