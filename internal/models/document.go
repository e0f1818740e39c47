package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a DocumentRecord.
type Status string

// Stored as these exact strings.
const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ErrInvalidTransition is returned when a status change would move a record
// backwards or out of a terminal state.
var ErrInvalidTransition = errors.New("invalid status transition")

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether from -> to is a legal move.
// Only processing -> completed and processing -> failed are legal.
func CanTransition(from, to Status) bool {
	return from == StatusProcessing && to.Terminal()
}

// DocumentRecord is one uploaded document and its extraction state.
type DocumentRecord struct {
	ID           string
	OwnerID      string
	DisplayName  string
	OriginalName string
	ContentType  string
	SizeBytes    int64
	ContentHash  string
	PageCount    int

	// RawContentURI points at the blob holding the original bytes.
	RawContentURI string

	ExtractedData  any
	SearchableText *string
	Status         Status
	Error          *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewDocumentRecord returns a record in the initial processing state.
func NewDocumentRecord(id, ownerID, displayName, originalName, contentType string, size int64) *DocumentRecord {
	return &DocumentRecord{
		ID:           id,
		OwnerID:      ownerID,
		DisplayName:  displayName,
		OriginalName: originalName,
		ContentType:  contentType,
		SizeBytes:    size,
		Status:       StatusProcessing,
	}
}

func (r *DocumentRecord) transition(to Status) error {
	if !CanTransition(r.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, to)
	}
	r.Status = to
	return nil
}

// Complete moves the record to completed with the given structured data.
// A non-empty note marks a degraded completion.
func (r *DocumentRecord) Complete(data any, note string) error {
	if data == nil {
		return fmt.Errorf("%w: completed record requires extracted data", ErrInvalidTransition)
	}
	text, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("serialize extracted data: %w", err)
	}
	if err := r.transition(StatusCompleted); err != nil {
		return err
	}
	s := string(text)
	r.ExtractedData = data
	r.SearchableText = &s
	r.Error = nil
	if note != "" {
		r.Error = &note
	}
	return nil
}

// Fail moves the record to failed. The message must be non-empty.
func (r *DocumentRecord) Fail(message string) error {
	if message == "" {
		message = "extraction failed"
	}
	if err := r.transition(StatusFailed); err != nil {
		return err
	}
	r.ExtractedData = nil
	r.SearchableText = nil
	r.Error = &message
	return nil
}

// Degraded reports whether the record completed through the fallback path.
func (r *DocumentRecord) Degraded() bool {
	return r.Status == StatusCompleted && r.Error != nil
}

// ErrorMessage returns the error note or "".
func (r *DocumentRecord) ErrorMessage() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}

// CheckInvariants verifies the status/data/error relationships hold.
func (r *DocumentRecord) CheckInvariants() error {
	if !r.Status.Valid() {
		return fmt.Errorf("unknown status %q", r.Status)
	}
	if r.ExtractedData != nil && r.Status != StatusCompleted {
		return fmt.Errorf("extracted data present while status is %s", r.Status)
	}
	if r.Status == StatusFailed && (r.ExtractedData != nil || r.Error == nil) {
		return fmt.Errorf("failed record must have an error and no extracted data")
	}
	return nil
}
