package services

import (
	"errors"
	"fmt"

	"github.com/Lllllllleong/documentquery/internal/inference"
)

// Error kinds returned by the extraction and search functions. Callers map
// them onto transport status codes with errors.Is.
var (
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
	ErrServiceUnavailable = inference.ErrServiceUnavailable
	ErrTimeout            = inference.ErrTimeout
	ErrInternal           = errors.New("internal error")
)

// User-facing messages.
const (
	MsgUploadFailed        = "File upload failed"
	MsgInvalidFileType     = "Invalid file type. Only PDF files are allowed"
	MsgFileNotFound        = "File not found"
	MsgServiceUnavailable  = "Gemini AI service is not available. Please check your API key configuration."
	MsgExtractionSucceeded = "Data extracted successfully"
	MsgSearchSucceeded     = "Search completed successfully"
	MsgFallbackNote        = "Failed to parse extracted data as JSON. Using fallback structure."
	MsgFallbackText        = "Failed to extract structured data from PDF. Raw text extraction failed."
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// classify keeps known error kinds and folds everything else into ErrInternal.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrServiceUnavailable, ErrTimeout, ErrInternal} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrInternal, err)
}
