package services

import (
	"fmt"
	"mime"
	"path"
	"regexp"
	"strings"
)

// Validator accepts or rejects an upload before anything is persisted.
type Validator struct {
	MaxSize     int64
	AllowedType string
}

// Validate checks the declared content type and size. It has no side effects.
func (v Validator) Validate(contentType string, size int64) error {
	if size <= 0 {
		return &ValidationError{Field: "file", Message: MsgUploadFailed}
	}
	if !sameMediaType(contentType, v.AllowedType) {
		return &ValidationError{Field: "contentType", Message: MsgInvalidFileType}
	}
	if v.MaxSize > 0 && size > v.MaxSize {
		return &ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("File too large. Maximum size is %d bytes", v.MaxSize),
		}
	}
	return nil
}

// sameMediaType compares media types ignoring case and parameters.
func sameMediaType(declared, allowed string) bool {
	mt, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return false
	}
	want, _, err := mime.ParseMediaType(allowed)
	if err != nil {
		return false
	}
	return mt == want
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	unsafeChar    = regexp.MustCompile(`[^A-Za-z0-9_.-]`)
)

// SanitizeDisplayName turns an uploaded file name into a display name:
// whitespace runs become "_" and every other character outside
// [A-Za-z0-9._-] is replaced with "_". The result is cosmetic and never
// used as a storage key.
func SanitizeDisplayName(name string) string {
	name = strings.TrimSpace(name)
	// Browsers on Windows may send the full client path.
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" {
		name = ""
	}
	name = whitespaceRun.ReplaceAllString(name, "_")
	name = unsafeChar.ReplaceAllString(name, "_")
	if strings.Trim(name, "_.") == "" {
		return "document"
	}
	return name
}
