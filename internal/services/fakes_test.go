package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/Lllllllleong/documentquery/internal/inference"
	"github.com/Lllllllleong/documentquery/internal/models"
	"github.com/Lllllllleong/documentquery/internal/store"
)

// mockGenerator is a function-field fake for inference.Generator.
type mockGenerator struct {
	GenerateFunc func(ctx context.Context, instructions string, payload inference.Payload) (string, error)

	mu    sync.Mutex
	calls int
}

func (m *mockGenerator) Generate(ctx context.Context, instructions string, payload inference.Payload) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.GenerateFunc == nil {
		return "", errors.New("GenerateFunc not set")
	}
	return m.GenerateFunc(ctx, instructions, payload)
}

func (m *mockGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func replying(text string) *mockGenerator {
	return &mockGenerator{GenerateFunc: func(context.Context, string, inference.Payload) (string, error) {
		return text, nil
	}}
}

// failingBlobs rejects every write.
type failingBlobs struct{}

func (failingBlobs) Put(context.Context, string, string, []byte) (string, error) {
	return "", errors.New("bucket unavailable")
}

func (failingBlobs) Get(context.Context, string) ([]byte, error) {
	return nil, store.ErrNotFound
}

// failingFinder fails owner queries.
type failingFinder struct {
	*store.MemoryRecords
}

func (failingFinder) FindByOwner(context.Context, string) ([]*models.DocumentRecord, error) {
	return nil, errors.New("firestore unavailable")
}

// minimalPDF builds a valid PDF with n empty pages and a correct xref table.
func minimalPDF(n int) []byte {
	var buf bytes.Buffer
	offsets := make([]int, 0, n+2)
	write := func(format string, args ...any) {
		fmt.Fprintf(&buf, format, args...)
	}

	buf.WriteString("%PDF-1.4\n")

	offsets = append(offsets, buf.Len())
	write("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	kids := make([]string, n)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	offsets = append(offsets, buf.Len())
	write("2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n", strings.Join(kids, " "), n)

	for i := 0; i < n; i++ {
		offsets = append(offsets, buf.Len())
		write("%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>\nendobj\n", i+3)
	}

	xref := buf.Len()
	write("xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		write("%010d 00000 n \n", off)
	}
	write("trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

var pageObject = regexp.MustCompile(`/Type\s*/Page\b`)

// pageMirroringGenerator emits one extracted page per page object in the PDF
// payload.
func pageMirroringGenerator() *mockGenerator {
	return &mockGenerator{GenerateFunc: func(_ context.Context, _ string, payload inference.Payload) (string, error) {
		n := len(pageObject.FindAllIndex(payload.Data, -1))
		pages := make([]string, n)
		for i := range pages {
			pages[i] = fmt.Sprintf(`{"page_number": %d, "content": [{"type": "text", "text": "page %d"}]}`, i+1, i+1)
		}
		return fmt.Sprintf("```json\n{\"pdf_title\": \"doc\", \"pages\": [%s]}\n```", strings.Join(pages, ",")), nil
	}}
}
