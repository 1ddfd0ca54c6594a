// Package document extracts text from stored roster files.
package document

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNoPages is returned for documents without a first page
var ErrNoPages = errors.New("document has no pages")

// Extractor yields the text of a document's first page
type Extractor interface {
	FirstPageText(path string) (string, error)
}

// PDFExtractor reads PDFs with ledongthuc/pdf
type PDFExtractor struct{}

// NewPDFExtractor creates a PDF extractor
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// FirstPageText returns the first page with one text row per line
func (e *PDFExtractor) FirstPageText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf %s: %w", path, err)
	}
	defer f.Close()

	if r.NumPage() < 1 {
		return "", ErrNoPages
	}

	page := r.Page(1)
	if page.V.IsNull() {
		return "", ErrNoPages
	}

	rows, err := page.GetTextByRow()
	if err != nil {
		return "", fmt.Errorf("failed to read text of %s: %w", path, err)
	}

	return JoinRows(rows), nil
}

// JoinRows flattens extracted rows into newline separated lines. Words
// keep their leading spaces so day markers survive.
func JoinRows(rows pdf.Rows) string {
	var b strings.Builder
	for i, row := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		for _, word := range row.Content {
			b.WriteString(word.S)
		}
	}
	return b.String()
}
