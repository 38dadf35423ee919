// Package loader turns uploaded files into domain documents: PDF page text
// extraction plus plain-text fallback, with source ids normalized to a
// storage-safe alphabet.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"docchat/internal/domain"
)

// NormalizeSource maps filesystem-unsafe characters in a file name (dash,
// dot, space) to underscores so it can serve as a chunk id prefix.
func NormalizeSource(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', '.', ' ':
			return '_'
		}
		return r
	}, name)
}

// Load reads a file from disk and extracts its text. PDF files are split
// into per-page sections; anything else is treated as plain text.
func Load(path string) (domain.Document, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return LoadPDF(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return FromText(filepath.Base(path), string(data)), nil
}

// FromText builds a single-page document from raw text.
func FromText(name, text string) domain.Document {
	return domain.Document{
		Source: NormalizeSource(name),
		Pages:  []domain.Page{{Number: 1, Text: text}},
	}
}

// LoadPDF extracts per-page plain text from a PDF file.
func LoadPDF(path string) (domain.Document, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("opening pdf %s: %w", path, err)
	}
	defer f.Close()

	doc := domain.Document{Source: NormalizeSource(filepath.Base(path))}
	for n := 1; n <= reader.NumPage(); n++ {
		page := reader.Page(n)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return domain.Document{}, fmt.Errorf("reading pdf page %d of %s: %w", n, path, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		doc.Pages = append(doc.Pages, domain.Page{Number: n, Text: text})
	}
	if len(doc.Pages) == 0 {
		return domain.Document{}, fmt.Errorf("no text extracted from %s", path)
	}
	return doc, nil
}
