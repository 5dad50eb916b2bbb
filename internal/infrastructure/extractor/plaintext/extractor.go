package plaintext

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/kirillkom/statute-rag/internal/core/ports"
)

// Extractor reads UTF-8 text sources. Form feeds separate pages, as in
// pdftotext output.
type Extractor struct {
	storage ports.ObjectStorage
}

func NewExtractor(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

func (e *Extractor) Extract(ctx context.Context, src *domain.Source) ([]domain.Page, error) {
	reader, err := e.storage.Open(ctx, src.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read source document: %w", err)
	}

	if !utf8.Valid(raw) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract text", fmt.Errorf("not valid UTF-8: %s", src.Filename))
	}
	return SplitPages(string(raw)), nil
}

// SplitPages cuts text at form feeds and drops blank pages. Page numbers
// keep counting across dropped pages.
func SplitPages(text string) []domain.Page {
	var pages []domain.Page
	for i, part := range strings.Split(text, "\f") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pages = append(pages, domain.Page{PageNum: i + 1, Text: part})
	}
	return pages
}
