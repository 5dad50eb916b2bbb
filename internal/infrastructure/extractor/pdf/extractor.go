package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/kirillkom/statute-rag/internal/core/ports"
	"github.com/ledongthuc/pdf"
)

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
	return ExtractPages(ctx, raw)
}

// ExtractPages returns the plain text of every non-empty page. Pages whose
// content stream cannot be decoded are skipped.
func ExtractPages(ctx context.Context, raw []byte) ([]domain.Page, error) {
	doc, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse pdf", err)
	}

	pages := make([]domain.Page, 0, doc.NumPage())
	for i := 1; i <= doc.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := doc.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, domain.Page{PageNum: i, Text: text})
	}
	return pages, nil
}
