// Package extractor picks a text extractor by source type.
package extractor

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/kirillkom/statute-rag/internal/core/ports"
)

type Router struct {
	pdf  ports.TextExtractor
	text ports.TextExtractor
}

func NewRouter(pdf, text ports.TextExtractor) *Router {
	return &Router{pdf: pdf, text: text}
}

func (r *Router) Extract(ctx context.Context, src *domain.Source) ([]domain.Page, error) {
	if IsPDF(src) {
		return r.pdf.Extract(ctx, src)
	}
	return r.text.Extract(ctx, src)
}

func IsPDF(src *domain.Source) bool {
	if strings.EqualFold(strings.TrimSpace(src.MimeType), "application/pdf") {
		return true
	}
	return strings.EqualFold(filepath.Ext(src.Filename), ".pdf")
}
