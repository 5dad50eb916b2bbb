// Package memstore serves an immutable, fully in-memory view of one corpus
// version. Snapshots are safe for concurrent readers without locking.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/kirillkom/statute-rag/internal/core/ports"
	"github.com/kirillkom/statute-rag/internal/infrastructure/lexical"
)

type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricL2     Metric = "l2"
)

type Snapshot struct {
	chunks  []domain.Chunk
	byID    map[string]int
	dim     int
	metric  Metric
	lexical *lexical.Index
	dense   ports.DenseIndex
}

type Option func(*Snapshot)

func WithMetric(metric Metric) Option {
	return func(s *Snapshot) {
		if metric == MetricL2 {
			s.metric = MetricL2
		}
	}
}

// WithDenseIndex routes dense lookups to an external index instead of the
// in-memory scan.
func WithDenseIndex(index ports.DenseIndex) Option {
	return func(s *Snapshot) {
		s.dense = index
	}
}

// New builds a snapshot. Chunk ids must be unique and all vectors must share
// one dimension; a corpus without vectors serves lexical lookups only.
func New(chunks []domain.Chunk, opts ...Option) (*Snapshot, error) {
	s := &Snapshot{
		chunks: make([]domain.Chunk, len(chunks)),
		byID:   make(map[string]int, len(chunks)),
		metric: MetricCosine,
	}
	copy(s.chunks, chunks)
	for _, opt := range opts {
		opt(s)
	}

	docs := make([]lexical.Document, 0, len(chunks))
	for i, chunk := range s.chunks {
		if chunk.ID == "" {
			return nil, domain.WrapError(domain.ErrInvalidInput, "build snapshot", fmt.Errorf("chunk %d has empty id", i))
		}
		if _, dup := s.byID[chunk.ID]; dup {
			return nil, domain.WrapError(domain.ErrInvalidInput, "build snapshot", fmt.Errorf("duplicate chunk id %q", chunk.ID))
		}
		s.byID[chunk.ID] = i

		if len(chunk.Vector) > 0 {
			if s.dim == 0 {
				s.dim = len(chunk.Vector)
			} else if len(chunk.Vector) != s.dim {
				return nil, domain.WrapError(domain.ErrEmbeddingDimension, "build snapshot",
					fmt.Errorf("chunk %q has dimension %d, expected %d", chunk.ID, len(chunk.Vector), s.dim))
			}
		}
		docs = append(docs, lexical.Document{ID: chunk.ID, Text: chunk.Text})
	}
	if s.dim > 0 {
		for _, chunk := range s.chunks {
			if len(chunk.Vector) == 0 {
				return nil, domain.WrapError(domain.ErrEmbeddingDimension, "build snapshot",
					fmt.Errorf("chunk %q has no vector", chunk.ID))
			}
		}
	}

	s.lexical = lexical.Build(docs)
	return s, nil
}

// Current lets a snapshot act as its own corpus provider.
func (s *Snapshot) Current() ports.ChunkStore {
	return s
}

func (s *Snapshot) Count(_ context.Context) (int, error) {
	return len(s.chunks), nil
}

func (s *Snapshot) Dimension() int {
	return s.dim
}

func (s *Snapshot) LexicalTerms() int {
	return s.lexical.Vocabulary()
}

func (s *Snapshot) All() []domain.Chunk {
	out := make([]domain.Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// Chunks returns the requested chunks in request order. Unknown ids are
// skipped.
func (s *Snapshot) Chunks(ctx context.Context, ids []string) ([]domain.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]domain.Chunk, 0, len(ids))
	for _, id := range ids {
		if idx, ok := s.byID[id]; ok {
			out = append(out, s.chunks[idx])
		}
	}
	return out, nil
}

func (s *Snapshot) SearchDense(ctx context.Context, vector []float32, limit int) ([]domain.ScoredID, error) {
	if s.dense != nil {
		return s.dense.SearchDense(ctx, vector, limit)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.dim == 0 {
		return nil, domain.WrapError(domain.ErrSignalUnavailable, "dense search", errors.New("corpus has no vectors"))
	}
	if len(vector) != s.dim {
		return nil, domain.WrapError(domain.ErrEmbeddingDimension, "dense search",
			fmt.Errorf("query dimension %d, index dimension %d", len(vector), s.dim))
	}

	out := make([]domain.ScoredID, 0, len(s.chunks))
	for _, chunk := range s.chunks {
		out = append(out, domain.ScoredID{ChunkID: chunk.ID, Score: s.similarity(vector, chunk.Vector)})
	}
	sortScored(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Snapshot) SearchLexical(ctx context.Context, terms []string, limit int) ([]domain.ScoredID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.lexical.Empty() {
		return nil, domain.WrapError(domain.ErrSignalUnavailable, "lexical search", errors.New("lexical index has no terms"))
	}
	return s.lexical.Search(terms, limit), nil
}

func (s *Snapshot) similarity(a, b []float32) float64 {
	if s.metric == MetricL2 {
		return -squaredL2(a, b)
	}
	return cosine(a, b)
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

func sortScored(out []domain.ScoredID) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
}
