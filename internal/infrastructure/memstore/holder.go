package memstore

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/kirillkom/statute-rag/internal/core/ports"
)

// Holder publishes the snapshot that serves queries and swaps it atomically
// when a rebuilt corpus is loaded. In-flight queries keep the snapshot they
// started with.
type Holder struct {
	current atomic.Pointer[Snapshot]
	opts    []Option
}

func NewHolder(opts ...Option) *Holder {
	return &Holder{opts: opts}
}

func (h *Holder) Current() ports.ChunkStore {
	if s := h.current.Load(); s != nil {
		return s
	}
	return nil
}

func (h *Holder) Snapshot() *Snapshot {
	return h.current.Load()
}

func (h *Holder) Swap(s *Snapshot) {
	h.current.Store(s)
}

// Reload reads the persisted corpus and publishes it as the new snapshot.
func (h *Holder) Reload(ctx context.Context, repo ports.ChunkRepository) (int, error) {
	chunks, err := repo.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load corpus: %w", err)
	}
	snapshot, err := New(chunks, h.opts...)
	if err != nil {
		return 0, fmt.Errorf("build snapshot: %w", err)
	}
	h.Swap(snapshot)
	return len(chunks), nil
}

func (h *Holder) Status(_ context.Context) domain.CorpusStatus {
	s := h.current.Load()
	if s == nil {
		return domain.CorpusStatus{}
	}
	return domain.CorpusStatus{
		Loaded:          true,
		Chunks:          len(s.chunks),
		Dimension:       s.dim,
		LexicalTerms:    s.LexicalTerms(),
		DenseAvailable:  s.dense != nil || s.dim > 0,
		SparseAvailable: s.LexicalTerms() > 0,
	}
}
