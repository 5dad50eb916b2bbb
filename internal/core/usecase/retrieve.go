package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/kirillkom/statute-rag/internal/core/legaltext"
	"github.com/kirillkom/statute-rag/internal/core/ports"
	"golang.org/x/sync/errgroup"
)

// RetrievalConfig is copied into the retriever at construction and never
// changes afterwards.
type RetrievalConfig struct {
	RRFConstant      int
	DenseCandidates  int
	SparseCandidates int
}

func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		RRFConstant:      defaultRRFConstant,
		DenseCandidates:  10,
		SparseCandidates: 10,
	}
}

func (c RetrievalConfig) normalize() RetrievalConfig {
	def := DefaultRetrievalConfig()
	if c.RRFConstant <= 0 {
		c.RRFConstant = def.RRFConstant
	}
	if c.DenseCandidates <= 0 {
		c.DenseCandidates = def.DenseCandidates
	}
	if c.SparseCandidates <= 0 {
		c.SparseCandidates = def.SparseCandidates
	}
	return c
}

// errSignalSkipped marks a dense or sparse lookup that was skipped because its
// backend is unavailable.
var errSignalSkipped = errors.New("signal skipped")

type HybridRetriever struct {
	embedder ports.Embedder
	corpus   ports.CorpusProvider
	cfg      RetrievalConfig
	logger   *slog.Logger
	observer ports.RetrievalObserver
}

type RetrieverOption func(*HybridRetriever)

func WithRetrieverLogger(logger *slog.Logger) RetrieverOption {
	return func(r *HybridRetriever) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithRetrievalObserver(observer ports.RetrievalObserver) RetrieverOption {
	return func(r *HybridRetriever) {
		r.observer = observer
	}
}

// NewHybridRetriever builds a retriever. A nil embedder runs sparse-only.
func NewHybridRetriever(
	embedder ports.Embedder,
	corpus ports.CorpusProvider,
	cfg RetrievalConfig,
	opts ...RetrieverOption,
) *HybridRetriever {
	r := &HybridRetriever{
		embedder: embedder,
		corpus:   corpus,
		cfg:      cfg.normalize(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *HybridRetriever) Config() RetrievalConfig {
	return r.cfg
}

func (r *HybridRetriever) Retrieve(ctx context.Context, query domain.StructuredQuery, k int) (*domain.RetrievalResult, error) {
	if k < 0 {
		return nil, domain.WrapError(domain.ErrInvalidQuery, "retrieve", fmt.Errorf("negative result limit %d", k))
	}
	if len(query.ExpandedTerms) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidQuery, "retrieve", errors.New("query has no expanded terms"))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	started := time.Now()

	store := r.corpus.Current()
	if store == nil {
		return nil, domain.WrapError(domain.ErrEmptyIndex, "retrieve", errors.New("no corpus loaded"))
	}
	total, err := store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	if total == 0 {
		return nil, domain.WrapError(domain.ErrEmptyIndex, "retrieve", errors.New("corpus holds zero chunks"))
	}

	result := &domain.RetrievalResult{
		Query:   query,
		Results: []domain.RankedResult{},
		Filter:  filterForIntent(query.Intent),
	}
	if k == 0 {
		return result, nil
	}

	dense, sparse, err := r.lookup(ctx, store, query, result)
	if err != nil {
		return nil, err
	}
	if result.DenseDegraded && result.SparseDegraded {
		return nil, domain.WrapError(domain.ErrNoRetrievalSignal, "retrieve", domain.ErrEmptyIndex)
	}

	chunks, err := r.loadCandidates(ctx, store, dense, sparse)
	if err != nil {
		return nil, err
	}
	keep := r.applyFilter(result, chunks)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fused := trimCandidates(fuseCandidatesRRF(dense, sparse, keep, r.cfg.RRFConstant), k)

	for _, c := range fused {
		chunk := chunks[c.chunkID]
		result.Results = append(result.Results, domain.RankedResult{
			ChunkID:    c.chunkID,
			Text:       chunk.Text,
			Metadata:   chunk.Metadata,
			DenseRank:  optionalRank(c.denseRank),
			SparseRank: optionalRank(c.sparseRank),
			FusedScore: c.score,
		})
	}

	if r.observer != nil {
		r.observer.ObserveRetrieval(query.Intent, len(result.Results), result.DenseDegraded, result.SparseDegraded, result.FilterDropped, time.Since(started).Seconds())
	}
	return result, nil
}

// lookup runs dense and sparse retrieval concurrently. A signal whose backend
// is unavailable is flagged on result and returns no ids; any other failure
// aborts the request.
func (r *HybridRetriever) lookup(
	ctx context.Context,
	store ports.ChunkStore,
	query domain.StructuredQuery,
	result *domain.RetrievalResult,
) ([]string, []string, error) {
	var dense, sparse []string
	var denseSkip, sparseSkip error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ids, err := r.denseRanking(gctx, store, query)
		if errors.Is(err, errSignalSkipped) {
			denseSkip = err
			return nil
		}
		dense = ids
		return err
	})
	g.Go(func() error {
		ids, err := r.sparseRanking(gctx, store, query)
		if errors.Is(err, errSignalSkipped) {
			sparseSkip = err
			return nil
		}
		sparse = ids
		return err
	})
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	if denseSkip != nil {
		result.DenseDegraded = true
		r.logger.Warn("retrieval_degraded", "signal", "dense", "reason", denseSkip.Error())
	}
	if sparseSkip != nil {
		result.SparseDegraded = true
		r.logger.Warn("retrieval_degraded", "signal", "sparse", "reason", sparseSkip.Error())
	}
	return dense, sparse, nil
}

type denseHit struct {
	chunkID string
	rank    int
	term    int
}

// denseRanking embeds every expanded term, keeps each chunk's best rank across
// the per-term searches and returns the merged top list.
func (r *HybridRetriever) denseRanking(ctx context.Context, store ports.ChunkStore, query domain.StructuredQuery) ([]string, error) {
	if r.embedder == nil {
		return nil, fmt.Errorf("%w: no embedder configured", errSignalSkipped)
	}

	vectors, err := r.embedder.Embed(ctx, query.ExpandedTerms)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: embed query terms: %v", errSignalSkipped, err)
	}
	if len(vectors) != len(query.ExpandedTerms) {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for %d terms", errSignalSkipped, len(vectors), len(query.ExpandedTerms))
	}

	best := make(map[string]denseHit, r.cfg.DenseCandidates)
	for term, vector := range vectors {
		hits, err := store.SearchDense(ctx, vector, r.cfg.DenseCandidates)
		if err != nil {
			if errors.Is(err, domain.ErrSignalUnavailable) {
				return nil, fmt.Errorf("%w: %v", errSignalSkipped, err)
			}
			return nil, fmt.Errorf("dense search: %w", err)
		}
		for i, hit := range hits {
			rank := i + 1
			if cur, ok := best[hit.ChunkID]; ok && cur.rank <= rank {
				continue
			}
			best[hit.ChunkID] = denseHit{chunkID: hit.ChunkID, rank: rank, term: term}
		}
	}

	merged := make([]denseHit, 0, len(best))
	for _, hit := range best {
		merged = append(merged, hit)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].rank != merged[j].rank {
			return merged[i].rank < merged[j].rank
		}
		if merged[i].term != merged[j].term {
			return merged[i].term < merged[j].term
		}
		return merged[i].chunkID < merged[j].chunkID
	})
	if len(merged) > r.cfg.DenseCandidates {
		merged = merged[:r.cfg.DenseCandidates]
	}

	ids := make([]string, 0, len(merged))
	for _, hit := range merged {
		ids = append(ids, hit.chunkID)
	}
	return ids, nil
}

func (r *HybridRetriever) sparseRanking(ctx context.Context, store ports.ChunkStore, query domain.StructuredQuery) ([]string, error) {
	terms := sparseQueryTerms(query)
	hits, err := store.SearchLexical(ctx, terms, r.cfg.SparseCandidates)
	if err != nil {
		if errors.Is(err, domain.ErrSignalUnavailable) {
			return nil, fmt.Errorf("%w: %v", errSignalSkipped, err)
		}
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	if len(hits) > r.cfg.SparseCandidates {
		hits = hits[:r.cfg.SparseCandidates]
	}
	ids := make([]string, 0, len(hits))
	for _, hit := range hits {
		ids = append(ids, hit.ChunkID)
	}
	return ids, nil
}

// sparseQueryTerms combines the cleaned text with the extracted keywords.
func sparseQueryTerms(query domain.StructuredQuery) []string {
	terms := legaltext.Terms(query.CleanedText)
	for _, kw := range query.Keywords {
		terms = append(terms, legaltext.Terms(kw)...)
	}
	return legaltext.Dedupe(terms)
}

func (r *HybridRetriever) loadCandidates(ctx context.Context, store ports.ChunkStore, dense, sparse []string) (map[string]domain.Chunk, error) {
	ids := make([]string, 0, len(dense)+len(sparse))
	seen := make(map[string]struct{}, len(dense)+len(sparse))
	for _, list := range [][]string{dense, sparse} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return map[string]domain.Chunk{}, nil
	}

	chunks, err := store.Chunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load candidate chunks: %w", err)
	}
	out := make(map[string]domain.Chunk, len(chunks))
	for _, chunk := range chunks {
		out[chunk.ID] = chunk
	}
	return out, nil
}

// applyFilter restricts candidates to the intent's metadata predicate. When
// nothing survives the filter is dropped and every loaded candidate is kept.
func (r *HybridRetriever) applyFilter(result *domain.RetrievalResult, chunks map[string]domain.Chunk) func(string) bool {
	loaded := func(id string) bool {
		_, ok := chunks[id]
		return ok
	}
	if result.Filter.IsNone() || len(chunks) == 0 {
		return loaded
	}

	matched := make(map[string]struct{}, len(chunks))
	for id, chunk := range chunks {
		if result.Filter.Matches(chunk.Metadata) {
			matched[id] = struct{}{}
		}
	}
	if len(matched) == 0 {
		result.FilterDropped = true
		r.logger.Info("filter_dropped",
			"intent", string(result.Query.Intent),
			"filter", string(result.Filter.Kind),
			"candidates", len(chunks),
		)
		return loaded
	}
	return func(id string) bool {
		_, ok := matched[id]
		return ok
	}
}

func optionalRank(rank int) *int {
	if rank == 0 {
		return nil
	}
	return &rank
}
