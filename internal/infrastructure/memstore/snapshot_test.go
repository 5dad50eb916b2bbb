package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleChunks() []domain.Chunk {
	return []domain.Chunk{
		{ID: "a", Text: "bank robbery imprisonment", Vector: []float32{1, 0, 0}},
		{ID: "b", Text: "wire fraud fine", Vector: []float32{0, 1, 0}},
		{ID: "c", Text: "kidnapping ransom", Vector: []float32{0.7, 0.7, 0}},
	}
}

func TestSearchDenseCosineOrder(t *testing.T) {
	s, err := New(sampleChunks())
	require.NoError(t, err)

	hits, err := s.SearchDense(context.Background(), []float32{1, 0.1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ChunkID)
	assert.Equal(t, "c", hits[1].ChunkID)
}

func TestSearchDenseL2Order(t *testing.T) {
	s, err := New(sampleChunks(), WithMetric(MetricL2))
	require.NoError(t, err)

	hits, err := s.SearchDense(context.Background(), []float32{0, 2, 0}, 0)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "b", hits[0].ChunkID)
}

func TestSearchDenseDimensionMismatch(t *testing.T) {
	s, err := New(sampleChunks())
	require.NoError(t, err)

	_, err = s.SearchDense(context.Background(), []float32{1, 0}, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrEmbeddingDimension))
}

func TestNewRejectsMixedDimensions(t *testing.T) {
	chunks := sampleChunks()
	chunks[1].Vector = []float32{1, 2}
	_, err := New(chunks)
	assert.ErrorIs(t, err, domain.ErrEmbeddingDimension)
}

func TestNewRejectsDuplicateIDs(t *testing.T) {
	chunks := sampleChunks()
	chunks[2].ID = "a"
	_, err := New(chunks)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestVectorlessCorpusReportsDenseUnavailable(t *testing.T) {
	s, err := New([]domain.Chunk{{ID: "x", Text: "bank robbery"}})
	require.NoError(t, err)

	_, err = s.SearchDense(context.Background(), []float32{1}, 1)
	assert.ErrorIs(t, err, domain.ErrSignalUnavailable)

	hits, err := s.SearchLexical(context.Background(), []string{"robbery"}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestSearchLexicalUnavailableWithoutTerms(t *testing.T) {
	s, err := New([]domain.Chunk{{ID: "x", Text: "of the", Vector: []float32{1}}})
	require.NoError(t, err)

	_, err = s.SearchLexical(context.Background(), []string{"bank"}, 5)
	assert.ErrorIs(t, err, domain.ErrSignalUnavailable)
}

func TestChunksPreservesRequestOrder(t *testing.T) {
	s, err := New(sampleChunks())
	require.NoError(t, err)

	got, err := s.Chunks(context.Background(), []string{"c", "missing", "a"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
}

type fakeRepo struct {
	chunks []domain.Chunk
	err    error
}

func (f fakeRepo) ReplaceSource(context.Context, string, []domain.Chunk) error { return nil }
func (f fakeRepo) LoadAll(context.Context) ([]domain.Chunk, error) { return f.chunks, f.err }

func TestHolderReloadSwapsSnapshot(t *testing.T) {
	h := NewHolder()
	assert.Nil(t, h.Current())

	n, err := h.Reload(context.Background(), fakeRepo{chunks: sampleChunks()})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	count, err := h.Current().Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	_, err = h.Reload(context.Background(), fakeRepo{err: errors.New("db down")})
	require.Error(t, err)
	count, _ = h.Current().Count(context.Background())
	assert.Equal(t, 3, count, "failed reload keeps previous snapshot")
}

func TestHolderStatus(t *testing.T) {
	h := NewHolder()
	assert.False(t, h.Status(context.Background()).Loaded)

	_, err := h.Reload(context.Background(), fakeRepo{chunks: sampleChunks()})
	require.NoError(t, err)

	status := h.Status(context.Background())
	assert.True(t, status.Loaded)
	assert.Equal(t, 3, status.Chunks)
	assert.Equal(t, 3, status.Dimension)
	assert.True(t, status.DenseAvailable)
	assert.True(t, status.SparseAvailable)
}
