package badger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	seen [][]string
	err  error
}

func (e *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.seen = append(e.seen, append([]string(nil), texts...))
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 0.5, -1}
	}
	return out, nil
}

func (e *countingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func openTestCache(t *testing.T, inner *countingEmbedder, model string) *EmbeddingCache {
	t.Helper()
	cache, err := Open("", inner, model, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestEmbeddingCacheOnlyEmbedsMisses(t *testing.T) {
	inner := &countingEmbedder{}
	cache := openTestCache(t, inner, "nomic-embed-text")
	ctx := context.Background()

	first, err := cache.Embed(ctx, []string{"bank robbery", "wire fraud"})
	require.NoError(t, err)
	assert.Equal(t, []float32{12, 0.5, -1}, first[0])

	second, err := cache.Embed(ctx, []string{"wire fraud", "mail fraud", "bank robbery"})
	require.NoError(t, err)
	require.Len(t, second, 3)
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, first[0], second[2])
	assert.Equal(t, []float32{10, 0.5, -1}, second[1])

	require.Len(t, inner.seen, 2)
	assert.Equal(t, []string{"mail fraud"}, inner.seen[1])

	q, err := cache.EmbedQuery(ctx, "mail fraud")
	require.NoError(t, err)
	assert.Equal(t, second[1], q)
	assert.Len(t, inner.seen, 2)
}

func TestEmbeddingCachePropagatesBackendErrors(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("backend down")}
	cache := openTestCache(t, inner, "m")

	_, err := cache.Embed(context.Background(), []string{"kidnapping"})
	require.Error(t, err)
}

func TestVectorCodecRoundTrip(t *testing.T) {
	vec := []float32{0, -1.25, 3.5e-7}
	got, ok := decodeVector(encodeVector(vec))
	require.True(t, ok)
	assert.Equal(t, vec, got)

	_, ok = decodeVector([]byte{1, 2, 3})
	assert.False(t, ok)
}
