// Package badger caches chunk and query embeddings on disk so that index
// rebuilds and repeated questions skip the embedding backend.
package badger

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/kirillkom/statute-rag/internal/core/ports"
)

const keyPrefix = "emb:"

type loggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*loggerAdapter)(nil)

func (l *loggerAdapter) Errorf(msg string, items ...any) {
	l.logger.Error(fmt.Sprintf(msg, items...))
}

func (l *loggerAdapter) Warningf(msg string, items ...any) {
	l.logger.Warn(fmt.Sprintf(msg, items...))
}

func (l *loggerAdapter) Infof(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...))
}

func (l *loggerAdapter) Debugf(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...))
}

// EmbeddingCache wraps an Embedder. Entries are keyed by model name and a
// hash of the text, so switching models never serves stale vectors.
type EmbeddingCache struct {
	db     *badger.DB
	inner  ports.Embedder
	model  string
	logger *slog.Logger
}

// Open opens (or creates) a cache at dir. An empty dir keeps the cache in
// memory, which tests use.
func Open(dir string, inner ports.Embedder, model string, logger *slog.Logger) (*EmbeddingCache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = &loggerAdapter{logger: logger.With("component", "embedding-cache")}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	return &EmbeddingCache{db: db, inner: inner, model: model, logger: logger}, nil
}

func (c *EmbeddingCache) Close() error {
	return c.db.Close()
}

func (c *EmbeddingCache) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	missIdx := make([]int, 0, len(texts))

	err := c.db.View(func(txn *badger.Txn) error {
		for i, text := range texts {
			item, err := txn.Get(c.key(text))
			if errors.Is(err, badger.ErrKeyNotFound) {
				missIdx = append(missIdx, i)
				continue
			}
			if err != nil {
				return err
			}
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			vec, ok := decodeVector(raw)
			if !ok {
				missIdx = append(missIdx, i)
				continue
			}
			out[i] = vec
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("embedding_cache_read_failed", "error", err.Error())
		return c.inner.Embed(ctx, texts)
	}
	if len(missIdx) == 0 {
		return out, nil
	}

	missing := make([]string, len(missIdx))
	for j, i := range missIdx {
		missing[j] = texts[i]
	}
	vectors, err := c.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("embedding cache: got %d vectors for %d texts", len(vectors), len(missing))
	}

	wb := c.db.NewWriteBatch()
	defer wb.Cancel()
	for j, i := range missIdx {
		out[i] = vectors[j]
		if err := wb.Set(c.key(texts[i]), encodeVector(vectors[j])); err != nil {
			c.logger.Warn("embedding_cache_write_failed", "error", err.Error())
			return out, nil
		}
	}
	if err := wb.Flush(); err != nil {
		c.logger.Warn("embedding_cache_write_failed", "error", err.Error())
	}
	return out, nil
}

func (c *EmbeddingCache) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

func (c *EmbeddingCache) key(text string) []byte {
	sum := sha256.Sum256([]byte(text))
	return []byte(keyPrefix + c.model + ":" + hex.EncodeToString(sum[:]))
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(raw []byte) ([]float32, bool) {
	if len(raw) == 0 || len(raw)%4 != 0 {
		return nil, false
	}
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return vec, true
}
