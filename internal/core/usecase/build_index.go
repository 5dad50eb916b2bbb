package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/kirillkom/statute-rag/internal/core/legaltext"
	"github.com/kirillkom/statute-rag/internal/core/ports"
	"github.com/panjf2000/ants/v2"
)

const defaultEmbedBatchSize = 32

type BuildConfig struct {
	EmbedBatchSize int
	Workers        int
}

func (c BuildConfig) normalize() BuildConfig {
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = defaultEmbedBatchSize
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU() / 2
		if c.Workers < 1 {
			c.Workers = 1
		}
	}
	return c
}

// BuildIndexUseCase runs the offline build: extract, clean, chunk, annotate,
// embed and persist. The corpus is replaced wholesale.
type BuildIndexUseCase struct {
	sources   ports.SourceRepository
	extractor ports.TextExtractor
	chunker   ports.Chunker
	metadata  ports.MetadataExtractor
	embedder  ports.Embedder
	corpus    ports.ChunkRepository
	dense     ports.DenseIndexWriter
	queue     ports.MessageQueue
	observer  ports.BuildObserver
	cfg       BuildConfig
	logger    *slog.Logger
}

type BuildOption func(*BuildIndexUseCase)

// WithDenseIndexWriter mirrors built vectors into an external dense index.
func WithDenseIndexWriter(w ports.DenseIndexWriter) BuildOption {
	return func(uc *BuildIndexUseCase) { uc.dense = w }
}

// WithRebuildNotifier publishes a corpus-rebuilt message after each build.
func WithRebuildNotifier(q ports.MessageQueue) BuildOption {
	return func(uc *BuildIndexUseCase) { uc.queue = q }
}

func WithBuildObserver(observer ports.BuildObserver) BuildOption {
	return func(uc *BuildIndexUseCase) { uc.observer = observer }
}

func WithBuildLogger(logger *slog.Logger) BuildOption {
	return func(uc *BuildIndexUseCase) {
		if logger != nil {
			uc.logger = logger
		}
	}
}

func NewBuildIndexUseCase(
	sources ports.SourceRepository,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	metadata ports.MetadataExtractor,
	embedder ports.Embedder,
	corpus ports.ChunkRepository,
	cfg BuildConfig,
	opts ...BuildOption,
) *BuildIndexUseCase {
	uc := &BuildIndexUseCase{
		sources:   sources,
		extractor: extractor,
		chunker:   chunker,
		metadata:  metadata,
		embedder:  embedder,
		corpus:    corpus,
		cfg:       cfg.normalize(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *BuildIndexUseCase) BuildFromSource(ctx context.Context, sourceID string) error {
	if uc.observer == nil {
		_, err := uc.buildSource(ctx, sourceID)
		return err
	}
	started := time.Now()
	uc.observer.StartBuild()
	count, err := uc.buildSource(ctx, sourceID)
	uc.observer.FinishBuild(time.Since(started), count, err)
	return err
}

func (uc *BuildIndexUseCase) buildSource(ctx context.Context, sourceID string) (int, error) {
	if err := uc.markStatus(ctx, sourceID, domain.StatusProcessing, 0, ""); err != nil {
		return 0, fmt.Errorf("set status=processing: %w", err)
	}

	count, err := uc.buildPipeline(ctx, sourceID)
	if err != nil {
		if failErr := uc.markFailed(ctx, sourceID, err); failErr != nil {
			return 0, fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return 0, err
	}

	if err := uc.markStatus(ctx, sourceID, domain.StatusReady, count, ""); err != nil {
		return count, fmt.Errorf("set status=ready: %w", err)
	}
	return count, nil
}

func (uc *BuildIndexUseCase) buildPipeline(ctx context.Context, sourceID string) (int, error) {
	src, err := uc.loadSource(ctx, sourceID)
	if err != nil {
		return 0, err
	}

	pages, err := uc.extractPages(ctx, src)
	if err != nil {
		return 0, err
	}

	chunks, err := uc.Build(ctx, sourceName(src), pages)
	if err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// Build turns extracted pages into an indexed corpus and persists it. It is
// also the entry point for building from a local file without a source record.
func (uc *BuildIndexUseCase) Build(ctx context.Context, source string, pages []domain.Page) ([]domain.Chunk, error) {
	chunks, err := uc.chunk(source, pages)
	if err != nil {
		return nil, err
	}

	if err := uc.embed(ctx, chunks); err != nil {
		return nil, err
	}

	if err := uc.persist(ctx, source, chunks); err != nil {
		return nil, err
	}

	uc.logger.Info("index_built", "source", source, "pages", len(pages), "chunks", len(chunks))
	uc.notify(ctx, len(chunks))
	return chunks, nil
}

func (uc *BuildIndexUseCase) loadSource(ctx context.Context, sourceID string) (*domain.Source, error) {
	src, err := uc.sources.GetByID(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("fetch source by id: %w", err)
	}
	return src, nil
}

func (uc *BuildIndexUseCase) extractPages(ctx context.Context, src *domain.Source) ([]domain.Page, error) {
	pages, err := uc.extractor.Extract(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	if len(pages) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("empty extracted text"))
	}
	return pages, nil
}

func (uc *BuildIndexUseCase) chunk(source string, pages []domain.Page) ([]domain.Chunk, error) {
	out := make([]domain.Chunk, 0, len(pages)*2)
	for _, page := range pages {
		cleaned := legaltext.CleanDocumentText(page.Text)
		for ordinal, text := range uc.chunker.Split(cleaned) {
			meta := uc.metadata.Extract(text, page.PageNum)
			meta.Source = source
			out = append(out, domain.Chunk{
				ID:       fmt.Sprintf("%s-p%d-%d", source, page.PageNum, ordinal),
				Text:     text,
				Metadata: meta,
			})
		}
	}
	if len(out) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunk source", errors.New("chunking produced zero chunks"))
	}
	return out, nil
}

// embed fills chunk vectors batch by batch on a bounded worker pool.
func (uc *BuildIndexUseCase) embed(ctx context.Context, chunks []domain.Chunk) error {
	if uc.embedder == nil {
		uc.logger.Warn("embedding_skipped", "reason", "no embedder configured", "chunks", len(chunks))
		return nil
	}
	pool, err := ants.NewPool(uc.cfg.Workers)
	if err != nil {
		return fmt.Errorf("create embedding pool: %w", err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	setErr := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}

	for start := 0; start < len(chunks); start += uc.cfg.EmbedBatchSize {
		end := start + uc.cfg.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				setErr(ctx.Err())
				return
			}
			texts := make([]string, len(batch))
			for i := range batch {
				texts[i] = batch[i].Text
			}
			vectors, err := uc.embedder.Embed(ctx, texts)
			if err != nil {
				setErr(fmt.Errorf("embed chunks: %w", err))
				return
			}
			if len(vectors) != len(batch) {
				setErr(domain.WrapError(domain.ErrInvalidInput, "embed chunks",
					fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(batch))))
				return
			}
			for i := range batch {
				batch[i].Vector = vectors[i]
			}
		})
		if submitErr != nil {
			wg.Done()
			setErr(fmt.Errorf("submit embedding batch: %w", submitErr))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return checkDimensions(chunks)
}

func checkDimensions(chunks []domain.Chunk) error {
	dim := len(chunks[0].Vector)
	for _, c := range chunks {
		if len(c.Vector) != dim || dim == 0 {
			return domain.WrapError(domain.ErrEmbeddingDimension, "embed chunks",
				fmt.Errorf("chunk %s has dimension %d, expected %d", c.ID, len(c.Vector), dim))
		}
	}
	return nil
}

// persist replaces the chunks of one source. A rebuilt source drops its old
// chunks; chunks of other sources stay in the corpus.
func (uc *BuildIndexUseCase) persist(ctx context.Context, source string, chunks []domain.Chunk) error {
	if err := uc.corpus.ReplaceSource(ctx, source, chunks); err != nil {
		return fmt.Errorf("store corpus: %w", err)
	}
	if uc.dense != nil && uc.embedder != nil {
		if err := uc.dense.ReplaceSource(ctx, source, chunks); err != nil {
			return fmt.Errorf("index vectors: %w", err)
		}
	}
	return nil
}

func (uc *BuildIndexUseCase) notify(ctx context.Context, count int) {
	if uc.queue == nil {
		return
	}
	if err := uc.queue.PublishCorpusRebuilt(ctx, count); err != nil {
		uc.logger.Warn("corpus_rebuilt_publish_failed", "error", err.Error())
	}
}

func (uc *BuildIndexUseCase) markStatus(ctx context.Context, sourceID string, status domain.SourceStatus, chunkCount int, errMessage string) error {
	return uc.sources.UpdateStatus(ctx, sourceID, status, chunkCount, errMessage)
}

func (uc *BuildIndexUseCase) markFailed(ctx context.Context, sourceID string, buildErr error) error {
	if buildErr == nil {
		return nil
	}
	return uc.markStatus(ctx, sourceID, domain.StatusFailed, 0, buildErr.Error())
}

func sourceName(src *domain.Source) string {
	base := filepath.Base(src.Filename)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if strings.TrimSpace(name) == "" || name == "." {
		return src.ID
	}
	return strings.ToLower(sanitizeFilename(name))
}
