package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/statute-rag/internal/core/domain"
)

// ChunkStore is a read-only view of one indexed corpus version.
type ChunkStore interface {
	Count(ctx context.Context) (int, error)
	Chunks(ctx context.Context, ids []string) ([]domain.Chunk, error)
	SearchDense(ctx context.Context, vector []float32, limit int) ([]domain.ScoredID, error)
	SearchLexical(ctx context.Context, terms []string, limit int) ([]domain.ScoredID, error)
}

// CorpusProvider hands out the corpus version that serves the next query.
type CorpusProvider interface {
	Current() ChunkStore
}

// DenseIndex ranks chunk ids by vector similarity.
type DenseIndex interface {
	SearchDense(ctx context.Context, vector []float32, limit int) ([]domain.ScoredID, error)
}

// DenseIndexWriter replaces one source's vectors in an external dense index.
type DenseIndexWriter interface {
	ReplaceSource(ctx context.Context, source string, chunks []domain.Chunk) error
}

// ChunkRepository persists the built corpus. ReplaceSource swaps the chunks
// of one source and leaves other sources untouched.
type ChunkRepository interface {
	ReplaceSource(ctx context.Context, source string, chunks []domain.Chunk) error
	LoadAll(ctx context.Context) ([]domain.Chunk, error)
}

// SourceRepository persists and reads uploaded source state.
type SourceRepository interface {
	Create(ctx context.Context, src *domain.Source) error
	GetByID(ctx context.Context, id string) (*domain.Source, error)
	UpdateStatus(ctx context.Context, id string, status domain.SourceStatus, chunkCount int, errMessage string) error
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue carries index build requests and corpus change notices.
type MessageQueue interface {
	PublishBuildRequested(ctx context.Context, sourceID string) error
	SubscribeBuildRequested(ctx context.Context, handler func(context.Context, string) error) error
	PublishCorpusRebuilt(ctx context.Context, chunkCount int) error
	SubscribeCorpusRebuilt(ctx context.Context, handler func(context.Context, int) error) error
}

// TextExtractor extracts per-page text from a stored source.
type TextExtractor interface {
	Extract(ctx context.Context, src *domain.Source) ([]domain.Page, error)
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits page text into retrievable passages.
type Chunker interface {
	Split(text string) []string
}

// MetadataExtractor derives structured metadata from chunk text.
type MetadataExtractor interface {
	Extract(text string, pageNum int) domain.ChunkMetadata
}

// EntityExtractor pulls keywords and named entities out of text. Best effort.
type EntityExtractor interface {
	Extract(ctx context.Context, text string) ([]string, []domain.Entity, error)
}

// AnswerGenerator creates the final user-facing answer.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, passages []domain.Passage) (string, error)
	Model() string
}

// CitationFormatter post-processes answer text for statute references.
type CitationFormatter interface {
	Extract(text string) []domain.Citation
	Format(text string) string
}

// InteractionLog records answered questions and user feedback. Implementations
// serialize their own writes.
type InteractionLog interface {
	RecordInteraction(ctx context.Context, in domain.Interaction) error
	RecordFeedback(ctx context.Context, fb domain.Feedback) error
	ListInteractions(ctx context.Context, limit int) ([]domain.Interaction, error)
}

// RetrievalObserver receives retrieval outcomes for metrics.
type RetrievalObserver interface {
	ObserveRetrieval(intent domain.Intent, results int, denseDegraded, sparseDegraded, filterDropped bool, seconds float64)
}

// BuildObserver receives index build outcomes for metrics.
type BuildObserver interface {
	StartBuild()
	FinishBuild(duration time.Duration, chunks int, err error)
}
