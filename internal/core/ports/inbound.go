package ports

import (
	"context"
	"io"

	"github.com/kirillkom/statute-rag/internal/core/domain"
)

// QueryUnderstander turns raw question text into a structured query.
type QueryUnderstander interface {
	Understand(ctx context.Context, rawText string) (domain.StructuredQuery, error)
}

// Retriever ranks corpus passages for a structured query.
type Retriever interface {
	Retrieve(ctx context.Context, query domain.StructuredQuery, k int) (*domain.RetrievalResult, error)
}

// QuestionAnswerer is the inbound contract for end-to-end question answering.
type QuestionAnswerer interface {
	Answer(ctx context.Context, req domain.AnswerRequest) (*domain.Answer, error)
	Search(ctx context.Context, question string, k int) (*domain.RetrievalResult, error)
}

// CorpusIngestor is the inbound contract for source upload orchestration.
type CorpusIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.Source, error)
}

// SourceReader is the inbound read model for source state.
type SourceReader interface {
	GetByID(ctx context.Context, id string) (*domain.Source, error)
}

// IndexBuilder is the inbound contract for the offline index build.
type IndexBuilder interface {
	BuildFromSource(ctx context.Context, sourceID string) error
}

// FeedbackRecorder accepts ratings for previous answers.
type FeedbackRecorder interface {
	RecordFeedback(ctx context.Context, interactionID string, rating int, comment string) (*domain.Feedback, error)
}

// HistoryReader lists recorded interactions.
type HistoryReader interface {
	ListInteractions(ctx context.Context, limit int) ([]domain.Interaction, error)
}

// StatusReporter describes the serving corpus.
type StatusReporter interface {
	Status(ctx context.Context) domain.CorpusStatus
}
