package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/statute-rag/internal/core/domain"
)

type generatorFake struct {
	question string
	passages int
	err      error
}

func (f *generatorFake) GenerateAnswer(_ context.Context, question string, passages []domain.Passage) (string, error) {
	f.question = question
	f.passages = len(passages)
	if f.err != nil {
		return "", f.err
	}
	return "Bank robbery is punished under 18 U.S.C. § 2113.", nil
}

func (f *generatorFake) Model() string { return "llama3.1:8b" }

type citationFake struct{}

func (citationFake) Extract(text string) []domain.Citation {
	if !strings.Contains(text, "§ 2113") {
		return []domain.Citation{}
	}
	return []domain.Citation{{Reference: "18 U.S.C. § 2113", Title: 18, Section: "2113", Kind: "usc"}}
}

func (citationFake) Format(text string) string { return "formatted: " + text }

type historyFake struct {
	interactions []domain.Interaction
	feedback     []domain.Feedback
	limit        int
	err          error
}

func (f *historyFake) RecordInteraction(_ context.Context, in domain.Interaction) error {
	if f.err != nil {
		return f.err
	}
	f.interactions = append(f.interactions, in)
	return nil
}

func (f *historyFake) RecordFeedback(_ context.Context, fb domain.Feedback) error {
	if f.err != nil {
		return f.err
	}
	f.feedback = append(f.feedback, fb)
	return nil
}

func (f *historyFake) ListInteractions(_ context.Context, limit int) ([]domain.Interaction, error) {
	f.limit = limit
	return f.interactions, f.err
}

func newAnswerFixture(t *testing.T, gen *generatorFake, history *historyFake) *AnswerUseCase {
	t.Helper()
	retriever := newScenarioRetriever(t, &bagOfWordsEmbedder{dim: testDim}, scenarioChunks())
	return NewAnswerUseCase(
		NewQueryUnderstander(nil, 5, nil),
		retriever,
		gen,
		citationFake{},
		WithInteractionLog(history),
	)
}

func TestAnswerUseCaseSuccess(t *testing.T) {
	gen := &generatorFake{}
	history := &historyFake{}
	uc := newAnswerFixture(t, gen, history)

	const question = "What's the punishment for bank robbery?"
	answer, err := uc.Answer(context.Background(), domain.AnswerRequest{SessionID: "s-42", Question: question, K: 2})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if gen.question != question {
		t.Fatalf("generator must receive the question as asked, got %q", gen.question)
	}
	if answer.Model != "llama3.1:8b" {
		t.Fatalf("expected generator model, got %s", answer.Model)
	}
	if answer.Intent != domain.IntentPunishment {
		t.Fatalf("expected punishment intent, got %s", answer.Intent)
	}
	if gen.passages != 2 || len(answer.Passages) != 2 || answer.Passages[0].ChunkID != "C1" {
		t.Fatalf("unexpected passages: %+v", answer.Passages)
	}
	if !strings.HasPrefix(answer.FormattedText, "formatted: ") {
		t.Fatalf("expected formatted text, got %q", answer.FormattedText)
	}
	if len(answer.Citations) != 1 || answer.Citations[0].Section != "2113" {
		t.Fatalf("unexpected citations: %+v", answer.Citations)
	}
	if len(history.interactions) != 1 {
		t.Fatalf("expected one recorded interaction, got %d", len(history.interactions))
	}
	rec := history.interactions[0]
	if answer.InteractionID == "" || rec.ID != answer.InteractionID {
		t.Fatalf("interaction id mismatch: %q vs %q", answer.InteractionID, rec.ID)
	}
	if answer.SessionID != "s-42" || rec.SessionID != "s-42" {
		t.Fatalf("session id not threaded: answer=%q record=%q", answer.SessionID, rec.SessionID)
	}
	if len(rec.ChunkIDs) != 2 || rec.ChunkIDs[0] != "C1" {
		t.Fatalf("unexpected recorded chunk ids: %v", rec.ChunkIDs)
	}
}

func TestAnswerUseCaseFallsBackWhenGeneratorFails(t *testing.T) {
	gen := &generatorFake{err: errors.New("ollama unavailable")}
	uc := newAnswerFixture(t, gen, &historyFake{})

	answer, err := uc.Answer(context.Background(), domain.AnswerRequest{Question: "What is the punishment for bank robbery?", K: 2})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer.Model != "fallback" {
		t.Fatalf("expected fallback model, got %s", answer.Model)
	}
	if !strings.Contains(answer.Text, "[2113 - ") || !strings.Contains(answer.Text, "consult an attorney") {
		t.Fatalf("unexpected fallback text: %q", answer.Text)
	}
}

func TestAnswerUseCaseHistoryFailureIsBestEffort(t *testing.T) {
	uc := newAnswerFixture(t, &generatorFake{}, &historyFake{err: errors.New("disk full")})

	answer, err := uc.Answer(context.Background(), domain.AnswerRequest{Question: "What is the punishment for bank robbery?", K: 2})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer.InteractionID != "" {
		t.Fatalf("expected no interaction id, got %s", answer.InteractionID)
	}
}

func TestAnswerUseCaseInvalidQuery(t *testing.T) {
	gen := &generatorFake{}
	uc := newAnswerFixture(t, gen, &historyFake{})

	_, err := uc.Answer(context.Background(), domain.AnswerRequest{Question: "   ", K: 2})
	if !errors.Is(err, domain.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
	if gen.question != "" {
		t.Fatalf("generator must not run on invalid query")
	}
}

func TestSearchDefaultsK(t *testing.T) {
	uc := newAnswerFixture(t, &generatorFake{}, &historyFake{})

	res, err := uc.Search(context.Background(), "bank robbery", 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(res.Results) == 0 || len(res.Results) > defaultAnswerPassages {
		t.Fatalf("unexpected result count %d", len(res.Results))
	}
}

func TestFeedbackValidation(t *testing.T) {
	history := &historyFake{}
	uc := NewFeedbackUseCase(history)

	for _, rating := range []int{0, 6, -1} {
		if _, err := uc.RecordFeedback(context.Background(), "i-1", rating, ""); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("rating %d: expected invalid input, got %v", rating, err)
		}
	}
	if _, err := uc.RecordFeedback(context.Background(), " ", 3, ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty interaction id, got %v", err)
	}

	fb, err := uc.RecordFeedback(context.Background(), "i-1", 5, "  helpful ")
	if err != nil {
		t.Fatalf("RecordFeedback() error = %v", err)
	}
	if fb.ID == "" || fb.Comment != "helpful" || len(history.feedback) != 1 {
		t.Fatalf("unexpected feedback: %+v", fb)
	}
}

func TestListInteractionsClampsLimit(t *testing.T) {
	history := &historyFake{}
	uc := NewFeedbackUseCase(history)

	if _, err := uc.ListInteractions(context.Background(), 0); err != nil {
		t.Fatalf("ListInteractions() error = %v", err)
	}
	if history.limit != defaultHistoryLimit {
		t.Fatalf("expected default limit, got %d", history.limit)
	}
	if _, err := uc.ListInteractions(context.Background(), 1_000_000); err != nil {
		t.Fatalf("ListInteractions() error = %v", err)
	}
	if history.limit != maxHistoryLimit {
		t.Fatalf("expected clamp to %d, got %d", maxHistoryLimit, history.limit)
	}
}

func TestAnswerStartsSessionWhenMissing(t *testing.T) {
	history := &historyFake{}
	uc := newAnswerFixture(t, &generatorFake{}, history)

	answer, err := uc.Answer(context.Background(), domain.AnswerRequest{Question: "penalty for bank robbery", K: 2})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer.SessionID == "" {
		t.Fatalf("expected a generated session id")
	}
	if len(history.interactions) != 1 || history.interactions[0].SessionID != answer.SessionID {
		t.Fatalf("recorded session id mismatch: %+v", history.interactions)
	}
}
