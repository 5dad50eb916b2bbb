package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/kirillkom/statute-rag/internal/core/domain"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestSourceGetByIDReturnsDomainNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSourceRepository(db)

	mock.ExpectQuery("SELECT id, filename, mime_type, storage_path").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSourceUpdateStatusNotFoundWhenNoRowsAffected(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSourceRepository(db)

	mock.ExpectExec("UPDATE sources").
		WithArgs("missing", string(domain.StatusReady), 12, "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "missing", domain.StatusReady, 12, "")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestChunkReplaceSourceRunsInOneTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChunkRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM chunks WHERE source = \\$1").WithArgs("t18").WillReturnResult(sqlmock.NewResult(0, 3))
	prep := mock.ExpectPrepare("INSERT INTO chunks")
	prep.ExpectExec().WithArgs("t18-p1-0", "t18", 0, "Whoever commits bank robbery", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("t18-p1-1", "t18", 1, "shall be fined", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.ReplaceSource(context.Background(), "t18", []domain.Chunk{
		{ID: "t18-p1-0", Text: "Whoever commits bank robbery", Vector: []float32{0.1, 0.2}},
		{ID: "t18-p1-1", Text: "shall be fined", Vector: []float32{0.3, 0.4}},
	})
	if err != nil {
		t.Fatalf("ReplaceSource() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestChunkReplaceSourceRollsBackOnInsertError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChunkRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM chunks").WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare("INSERT INTO chunks")
	prep.ExpectExec().WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.ReplaceSource(context.Background(), "a", []domain.Chunk{{ID: "a", Text: "x", Vector: []float32{1}}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestChunkLoadAllDecodesVectorsAndMetadata(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChunkRepository(db)

	rows := sqlmock.NewRows([]string{"id", "text", "embedding", "metadata"}).
		AddRow("t18-p3-0", "imprisoned not more than twenty years", []byte(`[0.5,-1]`),
			[]byte(`{"source":"t18","text_type":"punishment","page_num":3,"section_references":["2113"]}`))
	mock.ExpectQuery("FROM chunks").WillReturnRows(rows)

	chunks, err := repo.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	c := chunks[0]
	if len(c.Vector) != 2 || c.Vector[1] != -1 {
		t.Fatalf("unexpected vector %v", c.Vector)
	}
	if c.Metadata.TextType != domain.TextTypePunishment || c.Metadata.PageNum != 3 {
		t.Fatalf("unexpected metadata %+v", c.Metadata)
	}
}

func TestRecordFeedbackUnknownInteraction(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewInteractionRepository(db)

	mock.ExpectExec("INSERT INTO feedback").
		WithArgs("f-1", "missing", 4, "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.RecordFeedback(context.Background(), domain.Feedback{
		ID: "f-1", InteractionID: "missing", Rating: 4, CreatedAt: time.Now(),
	})
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListInteractions(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewInteractionRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "session_id", "question", "answer", "intent", "chunk_ids", "model", "degraded", "duration_ms", "created_at"}).
		AddRow("i-1", "s-1", "bank robbery punishment?", "20 years", "punishment", []byte(`["C1","C3"]`), "llama3", false, int64(42), now)
	mock.ExpectQuery("FROM interactions").WithArgs(10).WillReturnRows(rows)

	list, err := repo.ListInteractions(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListInteractions() error = %v", err)
	}
	if len(list) != 1 || list[0].Intent != domain.IntentPunishment || len(list[0].ChunkIDs) != 2 || list[0].SessionID != "s-1" {
		t.Fatalf("unexpected interactions %+v", list)
	}
}

func TestRecordInteractionStoresSessionID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewInteractionRepository(db)

	now := time.Now()
	mock.ExpectExec("INSERT INTO interactions").
		WithArgs("i-2", "s-9", "wire fraud?", "up to 20 years", "punishment", []byte(`["C2"]`), "llama3", false, int64(7), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.RecordInteraction(context.Background(), domain.Interaction{
		ID: "i-2", SessionID: "s-9", Question: "wire fraud?", Answer: "up to 20 years",
		Intent: domain.IntentPunishment, ChunkIDs: []string{"C2"}, Model: "llama3", DurationMS: 7, CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("RecordInteraction() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
