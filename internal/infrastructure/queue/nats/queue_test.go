package nats

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/nats-io/nats.go"
)

func TestRebuiltMessageCodec(t *testing.T) {
	raw, err := encodeRebuilt(812, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if err != nil {
		t.Fatalf("encodeRebuilt() error = %v", err)
	}
	count, err := decodeRebuilt(raw)
	if err != nil || count != 812 {
		t.Fatalf("decodeRebuilt() = %d, %v", count, err)
	}
	if _, err := decodeRebuilt([]byte("812")); err == nil {
		t.Fatalf("expected error for non-object payload")
	}
	if _, err := decodeRebuilt([]byte(`{"chunk_count":-1}`)); err == nil {
		t.Fatalf("expected error for negative count")
	}
}

func TestToDomainError(t *testing.T) {
	for _, err := range []error{nats.ErrNoServers, nats.ErrTimeout, fmt.Errorf("publish: %w", nats.ErrConnectionClosed)} {
		if got := toDomainError(err); !domain.IsKind(got, domain.ErrTemporary) {
			t.Fatalf("expected %v to become temporary, got %v", err, got)
		}
	}
	plain := errors.New("bad subject")
	if got := toDomainError(plain); got != plain {
		t.Fatalf("expected error unchanged, got %v", got)
	}
	if toDomainError(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}

func TestSubjectDefaults(t *testing.T) {
	if subjectOr("  ", DefaultBuildSubject) != DefaultBuildSubject {
		t.Fatalf("expected default subject")
	}
	if subjectOr("custom.build", DefaultBuildSubject) != "custom.build" {
		t.Fatalf("expected custom subject")
	}
}
