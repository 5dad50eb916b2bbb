package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/sony/gobreaker/v2"
)

func fastPolicy() Policy {
	return Policy{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	}
}

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	exec := NewExecutor(fastPolicy())

	attempts := 0
	err := exec.Execute(context.Background(), "ollama.embed", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return domain.WrapError(domain.ErrTemporary, "ollama.embed", errors.New("503"))
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestForServingMakesOneAttempt(t *testing.T) {
	exec := NewExecutor(fastPolicy().ForServing())

	attempts := 0
	errTemp := domain.WrapError(domain.ErrTemporary, "ollama.embed_query", errors.New("503"))
	err := exec.Execute(context.Background(), "ollama.embed_query", func(context.Context) error {
		attempts++
		return errTemp
	}, nil)
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryDimensionMismatch(t *testing.T) {
	exec := NewExecutor(fastPolicy())

	attempts := 0
	err := exec.Execute(context.Background(), "qdrant.search", func(context.Context) error {
		attempts++
		return domain.WrapError(domain.ErrEmbeddingDimension, "qdrant.search", errors.New("expected 384, got 768"))
	}, nil)
	if !domain.IsKind(err, domain.ErrEmbeddingDimension) {
		t.Fatalf("expected dimension error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteOpensCircuitAndNotifiesListener(t *testing.T) {
	var transitions []gobreaker.State
	exec := NewExecutor(Policy{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     1 * time.Millisecond,
		RetryMaxBackoff:         1 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      time.Minute,
		BreakerHalfOpenMaxCalls: 1,
	}, WithStateListener(func(_ string, _, to gobreaker.State) {
		transitions = append(transitions, to)
	}))

	errDown := errors.New("connection refused")
	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "qdrant.search", func(context.Context) error {
			return errDown
		}, nil)
		if !errors.Is(err, errDown) {
			t.Fatalf("expected error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "qdrant.search", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, nil)
	if !errors.Is(err, gobreaker.ErrOpenState) || !IsCircuitOpen(err) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if len(transitions) != 1 || transitions[0] != gobreaker.StateOpen {
		t.Fatalf("expected a single transition to open, got %v", transitions)
	}
	if got := exec.BreakerState("qdrant.search"); got != gobreaker.StateOpen {
		t.Fatalf("BreakerState() = %v, want open", got)
	}
	if got := exec.BreakerState("ollama.generate"); got != gobreaker.StateClosed {
		t.Fatalf("unused operation should report closed, got %v", got)
	}
}

func TestInvalidInputDoesNotTripBreaker(t *testing.T) {
	exec := NewExecutor(Policy{
		RetryMaxAttempts:    1,
		BreakerEnabled:      true,
		BreakerMinRequests:  1,
		BreakerFailureRatio: 0.1,
	})

	for i := 0; i < 5; i++ {
		_ = exec.Execute(context.Background(), "ollama.generate", func(context.Context) error {
			return domain.WrapError(domain.ErrInvalidInput, "ollama.generate", errors.New("empty prompt"))
		}, nil)
	}
	if got := exec.BreakerState("ollama.generate"); got != gobreaker.StateClosed {
		t.Fatalf("caller errors must not open the breaker, got %v", got)
	}
}

func TestExecuteStopsOnCanceledContext(t *testing.T) {
	exec := NewExecutor(fastPolicy())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := exec.Execute(ctx, "ollama.embed", func(context.Context) error {
		called = true
		return nil
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Fatalf("operation must not run on canceled context")
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	p := Policy{
		RetryInitialBackoff: 10 * time.Millisecond,
		RetryMaxBackoff:     35 * time.Millisecond,
		RetryMultiplier:     2,
	}
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 35 * time.Millisecond, 35 * time.Millisecond}
	for i, w := range want {
		if got := p.backoff(i + 1); got != w {
			t.Fatalf("backoff(%d) = %s, want %s", i+1, got, w)
		}
	}
}

func TestBackoffJitterStaysInBand(t *testing.T) {
	p := Policy{
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     time.Second,
		RetryMultiplier:     2,
		RetryJitter:         0.2,
	}
	for i := 0; i < 50; i++ {
		got := p.backoff(1)
		if got < 80*time.Millisecond || got > 120*time.Millisecond {
			t.Fatalf("jittered backoff %s outside 80ms..120ms", got)
		}
	}
}

func TestClassifyDomainError(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorClassification
	}{
		{context.Canceled, ErrorClassification{}},
		{fmt.Errorf("wrapped: %w", gobreaker.ErrOpenState), ErrorClassification{}},
		{domain.WrapError(domain.ErrNotFound, "op", errors.New("x")), ErrorClassification{}},
		{domain.WrapError(domain.ErrTemporary, "op", errors.New("x")), ErrorClassification{Retryable: true, RecordFailure: true}},
		{errors.New("boom"), ErrorClassification{RecordFailure: true}},
	}
	for _, tc := range cases {
		if got := ClassifyDomainError(tc.err); got != tc.want {
			t.Fatalf("ClassifyDomainError(%v) = %+v, want %+v", tc.err, got, tc.want)
		}
	}
}
