// Package resilience guards calls to the embedding, generation, vector and
// messaging collaborators with bounded retries and per-operation circuit
// breakers.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/sony/gobreaker/v2"
)

// ErrorClassification tells the executor whether a failure is worth another
// attempt and whether it counts against the breaker.
type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// StateListener is told about circuit breaker transitions, e.g. to export
// them as metrics.
type StateListener func(operation string, from, to gobreaker.State)

// Executor runs collaborator calls with bounded retries behind one circuit
// breaker per operation name.
type Executor struct {
	policy   Policy
	logger   *slog.Logger
	listener StateListener

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

type Option func(*Executor)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithStateListener(listener StateListener) Option {
	return func(e *Executor) { e.listener = listener }
}

func NewExecutor(policy Policy, opts ...Option) *Executor {
	e := &Executor{
		policy:   policy.normalize(),
		logger:   slog.Default(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Policy() Policy {
	return e.policy
}

// Execute runs fn under the named operation's breaker. A nil classifier
// falls back to ClassifyDomainError.
func (e *Executor) Execute(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classifier == nil {
		classifier = ClassifyDomainError
	}

	if !e.policy.BreakerEnabled {
		return e.retry(ctx, op, fn, classifier)
	}

	breaker := e.circuitBreaker(op, classifier)
	_, err := breaker.Execute(func() (any, error) {
		return nil, e.retry(ctx, op, fn, classifier)
	})
	return err
}

func (e *Executor) retry(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	maxAttempts := e.policy.RetryMaxAttempts

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt == maxAttempts || !classifier(err).Retryable {
			return err
		}

		wait := e.policy.backoff(attempt)
		e.logger.Warn("retry_attempt",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"backoff_ms", float64(wait.Microseconds())/1000.0,
			"error", err.Error(),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}

func (e *Executor) circuitBreaker(operation string, classifier ErrorClassifier) *gobreaker.CircuitBreaker[any] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if breaker, ok := e.breakers[operation]; ok {
		return breaker
	}

	p := e.policy
	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        operation,
		MaxRequests: p.BreakerHalfOpenMaxCalls,
		Timeout:     p.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < p.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= p.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classifier(err).RecordFailure
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			e.logger.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
			if e.listener != nil {
				e.listener(name, from, to)
			}
		},
	})
	e.breakers[operation] = breaker
	return breaker
}

// BreakerState reports the named operation's breaker; operations that never
// ran are closed.
func (e *Executor) BreakerState(operation string) gobreaker.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if breaker, ok := e.breakers[operation]; ok {
		return breaker.State()
	}
	return gobreaker.StateClosed
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// ClassifyDomainError keeps caller mistakes and cancellations out of the
// breaker counts and retries only failures marked temporary.
func ClassifyDomainError(err error) ErrorClassification {
	switch {
	case err == nil:
		return ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorClassification{}
	case IsCircuitOpen(err):
		return ErrorClassification{}
	case domain.IsKind(err, domain.ErrInvalidInput),
		domain.IsKind(err, domain.ErrInvalidQuery),
		domain.IsKind(err, domain.ErrEmbeddingDimension),
		domain.IsKind(err, domain.ErrNotFound):
		return ErrorClassification{}
	case domain.IsKind(err, domain.ErrTemporary):
		return ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return ErrorClassification{RecordFailure: true}
	}
}
