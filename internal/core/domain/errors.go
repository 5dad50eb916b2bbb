package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrTemporary    = errors.New("temporary failure")

	// Retrieval taxonomy.
	ErrInvalidQuery       = errors.New("invalid query")
	ErrEmptyIndex         = errors.New("index holds no chunks")
	ErrEmbeddingDimension = errors.New("embedding dimension mismatch")
	ErrNoRetrievalSignal  = errors.New("no retrieval signal available")

	// ErrSignalUnavailable marks a dense or lexical lookup that cannot run
	// against the current corpus (for example a lexical index without terms).
	// The retriever degrades instead of failing when it sees it.
	ErrSignalUnavailable = errors.New("retrieval signal unavailable")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
