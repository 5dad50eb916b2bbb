package httpadapter

import (
	"context"
	"errors"
	"net/http"

	"github.com/kirillkom/statute-rag/internal/core/domain"
)

// statusClientClosedRequest follows the nginx convention for a caller that
// went away before the answer was ready.
const statusClientClosedRequest = 499

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidQuery), domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrEmbeddingDimension):
		return http.StatusInternalServerError
	case domain.IsKind(err, domain.ErrNoRetrievalSignal),
		domain.IsKind(err, domain.ErrEmptyIndex),
		domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// errorKind names the most specific domain kind in err for clients.
func errorKind(err error) string {
	kinds := []struct {
		kind error
		name string
	}{
		{domain.ErrInvalidQuery, "invalid_query"},
		{domain.ErrEmbeddingDimension, "embedding_dimension"},
		{domain.ErrNoRetrievalSignal, "no_retrieval_signal"},
		{domain.ErrEmptyIndex, "empty_index"},
		{domain.ErrInvalidInput, "invalid_input"},
		{domain.ErrNotFound, "not_found"},
		{domain.ErrUnauthorized, "unauthorized"},
		{domain.ErrTemporary, "temporary"},
	}
	for _, k := range kinds {
		if domain.IsKind(err, k.kind) {
			return k.name
		}
	}
	return "internal"
}
