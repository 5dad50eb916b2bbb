package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/kirillkom/statute-rag/internal/infrastructure/resilience"
)

// StatusError is a non-2xx reply from the Ollama API.
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("ollama %s: status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("ollama %s: status %d: %s", e.Operation, e.StatusCode, body)
}

// Temporary reports statuses Ollama returns while a model is loading or the
// server is saturated.
func (e *StatusError) Temporary() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	op := "ollama." + operation
	call := func(ctx context.Context) error {
		return toDomainError(op, c.doPost(ctx, path, body, out, operation))
	}
	if c.executor == nil {
		return call(ctx)
	}
	return toDomainError(op, c.executor.Execute(ctx, op, call, nil))
}

func (c *Client) doPost(ctx context.Context, path string, body []byte, out any, operation string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{Operation: operation, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

// toDomainError marks failures worth retrying as temporary so the executor
// and the HTTP layer read them the same way.
func toDomainError(op string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var statusErr *StatusError
	var netErr net.Error
	switch {
	case resilience.IsCircuitOpen(err):
		return domain.WrapError(domain.ErrTemporary, op, err)
	case errors.As(err, &statusErr):
		if statusErr.Temporary() {
			return domain.WrapError(domain.ErrTemporary, op, err)
		}
		return err
	case errors.As(err, &netErr):
		return domain.WrapError(domain.ErrTemporary, op, err)
	}
	return err
}
