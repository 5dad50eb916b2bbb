package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/kirillkom/statute-rag/internal/infrastructure/resilience"
	"github.com/nats-io/nats.go"
)

const (
	DefaultBuildSubject   = "statute.index.build"
	DefaultRebuiltSubject = "statute.corpus.rebuilt"
	buildQueueGroup       = "index-builders"
)

// Queue carries index build requests (work queue, one worker handles each)
// and corpus-rebuilt notices (fan-out, every API replica reloads).
type Queue struct {
	conn           *nats.Conn
	buildSubject   string
	rebuiltSubject string
	executor       *resilience.Executor
	logger         *slog.Logger
}

type Options struct {
	BuildSubject         string
	RebuiltSubject       string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("statute-rag"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", fmt.Sprint(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:           conn,
		buildSubject:   subjectOr(options.BuildSubject, DefaultBuildSubject),
		rebuiltSubject: subjectOr(options.RebuiltSubject, DefaultRebuiltSubject),
		executor:       options.ResilienceExecutor,
		logger:         logger,
	}, nil
}

func subjectOr(subject, fallback string) string {
	if s := strings.TrimSpace(subject); s != "" {
		return s
	}
	return fallback
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishBuildRequested(ctx context.Context, sourceID string) error {
	return q.publish(ctx, q.buildSubject, []byte(sourceID))
}

func (q *Queue) PublishCorpusRebuilt(ctx context.Context, chunkCount int) error {
	payload, err := encodeRebuilt(chunkCount, time.Now().UTC())
	if err != nil {
		return err
	}
	return q.publish(ctx, q.rebuiltSubject, payload)
}

func (q *Queue) publish(ctx context.Context, subject string, data []byte) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, data); err != nil {
			return toDomainError(fmt.Errorf("nats publish %s: %w", subject, err))
		}
		return nil
	}
	if q.executor == nil {
		return call(ctx)
	}
	return toDomainError(q.executor.Execute(ctx, "nats.publish", call, nil))
}

// toDomainError marks connection-level failures temporary; the executor
// retries those and the API reports them as 503.
func toDomainError(err error) error {
	switch {
	case err == nil, domain.IsKind(err, domain.ErrTemporary):
		return err
	case resilience.IsCircuitOpen(err),
		errors.Is(err, nats.ErrNoServers),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrDisconnected),
		errors.Is(err, nats.ErrReconnectBufExceeded):
		return domain.WrapError(domain.ErrTemporary, "nats.publish", err)
	}
	return err
}

// SubscribeBuildRequested blocks until ctx is done.
func (q *Queue) SubscribeBuildRequested(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.buildSubject, buildQueueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		sourceID := string(msg.Data)
		if err := handler(handlerCtx, sourceID); err != nil {
			q.logger.Error("build_handler_failed", "source_id", sourceID, "error", err.Error())
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	return q.serve(ctx, sub)
}

// SubscribeCorpusRebuilt blocks until ctx is done.
func (q *Queue) SubscribeCorpusRebuilt(ctx context.Context, handler func(context.Context, int) error) error {
	sub, err := q.conn.Subscribe(q.rebuiltSubject, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		count, err := decodeRebuilt(msg.Data)
		if err != nil {
			q.logger.Warn("rebuilt_message_invalid", "error", err.Error())
			return
		}
		if err := handler(ctx, count); err != nil {
			q.logger.Error("rebuilt_handler_failed", "chunk_count", count, "error", err.Error())
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	return q.serve(ctx, sub)
}

func (q *Queue) serve(ctx context.Context, sub *nats.Subscription) error {
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

type rebuiltMessage struct {
	ChunkCount int       `json:"chunk_count"`
	BuiltAt    time.Time `json:"built_at"`
}

func encodeRebuilt(chunkCount int, at time.Time) ([]byte, error) {
	raw, err := json.Marshal(rebuiltMessage{ChunkCount: chunkCount, BuiltAt: at})
	if err != nil {
		return nil, fmt.Errorf("encode rebuilt message: %w", err)
	}
	return raw, nil
}

func decodeRebuilt(data []byte) (int, error) {
	var msg rebuiltMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return 0, fmt.Errorf("decode rebuilt message: %w", err)
	}
	if msg.ChunkCount < 0 {
		return 0, fmt.Errorf("negative chunk count %d", msg.ChunkCount)
	}
	return msg.ChunkCount, nil
}
