package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/source-knowledge/internal/core/domain"
	"github.com/kirillkom/source-knowledge/internal/infrastructure/resilience"
)

const workerGroup = "corpus-workers"

// Queue carries corpus object keys from the API to workers. Subscribers
// join one queue group, so each key is processed by a single worker.
type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
}

type Options struct {
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
	Executor       *resilience.Executor
}

type corpusEvent struct {
	Key         string    `json:"key"`
	PublishedAt time.Time `json:"published_at"`
}

func New(url, subject string, opts Options) (*Queue, error) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 2 * time.Second
	}
	if opts.ReconnectWait <= 0 {
		opts.ReconnectWait = 2 * time.Second
	}
	if opts.MaxReconnects <= 0 {
		opts.MaxReconnects = 60
	}

	conn, err := nats.Connect(
		url,
		nats.Name("source-knowledge"),
		nats.Timeout(opts.ConnectTimeout),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.MaxReconnects(opts.MaxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{conn: conn, subject: subject, executor: opts.Executor}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishCorpusObject(ctx context.Context, key string) error {
	data, err := encodeEvent(key, time.Now().UTC())
	if err != nil {
		return err
	}
	call := func(context.Context) error {
		if err := q.conn.Publish(q.subject, data); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil && (classifyNATSError(err).Retryable || resilience.IsCircuitOpen(err)) {
		return domain.WrapError(domain.ErrTemporary, "publish corpus object", err)
	}
	return err
}

// SubscribeCorpusObjects blocks until ctx is done, then drains the
// subscription so in-flight handlers finish.
func (q *Queue) SubscribeCorpusObjects(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, workerGroup, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		key, err := decodeEvent(msg.Data)
		if err != nil {
			slog.Error("corpus_event_invalid", "error", err)
			return
		}
		if err := handler(ctx, key); err != nil {
			slog.Error("corpus_event_failed", "key", key, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func encodeEvent(key string, at time.Time) ([]byte, error) {
	if strings.TrimSpace(key) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode corpus event", errors.New("key is required"))
	}
	return json.Marshal(corpusEvent{Key: key, PublishedAt: at})
}

// decodeEvent also accepts a bare key for producers that publish raw text.
func decodeEvent(data []byte) (string, error) {
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return "", errors.New("empty corpus event")
	}
	if !strings.HasPrefix(raw, "{") {
		return raw, nil
	}
	var ev corpusEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return "", fmt.Errorf("decode corpus event: %w", err)
	}
	if strings.TrimSpace(ev.Key) == "" {
		return "", errors.New("corpus event without key")
	}
	return ev.Key, nil
}

func classifyNATSError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case errors.Is(err, nats.ErrNoServers),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrDisconnected),
		errors.Is(err, nats.ErrConnectionReconnecting):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}
