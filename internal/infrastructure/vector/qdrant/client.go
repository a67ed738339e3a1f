package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/source-knowledge/internal/core/domain"
	"github.com/kirillkom/source-knowledge/internal/core/ports"
	"github.com/kirillkom/source-knowledge/internal/infrastructure/resilience"
)

const (
	payloadDocID    = "doc_id"
	payloadText     = "text"
	payloadMetadata = "metadata"
	payloadSeq      = "seq"
)

// Client is a ports.VectorIndex backed by the Qdrant REST API. Point ids are
// derived from document ids, so re-adding a document replaces it.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredVectorSize int

	seq atomic.Int64
}

func New(baseURL, collection string, executor *resilience.Executor) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		executor:   executor,
	}
	// Payload numbers round-trip through JSON, so seq stays below 2^53.
	c.seq.Store(time.Now().UnixMicro())
	return c
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func (c *Client) Upsert(ctx context.Context, docs []domain.Document, vectors [][]float32) error {
	if len(docs) == 0 {
		return nil
	}
	if len(docs) != len(vectors) {
		return domain.WrapError(domain.ErrInvalidInput, "qdrant upsert", fmt.Errorf("documents/vectors mismatch: %d != %d", len(docs), len(vectors)))
	}
	if err := c.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	points := make([]point, 0, len(docs))
	for i, doc := range docs {
		points = append(points, point{
			ID:     PointID(doc.ID),
			Vector: vectors[i],
			Payload: map[string]any{
				payloadDocID:    doc.ID,
				payloadText:     doc.Text,
				payloadMetadata: doc.Metadata,
				payloadSeq:      c.seq.Add(1),
			},
		})
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	err := c.run(ctx, "qdrant.upsert", func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPut, url, map[string]any{"points": points}, nil)
	})
	if err != nil {
		return storeError("qdrant upsert", err)
	}
	return nil
}

func (c *Client) Search(ctx context.Context, queryVector []float32, limit int) ([]ports.VectorHit, error) {
	if limit <= 0 {
		return []ports.VectorHit{}, nil
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	err := c.run(ctx, "qdrant.search", func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPost, url, reqBody, &searchResp)
	})
	if err != nil {
		var statusErr *resilience.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			// Collection is created on first upsert.
			return []ports.VectorHit{}, nil
		}
		return nil, storeError("qdrant search", err)
	}

	out := make([]ports.VectorHit, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, ports.VectorHit{
			Document: domain.Document{
				ID:       stringPayload(r.Payload, payloadDocID),
				Text:     stringPayload(r.Payload, payloadText),
				Metadata: metadataPayload(r.Payload),
			},
			Score: r.Score,
			Seq:   int64Payload(r.Payload, payloadSeq),
		})
	}
	return out, nil
}

// PointID maps a document id to a stable Qdrant point id.
func PointID(docID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("source-knowledge:"+docID)).String()
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	if c.ensuredVectorSize == vectorSize {
		return nil
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	err := c.run(ctx, "qdrant.ensure_collection", func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPut, url, reqBody, nil)
	})
	var statusErr *resilience.StatusError
	if err != nil && !(errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict) {
		return storeError("qdrant ensure collection", err)
	}
	c.ensuredVectorSize = vectorSize
	return nil
}

func (c *Client) run(ctx context.Context, op string, fn func(context.Context) error) error {
	if c.executor == nil {
		return fn(ctx)
	}
	return c.executor.Execute(ctx, op, fn, resilience.ClassifyTransport)
}

func (c *Client) doJSON(ctx context.Context, method, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &resilience.StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// storeError maps 4xx answers to invalid input and everything else to an
// unavailable store.
func storeError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var statusErr *resilience.StatusError
	if errors.As(err, &statusErr) && !resilience.RetryableStatus(statusErr.StatusCode) {
		return domain.WrapError(domain.ErrInvalidInput, op, err)
	}
	return domain.WrapError(domain.ErrStoreUnavailable, op, err)
}

func stringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func int64Payload(payload map[string]any, key string) int64 {
	switch v := payload[key].(type) {
	case json.Number:
		n, _ := v.Int64()
		return n
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func metadataPayload(payload map[string]any) map[string]string {
	raw, ok := payload[payloadMetadata].(map[string]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k := range raw {
		out[k] = stringPayload(raw, k)
	}
	return out
}
