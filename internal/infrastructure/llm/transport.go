// Package llm holds what the chat and embedding adapters share: JSON over
// HTTP and the mapping of raw failures to domain.ProviderError.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kirillkom/source-knowledge/internal/core/domain"
	"github.com/kirillkom/source-knowledge/internal/infrastructure/resilience"
)

// PostJSON sends payload to url and decodes the response into out. Non-2xx
// answers come back as *resilience.StatusError with the body excerpt.
func PostJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &resilience.StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Call runs fn through executor (when set) and converts any failure into a
// *domain.ProviderError.
func Call(ctx context.Context, executor *resilience.Executor, provider, operation string, fn func(context.Context) error) error {
	var err error
	if executor == nil {
		err = fn(ctx)
	} else {
		err = executor.Execute(ctx, provider+"."+operation, fn, resilience.ClassifyTransport)
	}
	if err != nil {
		return ProviderError(provider, operation, err)
	}
	return nil
}

// ProviderError classifies err: timeouts, throttling, 5xx, network failures
// and an open circuit are retryable.
func ProviderError(provider, operation string, err error) error {
	if err == nil {
		return nil
	}
	if existing, ok := domain.AsProviderError(err); ok {
		return existing
	}
	retryable := resilience.ClassifyTransport(err).Retryable || resilience.IsCircuitOpen(err)
	return domain.NewProviderError(provider, operation, retryable, err)
}
