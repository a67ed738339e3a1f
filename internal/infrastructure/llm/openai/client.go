// Package openai speaks the OpenAI-compatible chat completions and
// embeddings API, which also covers vLLM, LM Studio and similar servers.
package openai

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/source-knowledge/internal/core/domain"
	"github.com/kirillkom/source-knowledge/internal/infrastructure/llm"
	"github.com/kirillkom/source-knowledge/internal/infrastructure/resilience"
)

const (
	providerName   = "openai"
	DefaultBaseURL = "https://api.openai.com/v1"
)

type Client struct {
	baseURL    string
	apiKey     string
	chatModel  string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, apiKey, chatModel, embedModel string, executor *resilience.Executor) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		chatModel:  chatModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

func (c *Client) headers() map[string]string {
	if c.apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}

func (c *Client) post(ctx context.Context, operation, path string, payload, out any) error {
	return llm.Call(ctx, c.executor, providerName, operation, func(ctx context.Context) error {
		return llm.PostJSON(ctx, c.httpClient, c.baseURL+path, c.headers(), payload, out)
	})
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatProvider struct {
	client *Client
}

func NewChatProvider(client *Client) *ChatProvider {
	return &ChatProvider{client: client}
}

func (p *ChatProvider) Complete(ctx context.Context, messages []domain.Message) (domain.Message, error) {
	payload := map[string]any{
		"model":    p.client.chatModel,
		"messages": toChatMessages(messages),
	}
	var response struct {
		Choices []struct {
			Message      chatMessage `json:"message"`
			FinishReason string      `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := p.client.post(ctx, domain.ProviderOpChat, "/chat/completions", payload, &response); err != nil {
		return domain.Message{}, err
	}
	if len(response.Choices) == 0 {
		return domain.Message{}, llm.ProviderError(providerName, domain.ProviderOpChat, errors.New("response has no choices"))
	}
	msg := response.Choices[0].Message
	return domain.Message{Role: domain.Role(msg.Role), Content: strings.TrimSpace(msg.Content)}, nil
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	payload := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}
	var response struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := e.client.post(ctx, domain.ProviderOpEmbed, "/embeddings", payload, &response); err != nil {
		return nil, err
	}
	sort.SliceStable(response.Data, func(i, j int) bool { return response.Data[i].Index < response.Data[j].Index })

	out := make([][]float32, 0, len(response.Data))
	for _, d := range response.Data {
		out = append(out, d.Embedding)
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, llm.ProviderError(providerName, domain.ProviderOpEmbed, errors.New("empty embedding result"))
	}
	return vectors[0], nil
}

func toChatMessages(messages []domain.Message) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}
