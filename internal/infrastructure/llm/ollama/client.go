package ollama

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/source-knowledge/internal/core/domain"
	"github.com/kirillkom/source-knowledge/internal/infrastructure/llm"
	"github.com/kirillkom/source-knowledge/internal/infrastructure/resilience"
)

const providerName = "ollama"

type Client struct {
	baseURL    string
	chatModel  string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, chatModel, embedModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		chatModel:  chatModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatProvider talks to /api/chat with streaming disabled.
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
		"stream":   false,
	}
	var response struct {
		Message chatMessage `json:"message"`
	}
	err := llm.Call(ctx, p.client.executor, providerName, domain.ProviderOpChat, func(ctx context.Context) error {
		return llm.PostJSON(ctx, p.client.httpClient, p.client.baseURL+"/api/chat", nil, payload, &response)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		Role:    domain.Role(response.Message.Role),
		Content: strings.TrimSpace(response.Message.Content),
	}, nil
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
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := llm.Call(ctx, e.client.executor, providerName, domain.ProviderOpEmbed, func(ctx context.Context) error {
		return llm.PostJSON(ctx, e.client.httpClient, e.client.baseURL+"/api/embed", nil, payload, &response)
	})
	if err != nil {
		return nil, err
	}
	return response.Embeddings, nil
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
