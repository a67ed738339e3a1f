package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/kirillkom/source-knowledge/internal/core/domain"
	"github.com/kirillkom/source-knowledge/internal/infrastructure/llm"
	"github.com/kirillkom/source-knowledge/internal/infrastructure/resilience"
)

const providerName = "gemini"

type Client struct {
	genai      *genai.Client
	chatModel  string
	embedModel string
	executor   *resilience.Executor
}

// New builds a Gemini API client. baseURL is only set in tests.
func New(ctx context.Context, apiKey, baseURL, chatModel, embedModel string, executor *resilience.Executor) (*Client, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{
		genai:      client,
		chatModel:  chatModel,
		embedModel: embedModel,
		executor:   executor,
	}, nil
}

type ChatProvider struct {
	client *Client
}

func NewChatProvider(client *Client) *ChatProvider {
	return &ChatProvider{client: client}
}

func (p *ChatProvider) Complete(ctx context.Context, messages []domain.Message) (domain.Message, error) {
	contents, system := toContents(messages)
	if len(contents) == 0 {
		return domain.Message{}, llm.ProviderError(providerName, domain.ProviderOpChat, errors.New("no user or assistant messages to send"))
	}
	var config *genai.GenerateContentConfig
	if system != nil {
		config = &genai.GenerateContentConfig{SystemInstruction: system}
	}

	var text string
	err := llm.Call(ctx, p.client.executor, providerName, domain.ProviderOpChat, func(ctx context.Context) error {
		resp, err := p.client.genai.Models.GenerateContent(ctx, p.client.chatModel, contents, config)
		if err != nil {
			return withStatus(err)
		}
		text = resp.Text()
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{Role: domain.RoleAssistant, Content: strings.TrimSpace(text)}, nil
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
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}

	var out [][]float32
	err := llm.Call(ctx, e.client.executor, providerName, domain.ProviderOpEmbed, func(ctx context.Context) error {
		resp, err := e.client.genai.Models.EmbedContent(ctx, e.client.embedModel, contents, nil)
		if err != nil {
			return withStatus(err)
		}
		out = make([][]float32, 0, len(resp.Embeddings))
		for _, emb := range resp.Embeddings {
			out = append(out, emb.Values)
		}
		return nil
	})
	if err != nil {
		return nil, err
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

// toContents maps the history onto Gemini roles; system messages become the
// system instruction.
func toContents(messages []domain.Message) ([]*genai.Content, *genai.Content) {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			system = append(system, m.Content)
		case domain.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) == 0 {
		return contents, nil
	}
	return contents, genai.NewContentFromText(strings.Join(system, "\n"), genai.RoleUser)
}

func withStatus(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return errors.Join(&resilience.StatusError{StatusCode: apiErr.Code}, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return errors.Join(&resilience.StatusError{StatusCode: apiErrPtr.Code}, err)
	}
	return err
}
