package anthropic

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kirillkom/source-knowledge/internal/core/domain"
	"github.com/kirillkom/source-knowledge/internal/infrastructure/llm"
	"github.com/kirillkom/source-knowledge/internal/infrastructure/resilience"
)

const (
	providerName     = "anthropic"
	defaultMaxTokens = 1024
)

// ChatProvider adapts the Messages API. A leading system message is sent as
// the top-level system prompt.
type ChatProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	executor  *resilience.Executor
}

func NewChatProvider(apiKey, model string, maxTokens int, executor *resilience.Executor, opts ...option.RequestOption) *ChatProvider {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	// Retries belong to the executor.
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	return &ChatProvider{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: int64(maxTokens),
		executor:  executor,
	}
}

func (p *ChatProvider) Complete(ctx context.Context, messages []domain.Message) (domain.Message, error) {
	params := buildParams(p.model, p.maxTokens, messages)
	if len(params.Messages) == 0 {
		return domain.Message{}, llm.ProviderError(providerName, domain.ProviderOpChat, errors.New("no user or assistant messages to send"))
	}

	var reply *anthropic.Message
	err := llm.Call(ctx, p.executor, providerName, domain.ProviderOpChat, func(ctx context.Context) error {
		msg, err := p.client.Messages.New(ctx, params)
		if err != nil {
			return withStatus(err)
		}
		reply = msg
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}

	var b strings.Builder
	for _, block := range reply.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return domain.Message{Role: domain.RoleAssistant, Content: strings.TrimSpace(b.String())}, nil
}

func buildParams(model string, maxTokens int64, messages []domain.Message) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  make([]anthropic.MessageParam, 0, len(messages)),
	}
	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case domain.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return params
}

// withStatus exposes the API status code to the shared classifier.
func withStatus(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return errors.Join(&resilience.StatusError{StatusCode: apiErr.StatusCode}, err)
	}
	return err
}
