package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/source-knowledge/internal/core/domain"
	"github.com/kirillkom/source-knowledge/internal/core/ports"
)

type SessionConfig struct {
	// ChatTimeout bounds a single provider call. Zero leaves the caller's
	// context as the only bound.
	ChatTimeout time.Duration
	// DefaultTopK is used by AskAugmented when k <= 0.
	DefaultTopK int
}

// ChatSessionUseCase appends turns to caller-owned conversations. Every
// method treats the incoming conversation as an immutable snapshot and
// returns a new value on success.
type ChatSessionUseCase struct {
	provider  ports.ChatProvider
	retriever ports.Retriever
	composer  ports.PromptComposer
	store     ports.ConversationStore
	cfg       SessionConfig

	now   func() time.Time
	newID func() string
}

// NewChatSessionUseCase wires the session. store may be nil, in which case
// conversations live only in the caller's hands.
func NewChatSessionUseCase(
	provider ports.ChatProvider,
	retriever ports.Retriever,
	composer ports.PromptComposer,
	store ports.ConversationStore,
	cfg SessionConfig,
) *ChatSessionUseCase {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 3
	}
	return &ChatSessionUseCase{
		provider:  provider,
		retriever: retriever,
		composer:  composer,
		store:     store,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

func (uc *ChatSessionUseCase) Start(ctx context.Context, systemPrompt string) (*domain.Conversation, error) {
	conv := domain.NewConversation(uc.newID(), strings.TrimSpace(systemPrompt), uc.now())
	if uc.store != nil {
		if err := uc.store.Save(ctx, conv); err != nil {
			return nil, fmt.Errorf("save new conversation: %w", err)
		}
	}
	return conv, nil
}

func (uc *ChatSessionUseCase) Load(ctx context.Context, id string) (*domain.Conversation, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "load conversation", errors.New("conversation id is required"))
	}
	if uc.store == nil {
		return nil, domain.WrapError(domain.ErrConversationNotFound, "load conversation", fmt.Errorf("id=%s: no conversation store configured", id))
	}
	conv, err := uc.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return conv, nil
}

// Ask appends userText, submits the whole history, and appends the reply.
// On provider failure the original conversation is returned unchanged
// together with a *domain.ProviderError.
func (uc *ChatSessionUseCase) Ask(ctx context.Context, conv *domain.Conversation, userText string) (*domain.Conversation, string, error) {
	if conv == nil {
		return nil, "", domain.WrapError(domain.ErrInvalidInput, "ask", errors.New("conversation is required"))
	}
	if strings.TrimSpace(userText) == "" {
		return conv, "", domain.WrapError(domain.ErrInvalidInput, "ask", errors.New("user text is required"))
	}

	pending := conv.WithMessages(uc.now(), domain.Message{Role: domain.RoleUser, Content: userText})

	callCtx := ctx
	if uc.cfg.ChatTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, uc.cfg.ChatTimeout)
		defer cancel()
	}

	reply, err := uc.provider.Complete(callCtx, pending.Snapshot().Messages)
	if err == nil {
		reply, err = normalizeReply(reply)
	}
	if err != nil {
		providerErr := asProviderError(err)
		slog.Warn("conversation_rolled_back",
			"conversation_id", conv.ID,
			"messages", conv.Len(),
			"retryable", providerErr.Retryable,
			"error", providerErr,
		)
		return conv, "", providerErr
	}

	updated := pending.WithMessages(uc.now(), reply)
	if uc.store != nil {
		if err := uc.store.Save(ctx, updated); err != nil {
			return updated, reply.Content, fmt.Errorf("persist conversation: %w", err)
		}
	}
	return updated, reply.Content, nil
}

// AskAugmented retrieves source knowledge for query, composes the augmented
// prompt and asks it as the user turn. The stored history keeps the
// augmented text, not the bare query.
func (uc *ChatSessionUseCase) AskAugmented(ctx context.Context, conv *domain.Conversation, query string, k int) (*domain.Conversation, string, error) {
	turn, err := uc.AskAugmentedTurn(ctx, conv, query, k)
	if err != nil {
		if turn != nil {
			return turn.Conversation, turn.Answer, err
		}
		return conv, "", err
	}
	return turn.Conversation, turn.Answer, nil
}

func (uc *ChatSessionUseCase) AskAugmentedTurn(ctx context.Context, conv *domain.Conversation, query string, k int) (*domain.Turn, error) {
	if conv == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask augmented", errors.New("conversation is required"))
	}
	if k <= 0 {
		k = uc.cfg.DefaultTopK
	}

	results, err := uc.retriever.Retrieve(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("retrieve source knowledge: %w", err)
	}

	composed := uc.composer.ComposeWithSources(query, results)
	updated, answer, err := uc.Ask(ctx, conv, composed.Text)
	if err != nil {
		if updated != nil && updated.Len() > conv.Len() {
			return &domain.Turn{Conversation: updated, Answer: answer, Sources: composed.Sources}, err
		}
		return nil, err
	}
	return &domain.Turn{
		Conversation: updated,
		Answer:       answer,
		Sources:      composed.Sources,
	}, nil
}

func normalizeReply(reply domain.Message) (domain.Message, error) {
	if reply.Role == "" {
		reply.Role = domain.RoleAssistant
	}
	if reply.Role != domain.RoleAssistant {
		return domain.Message{}, domain.NewProviderError("chat", domain.ProviderOpChat, false, fmt.Errorf("unexpected reply role %q", reply.Role))
	}
	if strings.TrimSpace(reply.Content) == "" {
		return domain.Message{}, domain.NewProviderError("chat", domain.ProviderOpChat, false, errors.New("empty reply content"))
	}
	return reply, nil
}

// asProviderError keeps adapter-built provider errors and classifies
// anything else by its kind.
func asProviderError(err error) *domain.ProviderError {
	if providerErr, ok := domain.AsProviderError(err); ok {
		return providerErr
	}
	retryable := errors.Is(err, context.DeadlineExceeded) || domain.IsKind(err, domain.ErrTemporary)
	return domain.NewProviderError("chat", domain.ProviderOpChat, retryable, err)
}
