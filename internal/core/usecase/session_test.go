package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/source-knowledge/internal/core/domain"
)

func newTestSession(provider *chatProviderFake, store *docStoreFake, convStore *conversationStoreFake) *ChatSessionUseCase {
	uc := NewChatSessionUseCase(provider, NewRetrieverUseCase(store), NewPromptComposer(), nil, SessionConfig{})
	if convStore != nil {
		uc.store = convStore
	}
	seq := 0
	uc.newID = func() string {
		seq++
		return fmt.Sprintf("conv-%d", seq)
	}
	uc.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return uc
}

func TestStartSeedsSystemMessage(t *testing.T) {
	uc := newTestSession(&chatProviderFake{}, &docStoreFake{}, nil)

	conv, err := uc.Start(context.Background(), "You are helpful.")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if conv.Len() != 1 || conv.Messages[0].Role != domain.RoleSystem {
		t.Fatalf("expected single system message, got %+v", conv.Messages)
	}
	if conv.ID != "conv-1" {
		t.Fatalf("expected generated id conv-1, got %s", conv.ID)
	}
}

func TestAskAppendsTwoMessagesPerTurn(t *testing.T) {
	provider := &chatProviderFake{}
	uc := newTestSession(provider, &docStoreFake{}, nil)
	conv, _ := uc.Start(context.Background(), "sys")

	var err error
	for i := 0; i < 3; i++ {
		conv, _, err = uc.Ask(context.Background(), conv, fmt.Sprintf("question %d", i))
		if err != nil {
			t.Fatalf("Ask() error = %v", err)
		}
	}
	if conv.Len() != 1+2*3 {
		t.Fatalf("expected 7 messages, got %d", conv.Len())
	}
	for i := 1; i < conv.Len(); i++ {
		want := domain.RoleUser
		if i%2 == 0 {
			want = domain.RoleAssistant
		}
		if conv.Messages[i].Role != want {
			t.Fatalf("message %d role = %s, want %s", i, conv.Messages[i].Role, want)
		}
	}
	if got := len(provider.calls[2]); got != 6 {
		t.Fatalf("expected full history of 6 messages on third call, got %d", got)
	}
}

func TestAskRollsBackOnProviderError(t *testing.T) {
	provider := &chatProviderFake{errs: []error{domain.NewProviderError("fake", "complete", true, errors.New("rate limited"))}}
	uc := newTestSession(provider, &docStoreFake{}, nil)
	conv, _ := uc.Start(context.Background(), "sys")

	after, answer, err := uc.Ask(context.Background(), conv, "hello")
	if err == nil {
		t.Fatalf("expected error")
	}
	providerErr, ok := domain.AsProviderError(err)
	if !ok || !providerErr.Retryable {
		t.Fatalf("expected retryable provider error, got %v", err)
	}
	if answer != "" {
		t.Fatalf("expected empty answer, got %q", answer)
	}
	if after.Len() != conv.Len() || conv.Len() != 1 {
		t.Fatalf("expected unchanged length 1, got before=%d after=%d", conv.Len(), after.Len())
	}
}

func TestAskClassifiesPlainErrors(t *testing.T) {
	provider := &chatProviderFake{errs: []error{context.DeadlineExceeded, errors.New("bad request")}}
	uc := newTestSession(provider, &docStoreFake{}, nil)
	conv, _ := uc.Start(context.Background(), "")

	_, _, err := uc.Ask(context.Background(), conv, "one")
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected deadline to be retryable, got %v", err)
	}
	_, _, err = uc.Ask(context.Background(), conv, "two")
	if !domain.IsKind(err, domain.ErrProvider) || domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected permanent provider error, got %v", err)
	}
}

func TestAskRejectsBlankReply(t *testing.T) {
	provider := &chatProviderFake{replies: []domain.Message{{Role: domain.RoleAssistant, Content: "  "}}}
	uc := newTestSession(provider, &docStoreFake{}, nil)
	conv, _ := uc.Start(context.Background(), "sys")

	after, _, err := uc.Ask(context.Background(), conv, "hello")
	if !domain.IsKind(err, domain.ErrProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if after.Len() != 1 {
		t.Fatalf("expected rollback, got %d messages", after.Len())
	}
}

func TestAskDoesNotMutateInput(t *testing.T) {
	uc := newTestSession(&chatProviderFake{}, &docStoreFake{}, nil)
	conv, _ := uc.Start(context.Background(), "sys")

	updated, _, err := uc.Ask(context.Background(), conv, "hello")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if conv.Len() != 1 || updated.Len() != 3 {
		t.Fatalf("expected input untouched and copy grown, got %d and %d", conv.Len(), updated.Len())
	}
}

func TestAskAugmentedStoresComposedPrompt(t *testing.T) {
	store := &docStoreFake{results: []domain.RetrievalResult{
		result("d1", "Llama 2 ranges from 7B to 70B parameters.", 0.83),
	}}
	provider := &chatProviderFake{replies: []domain.Message{{Role: domain.RoleAssistant, Content: "7B to 70B."}}}
	uc := newTestSession(provider, store, nil)
	conv, _ := uc.Start(context.Background(), "sys")

	turn, err := uc.AskAugmentedTurn(context.Background(), conv, "Tell me about Llama 2 size", 1)
	if err != nil {
		t.Fatalf("AskAugmentedTurn() error = %v", err)
	}
	if turn.Answer != "7B to 70B." {
		t.Fatalf("unexpected answer %q", turn.Answer)
	}
	userMsg := turn.Conversation.Messages[1].Content
	ctxIdx := strings.Index(userMsg, "Contexts:")
	docIdx := strings.Index(userMsg, "Llama 2 ranges")
	queryIdx := strings.Index(userMsg, "Query: Tell me about Llama 2 size")
	if ctxIdx < 0 || docIdx < ctxIdx || queryIdx < docIdx {
		t.Fatalf("expected augmented prompt in history, got %q", userMsg)
	}
	if len(turn.Sources) != 1 || turn.Sources[0].Document.ID != "d1" {
		t.Fatalf("expected d1 source, got %+v", turn.Sources)
	}
	if store.queries[0] != "Tell me about Llama 2 size" {
		t.Fatalf("expected bare query sent to store, got %q", store.queries[0])
	}
}

func TestAskAugmentedEmptyStore(t *testing.T) {
	provider := &chatProviderFake{}
	uc := newTestSession(provider, &docStoreFake{}, nil)
	conv, _ := uc.Start(context.Background(), "sys")

	updated, _, err := uc.AskAugmented(context.Background(), conv, "x", 3)
	if err != nil {
		t.Fatalf("AskAugmented() error = %v", err)
	}
	if !strings.HasSuffix(updated.Messages[1].Content, "Contexts:\n\n\nQuery: x") {
		t.Fatalf("expected empty contexts block, got %q", updated.Messages[1].Content)
	}
}

func TestAskAugmentedRetrieveErrorLeavesConversation(t *testing.T) {
	provider := &chatProviderFake{}
	uc := newTestSession(provider, &docStoreFake{err: errors.New("down")}, nil)
	conv, _ := uc.Start(context.Background(), "sys")

	after, _, err := uc.AskAugmented(context.Background(), conv, "x", 0)
	if !domain.IsKind(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if after.Len() != 1 || len(provider.calls) != 0 {
		t.Fatalf("expected no provider call and unchanged conversation")
	}
}

func TestSessionPersistsAndLoads(t *testing.T) {
	convStore := newConversationStoreFake()
	uc := newTestSession(&chatProviderFake{}, &docStoreFake{}, convStore)
	conv, _ := uc.Start(context.Background(), "sys")

	if _, _, err := uc.Ask(context.Background(), conv, "hi"); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	loaded, err := uc.Load(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Len() != 3 {
		t.Fatalf("expected persisted 3 messages, got %d", loaded.Len())
	}
	if convStore.saves != 2 {
		t.Fatalf("expected 2 saves, got %d", convStore.saves)
	}
}

func TestSessionLoadWithoutStore(t *testing.T) {
	uc := newTestSession(&chatProviderFake{}, &docStoreFake{}, nil)

	_, err := uc.Load(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrConversationNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAskReturnsTurnWhenPersistFails(t *testing.T) {
	convStore := newConversationStoreFake()
	uc := newTestSession(&chatProviderFake{}, &docStoreFake{}, convStore)
	conv, _ := uc.Start(context.Background(), "sys")
	convStore.saveErr = errors.New("db down")

	updated, answer, err := uc.Ask(context.Background(), conv, "hi")
	if err == nil || !strings.Contains(err.Error(), "persist conversation") {
		t.Fatalf("expected persist error, got %v", err)
	}
	if updated.Len() != 3 || answer != "ok" {
		t.Fatalf("expected completed turn despite persist failure")
	}
}
