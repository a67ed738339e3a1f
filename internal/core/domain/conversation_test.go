package domain

import (
	"errors"
	"testing"
	"time"
)

func TestWithMessagesLeavesReceiverUntouched(t *testing.T) {
	now := time.Unix(0, 0)
	base := NewConversation("c1", "sys", now)
	base.Messages = append(make([]Message, 0, 8), base.Messages...)

	a := base.WithMessages(now, Message{Role: RoleUser, Content: "a"})
	b := base.WithMessages(now, Message{Role: RoleUser, Content: "b"})

	if base.Len() != 1 {
		t.Fatalf("expected base length 1, got %d", base.Len())
	}
	if a.Messages[1].Content != "a" || b.Messages[1].Content != "b" {
		t.Fatalf("expected independent copies, got %q and %q", a.Messages[1].Content, b.Messages[1].Content)
	}
}

func TestNewConversationBlankSystemPrompt(t *testing.T) {
	conv := NewConversation("c1", "", time.Unix(0, 0))
	if conv.Len() != 0 {
		t.Fatalf("expected empty history, got %d", conv.Len())
	}
}

func TestConversationValidate(t *testing.T) {
	conv := &Conversation{Messages: []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleSystem, Content: "late"},
	}}
	if err := conv.Validate(); !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestProviderErrorKinds(t *testing.T) {
	retryable := NewProviderError("ollama", "chat", true, errors.New("503"))
	permanent := NewProviderError("ollama", "chat", false, errors.New("400"))

	if !errors.Is(retryable, ErrTemporary) || !errors.Is(retryable, ErrProvider) {
		t.Fatalf("expected retryable error to match temporary and provider kinds")
	}
	if errors.Is(permanent, ErrTemporary) {
		t.Fatalf("did not expect permanent error to match temporary")
	}
	wrapped := WrapError(ErrInvalidInput, "op", permanent)
	if got, ok := AsProviderError(wrapped); !ok || got != permanent {
		t.Fatalf("expected provider error through wrap chain")
	}
}

func TestRankResultsStable(t *testing.T) {
	in := []RetrievalResult{
		{Document: Document{ID: "a"}, Score: 0.5},
		{Document: Document{ID: "b"}, Score: 0.7},
		{Document: Document{ID: "c"}, Score: 0.5},
	}
	got := RankResults(in, 0)
	if got[0].Document.ID != "b" || got[1].Document.ID != "a" || got[2].Document.ID != "c" {
		t.Fatalf("unexpected order %+v", got)
	}
	if in[0].Document.ID != "a" {
		t.Fatalf("expected input untouched")
	}
}
