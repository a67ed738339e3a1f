package domain

import (
	"fmt"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleSystem, RoleUser, RoleAssistant:
		return Role(raw), nil
	default:
		return "", WrapError(ErrInvalidInput, "parse role", fmt.Errorf("unknown role %q", raw))
	}
}

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is an append-only message history. Values are treated as
// snapshots: WithMessages returns a new Conversation and never touches the
// receiver's backing array, so a failed turn can fall back to the previous value.
type Conversation struct {
	ID        string    `json:"id"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversation starts a history with a single leading system message.
// A blank system prompt yields an empty history.
func NewConversation(id, systemPrompt string, now time.Time) *Conversation {
	conv := &Conversation{
		ID:        id,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if systemPrompt != "" {
		conv.Messages = append(conv.Messages, Message{Role: RoleSystem, Content: systemPrompt})
	}
	return conv
}

func (c *Conversation) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Messages)
}

// Snapshot returns a deep copy of the conversation.
func (c *Conversation) Snapshot() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = append(make([]Message, 0, len(c.Messages)), c.Messages...)
	return &out
}

// WithMessages returns a copy with msgs appended.
func (c *Conversation) WithMessages(now time.Time, msgs ...Message) *Conversation {
	out := c.Snapshot()
	out.Messages = append(out.Messages, msgs...)
	out.UpdatedAt = now
	return out
}

// Validate checks the ordering rules a stored history must satisfy: known
// roles and at most one system message, which must lead.
func (c *Conversation) Validate() error {
	for i, msg := range c.Messages {
		if _, err := ParseRole(string(msg.Role)); err != nil {
			return err
		}
		if msg.Role == RoleSystem && i != 0 {
			return WrapError(ErrInvalidInput, "validate conversation", fmt.Errorf("system message at position %d", i))
		}
	}
	return nil
}
