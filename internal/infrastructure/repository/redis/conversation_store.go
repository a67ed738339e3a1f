package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/source-knowledge/internal/core/domain"
)

const keyPrefix = "conversation:"

// ConversationStore keeps each conversation as one JSON snapshot whose TTL
// is refreshed on every save.
type ConversationStore struct {
	client *redis.Client
	ttl    time.Duration
}

func New(addr, password string, db int, ttl time.Duration) *ConversationStore {
	return NewWithClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), ttl)
}

func NewWithClient(client *redis.Client, ttl time.Duration) *ConversationStore {
	return &ConversationStore{client: client, ttl: ttl}
}

func (s *ConversationStore) Save(ctx context.Context, conv *domain.Conversation) error {
	if conv == nil || conv.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "save conversation", errors.New("conversation id is required"))
	}
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+conv.ID, data, s.ttl).Err(); err != nil {
		return storeError("save conversation", err)
	}
	return nil
}

func (s *ConversationStore) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	raw, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.WrapError(domain.ErrConversationNotFound, "get conversation", fmt.Errorf("id=%s", id))
		}
		return nil, storeError("get conversation", err)
	}
	return decodeConversation(raw)
}

func (s *ConversationStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return storeError("ping redis", err)
	}
	return nil
}

func (s *ConversationStore) Close() error {
	return s.client.Close()
}

func decodeConversation(raw []byte) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := json.Unmarshal(raw, &conv); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	if conv.Messages == nil {
		conv.Messages = []domain.Message{}
	}
	if err := conv.Validate(); err != nil {
		return nil, err
	}
	return &conv, nil
}

func storeError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return domain.WrapError(domain.ErrStoreUnavailable, op, err)
}
