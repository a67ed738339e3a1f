package usecase

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/kirillkom/source-knowledge/internal/core/domain"
)

type docStoreFake struct {
	results []domain.RetrievalResult
	err     error
	added   []domain.Document
	addErr  error
	queries []string
}

func (f *docStoreFake) Add(_ context.Context, docs []domain.Document) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, docs...)
	return nil
}

func (f *docStoreFake) Query(_ context.Context, text string, _ int) ([]domain.RetrievalResult, error) {
	f.queries = append(f.queries, text)
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type chatProviderFake struct {
	replies []domain.Message
	errs    []error
	calls   [][]domain.Message
}

func (f *chatProviderFake) Complete(_ context.Context, history []domain.Message) (domain.Message, error) {
	idx := len(f.calls)
	f.calls = append(f.calls, append([]domain.Message(nil), history...))
	if idx < len(f.errs) && f.errs[idx] != nil {
		return domain.Message{}, f.errs[idx]
	}
	if idx < len(f.replies) {
		return f.replies[idx], nil
	}
	return domain.Message{Role: domain.RoleAssistant, Content: "ok"}, nil
}

type conversationStoreFake struct {
	saved   map[string]*domain.Conversation
	saveErr error
	saves   int
}

func newConversationStoreFake() *conversationStoreFake {
	return &conversationStoreFake{saved: map[string]*domain.Conversation{}}
}

func (f *conversationStoreFake) Save(_ context.Context, conv *domain.Conversation) error {
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved[conv.ID] = conv.Snapshot()
	return nil
}

func (f *conversationStoreFake) Get(_ context.Context, id string) (*domain.Conversation, error) {
	conv, ok := f.saved[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrConversationNotFound, "get conversation", errors.New(id))
	}
	return conv.Snapshot(), nil
}

type storageFake struct {
	savedKey  string
	savedBody string
	err       error
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.savedKey = key
	f.savedBody = string(raw)
	return nil
}

func (f *storageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(f.savedBody)), nil
}

type queueFake struct {
	key string
	err error
}

func (f *queueFake) PublishCorpusObject(_ context.Context, key string) error {
	if f.err != nil {
		return f.err
	}
	f.key = key
	return nil
}

func (f *queueFake) SubscribeCorpusObjects(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

type processorFake struct {
	keys []string
	err  error
}

func (f *processorFake) ProcessByKey(_ context.Context, key string) (int, error) {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return 0, f.err
	}
	return 1, nil
}

type extractorFake struct {
	text string
	err  error
}

func (f *extractorFake) Extract(context.Context, string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type chunkerFake struct {
	chunks []string
}

func (f *chunkerFake) Split(string) []string { return f.chunks }

func result(id, text string, score float64) domain.RetrievalResult {
	return domain.RetrievalResult{Document: domain.Document{ID: id, Text: text}, Score: score}
}
