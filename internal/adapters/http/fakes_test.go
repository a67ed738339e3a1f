package httpadapter

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/kirillkom/source-knowledge/internal/config"
	"github.com/kirillkom/source-knowledge/internal/core/domain"
	"github.com/kirillkom/source-knowledge/internal/core/usecase"
)

type ingestorFake struct {
	err       error
	filename  string
	body      string
	documents []domain.Document
}

func (f *ingestorFake) Upload(_ context.Context, filename string, body io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.filename = filename
	f.body = string(raw)
	return "key-1_" + filename, nil
}

func (f *ingestorFake) AddDocuments(_ context.Context, docs []domain.Document) error {
	if f.err != nil {
		return f.err
	}
	f.documents = append(f.documents, docs...)
	return nil
}

type retrieverFake struct {
	results []domain.RetrievalResult
	err     error
	gotK    int
}

func (f *retrieverFake) Retrieve(_ context.Context, _ string, k int) ([]domain.RetrievalResult, error) {
	f.gotK = k
	if f.err != nil {
		return nil, f.err
	}
	if f.results == nil {
		return []domain.RetrievalResult{}, nil
	}
	return f.results, nil
}

type sessionFake struct {
	conversations map[string]*domain.Conversation
	askErr        error
	persistErr    error
	retrieveErr   error
	augmented     bool
	gotK          int
	startedWith   string
}

func newSessionFake() *sessionFake {
	return &sessionFake{conversations: map[string]*domain.Conversation{
		"c1": domain.NewConversation("c1", "You are helpful.", time.Unix(0, 0).UTC()),
	}}
}

func (f *sessionFake) Start(_ context.Context, systemPrompt string) (*domain.Conversation, error) {
	f.startedWith = systemPrompt
	conv := domain.NewConversation("new", systemPrompt, time.Unix(0, 0).UTC())
	f.conversations[conv.ID] = conv
	return conv, nil
}

func (f *sessionFake) Load(_ context.Context, id string) (*domain.Conversation, error) {
	conv, ok := f.conversations[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrConversationNotFound, "load conversation", io.EOF)
	}
	return conv, nil
}

func (f *sessionFake) Ask(_ context.Context, conv *domain.Conversation, userText string) (*domain.Conversation, string, error) {
	if f.askErr != nil {
		return conv, "", f.askErr
	}
	updated := conv.WithMessages(time.Unix(1, 0).UTC(),
		domain.Message{Role: domain.RoleUser, Content: userText},
		domain.Message{Role: domain.RoleAssistant, Content: "answer"},
	)
	return updated, "answer", f.persistErr
}

func (f *sessionFake) AskAugmented(ctx context.Context, conv *domain.Conversation, query string, k int) (*domain.Conversation, string, error) {
	turn, err := f.AskAugmentedTurn(ctx, conv, query, k)
	if err != nil {
		return conv, "", err
	}
	return turn.Conversation, turn.Answer, nil
}

func (f *sessionFake) AskAugmentedTurn(ctx context.Context, conv *domain.Conversation, query string, k int) (*domain.Turn, error) {
	f.augmented = true
	f.gotK = k
	if f.retrieveErr != nil {
		return nil, f.retrieveErr
	}
	updated, answer, err := f.Ask(ctx, conv, query)
	if err != nil && answer == "" {
		return nil, err
	}
	return &domain.Turn{
		Conversation: updated,
		Answer:       answer,
		Sources:      []domain.RetrievalResult{{Document: domain.Document{ID: "d1", Text: "ctx"}, Score: 0.5}},
	}, err
}

type recorderFake struct {
	turns     int
	rollbacks int
}

func (r *recorderFake) Middleware(next http.Handler) http.Handler { return next }
func (r *recorderFake) Handler() http.Handler { return http.NotFoundHandler() }
func (r *recorderFake) RecordRetrieval(string, int, time.Duration) {}
func (r *recorderFake) RecordChatTurn(string, error) { r.turns++ }
func (r *recorderFake) RecordRollback(bool) { r.rollbacks++ }

type routerDeps struct {
	ingestor  *ingestorFake
	retriever *retrieverFake
	session   *sessionFake
}

func newTestRouter(cfg config.Config) (*Router, routerDeps) {
	deps := routerDeps{
		ingestor:  &ingestorFake{},
		retriever: &retrieverFake{},
		session:   newSessionFake(),
	}
	return NewRouter(cfg, deps.ingestor, deps.retriever, usecase.NewPromptComposer(), deps.session), deps
}

func newTestHandler(cfg config.Config) http.Handler {
	router, _ := newTestRouter(cfg)
	return router.Handler()
}
