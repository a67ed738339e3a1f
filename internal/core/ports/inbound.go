package ports

import (
	"context"
	"io"

	"github.com/kirillkom/source-knowledge/internal/core/domain"
)

// Retriever returns the top-k scored documents for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievalResult, error)
}

// PromptComposer renders retrieved documents and the query into one
// augmented instruction block.
type PromptComposer interface {
	Compose(query string, results []domain.RetrievalResult) string
	ComposeWithSources(query string, results []domain.RetrievalResult) domain.ComposedPrompt
}

// ChatSession drives a conversation against the chat provider.
type ChatSession interface {
	Start(ctx context.Context, systemPrompt string) (*domain.Conversation, error)
	Load(ctx context.Context, id string) (*domain.Conversation, error)
	Ask(ctx context.Context, conv *domain.Conversation, userText string) (*domain.Conversation, string, error)
	AskAugmented(ctx context.Context, conv *domain.Conversation, query string, k int) (*domain.Conversation, string, error)
	AskAugmentedTurn(ctx context.Context, conv *domain.Conversation, query string, k int) (*domain.Turn, error)
}

// CorpusIngestor accepts raw corpus files and caller-built documents.
type CorpusIngestor interface {
	Upload(ctx context.Context, filename string, body io.Reader) (string, error)
	AddDocuments(ctx context.Context, docs []domain.Document) error
}

// CorpusProcessor turns a stored corpus file into indexed documents.
type CorpusProcessor interface {
	ProcessByKey(ctx context.Context, key string) (int, error)
}
