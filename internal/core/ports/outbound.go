package ports

import (
	"context"
	"io"

	"github.com/kirillkom/source-knowledge/internal/core/domain"
)

// DocumentStore indexes documents and answers similarity queries. Embedding
// happens inside the store; callers only pass raw text.
type DocumentStore interface {
	Add(ctx context.Context, docs []domain.Document) error
	Query(ctx context.Context, text string, k int) ([]domain.RetrievalResult, error)
}

// Embedder builds vectors for documents and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorHit is one raw match returned by a VectorIndex.
type VectorHit struct {
	Document domain.Document
	Score    float64
	Seq      int64
}

// VectorIndex stores precomputed vectors next to their documents.
type VectorIndex interface {
	Upsert(ctx context.Context, docs []domain.Document, vectors [][]float32) error
	Search(ctx context.Context, queryVector []float32, limit int) ([]VectorHit, error)
}

// ChatProvider maps an ordered message sequence to the assistant reply.
type ChatProvider interface {
	Complete(ctx context.Context, messages []domain.Message) (domain.Message, error)
}

// ConversationStore persists conversation snapshots.
type ConversationStore interface {
	Save(ctx context.Context, conv *domain.Conversation) error
	Get(ctx context.Context, id string) (*domain.Conversation, error)
}

// ObjectStorage stores raw corpus files.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes corpus ingestion events.
type MessageQueue interface {
	PublishCorpusObject(ctx context.Context, key string) error
	SubscribeCorpusObjects(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor extracts plain text from a stored corpus file.
type TextExtractor interface {
	Extract(ctx context.Context, key string) (string, error)
}

// Chunker splits text into retrievable chunks.
type Chunker interface {
	Split(text string) []string
}
