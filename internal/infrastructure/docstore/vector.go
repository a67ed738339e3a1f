// Package docstore holds the ports.DocumentStore implementations.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kirillkom/source-knowledge/internal/core/domain"
	"github.com/kirillkom/source-knowledge/internal/core/ports"
)

// VectorStore embeds documents and queries, and delegates similarity search
// to a VectorIndex.
type VectorStore struct {
	embedder ports.Embedder
	index    ports.VectorIndex
}

func NewVectorStore(embedder ports.Embedder, index ports.VectorIndex) *VectorStore {
	return &VectorStore{embedder: embedder, index: index}
}

// NewMemoryStore is a VectorStore over an in-process index.
func NewMemoryStore(embedder ports.Embedder) *VectorStore {
	return NewVectorStore(embedder, NewMemoryIndex())
}

func (s *VectorStore) Add(ctx context.Context, docs []domain.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := domain.ValidateBatch(docs); err != nil {
		return err
	}

	texts := make([]string, 0, len(docs))
	for _, doc := range docs {
		texts = append(texts, doc.Text)
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return embedError("embed documents", err)
	}
	if len(vectors) != len(docs) {
		return domain.WrapError(domain.ErrStoreUnavailable, "embed documents", fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs)))
	}
	return s.index.Upsert(ctx, docs, vectors)
}

func (s *VectorStore) Query(ctx context.Context, text string, k int) ([]domain.RetrievalResult, error) {
	if k <= 0 {
		return []domain.RetrievalResult{}, nil
	}
	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, embedError("embed query", err)
	}
	hits, err := s.index.Search(ctx, vector, k)
	if err != nil {
		return nil, err
	}
	return hitsToResults(hits, k), nil
}

// hitsToResults orders hits by score, then by insertion sequence.
func hitsToResults(hits []ports.VectorHit, k int) []domain.RetrievalResult {
	ordered := append([]ports.VectorHit(nil), hits...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Score != ordered[j].Score {
			return ordered[i].Score > ordered[j].Score
		}
		return ordered[i].Seq < ordered[j].Seq
	})
	if len(ordered) > k {
		ordered = ordered[:k]
	}

	out := make([]domain.RetrievalResult, 0, len(ordered))
	for _, h := range ordered {
		out = append(out, domain.RetrievalResult{Document: h.Document, Score: h.Score})
	}
	return out
}

func embedError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return domain.WrapError(domain.ErrStoreUnavailable, op, err)
}
