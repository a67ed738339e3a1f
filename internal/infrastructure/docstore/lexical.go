package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/blevesearch/bleve"

	"github.com/kirillkom/source-knowledge/internal/core/domain"
)

type lexicalRecord struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// LexicalStore is a ports.DocumentStore over an in-memory bleve index. It
// needs no embedding provider.
type LexicalStore struct {
	mu    sync.RWMutex
	index bleve.Index
	docs  map[string]domain.Document
	seq   map[string]int64
	next  int64
}

func NewLexicalStore() (*LexicalStore, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}
	return &LexicalStore{
		index: index,
		docs:  make(map[string]domain.Document),
		seq:   make(map[string]int64),
	}, nil
}

func (s *LexicalStore) Add(_ context.Context, docs []domain.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := domain.ValidateBatch(docs); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, lexicalRecord{Text: doc.Text, Source: doc.Metadata[domain.MetadataSource]}); err != nil {
			return domain.WrapError(domain.ErrInvalidInput, "lexical add", err)
		}
	}
	if err := s.index.Batch(batch); err != nil {
		return domain.WrapError(domain.ErrStoreUnavailable, "lexical add", err)
	}
	for _, doc := range docs {
		s.docs[doc.ID] = doc.Clone()
		if _, ok := s.seq[doc.ID]; !ok {
			s.seq[doc.ID] = s.next
			s.next++
		}
	}
	return nil
}

func (s *LexicalStore) Query(ctx context.Context, text string, k int) ([]domain.RetrievalResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if k <= 0 || len(s.docs) == 0 {
		return []domain.RetrievalResult{}, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(text), k, 0, false)
	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStoreUnavailable, "lexical query", err)
	}

	type scored struct {
		id    string
		score float64
	}
	hits := make([]scored, 0, len(res.Hits))
	for _, h := range res.Hits {
		if _, ok := s.docs[h.ID]; ok {
			hits = append(hits, scored{id: h.ID, score: h.Score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return s.seq[hits[i].id] < s.seq[hits[j].id]
	})

	out := make([]domain.RetrievalResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, domain.RetrievalResult{Document: s.docs[h.id].Clone(), Score: h.score})
	}
	return out, nil
}

func (s *LexicalStore) Close() error {
	return s.index.Close()
}
