package docstore

import (
	"context"
	"errors"
	"sort"

	"github.com/kirillkom/source-knowledge/internal/core/domain"
	"github.com/kirillkom/source-knowledge/internal/core/ports"
)

const defaultRRFK = 60

// HybridStore writes to every member store and fuses their rankings with
// reciprocal rank fusion. Ties keep the order in which a document was first
// seen, scanning members in order.
type HybridStore struct {
	members []ports.DocumentStore
	rrfK    int
}

func NewHybridStore(rrfK int, members ...ports.DocumentStore) *HybridStore {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}
	return &HybridStore{members: members, rrfK: rrfK}
}

func (s *HybridStore) Add(ctx context.Context, docs []domain.Document) error {
	var errs []error
	for _, m := range s.members {
		if err := m.Add(ctx, docs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *HybridStore) Query(ctx context.Context, text string, k int) ([]domain.RetrievalResult, error) {
	if k <= 0 {
		return []domain.RetrievalResult{}, nil
	}
	lists := make([][]domain.RetrievalResult, 0, len(s.members))
	for _, m := range s.members {
		results, err := m.Query(ctx, text, k*2)
		if err != nil {
			return nil, err
		}
		lists = append(lists, results)
	}
	fused := FuseRRF(lists, s.rrfK)
	if len(fused) > k {
		fused = fused[:k]
	}
	return fused, nil
}

type fusedCandidate struct {
	doc   domain.Document
	score float64
	first int
}

// FuseRRF merges ranked lists, scoring each document 1/(rrfK+rank+1) per list.
func FuseRRF(lists [][]domain.RetrievalResult, rrfK int) []domain.RetrievalResult {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	acc := make(map[string]*fusedCandidate)
	order := make([]*fusedCandidate, 0)
	for _, list := range lists {
		for rank, r := range list {
			c, ok := acc[r.Document.ID]
			if !ok {
				c = &fusedCandidate{doc: r.Document, first: len(order)}
				acc[r.Document.ID] = c
				order = append(order, c)
			}
			c.score += 1.0 / float64(rrfK+rank+1)
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].score != order[j].score {
			return order[i].score > order[j].score
		}
		return order[i].first < order[j].first
	})

	out := make([]domain.RetrievalResult, 0, len(order))
	for _, c := range order {
		out = append(out, domain.RetrievalResult{Document: c.doc, Score: c.score})
	}
	return out
}
