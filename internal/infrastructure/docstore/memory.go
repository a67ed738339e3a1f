package docstore

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/kirillkom/source-knowledge/internal/core/domain"
	"github.com/kirillkom/source-knowledge/internal/core/ports"
)

type memoryEntry struct {
	doc    domain.Document
	vector []float32
	norm   float64
	seq    int64
}

// MemoryIndex is an in-process ports.VectorIndex using cosine similarity.
// Re-adding an id replaces the document but keeps its original position.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries []memoryEntry
	byID    map[string]int
	dims    int
	nextSeq int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{byID: make(map[string]int)}
}

func (m *MemoryIndex) Upsert(_ context.Context, docs []domain.Document, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return domain.WrapError(domain.ErrInvalidInput, "memory upsert", fmt.Errorf("documents/vectors mismatch: %d != %d", len(docs), len(vectors)))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	dims := m.dims
	for i, vec := range vectors {
		if dims == 0 {
			dims = len(vec)
		}
		if len(vec) != dims {
			return domain.WrapError(domain.ErrInvalidInput, "memory upsert", fmt.Errorf("vector for %q has %d dimensions, index has %d", docs[i].ID, len(vec), dims))
		}
	}
	m.dims = dims

	for i, doc := range docs {
		entry := memoryEntry{
			doc:    doc.Clone(),
			vector: append([]float32(nil), vectors[i]...),
			norm:   l2(vectors[i]),
		}
		if pos, ok := m.byID[doc.ID]; ok {
			entry.seq = m.entries[pos].seq
			m.entries[pos] = entry
			continue
		}
		entry.seq = m.nextSeq
		m.nextSeq++
		m.byID[doc.ID] = len(m.entries)
		m.entries = append(m.entries, entry)
	}
	return nil
}

func (m *MemoryIndex) Search(_ context.Context, queryVector []float32, limit int) ([]ports.VectorHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.entries) == 0 || limit <= 0 {
		return []ports.VectorHit{}, nil
	}
	if len(queryVector) != m.dims {
		return nil, domain.WrapError(domain.ErrInvalidInput, "memory search", fmt.Errorf("query has %d dimensions, index has %d", len(queryVector), m.dims))
	}

	qNorm := l2(queryVector)
	hits := make([]ports.VectorHit, 0, len(m.entries))
	for _, e := range m.entries {
		hits = append(hits, ports.VectorHit{
			Document: e.doc.Clone(),
			Score:    cosine(queryVector, e.vector, qNorm, e.norm),
			Seq:      e.seq,
		})
	}
	return hits, nil
}

func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func l2(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func cosine(a, b []float32, aNorm, bNorm float64) float64 {
	if aNorm == 0 || bNorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (aNorm * bNorm)
}
