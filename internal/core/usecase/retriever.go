package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/source-knowledge/internal/core/domain"
	"github.com/kirillkom/source-knowledge/internal/core/ports"
)

// RetrieverUseCase queries the document store for the top-k documents.
// An empty store yields an empty, non-nil result slice.
type RetrieverUseCase struct {
	store   ports.DocumentStore
	timeout time.Duration
}

func NewRetrieverUseCase(store ports.DocumentStore) *RetrieverUseCase {
	return &RetrieverUseCase{store: store}
}

// WithTimeout bounds every store query. Zero keeps only the caller's deadline.
func (uc *RetrieverUseCase) WithTimeout(timeout time.Duration) *RetrieverUseCase {
	uc.timeout = timeout
	return uc
}

func (uc *RetrieverUseCase) Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievalResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("query is required"))
	}
	if k < 1 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", fmt.Errorf("k must be >= 1, got %d", k))
	}

	if uc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.timeout)
		defer cancel()
	}

	raw, err := uc.store.Query(ctx, query, k)
	if err != nil {
		if domain.IsKind(err, domain.ErrStoreUnavailable) || domain.IsKind(err, domain.ErrInvalidInput) {
			return nil, fmt.Errorf("query document store: %w", err)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("query document store: %w", err)
		}
		return nil, domain.WrapError(domain.ErrStoreUnavailable, "query document store", err)
	}

	for _, r := range raw {
		if strings.TrimSpace(r.Document.ID) == "" {
			return nil, domain.WrapError(domain.ErrInvalidInput, "query document store", errors.New("store returned a document without id"))
		}
	}
	return domain.RankResults(raw, k), nil
}
