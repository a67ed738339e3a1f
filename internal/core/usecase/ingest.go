package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/source-knowledge/internal/core/domain"
	"github.com/kirillkom/source-knowledge/internal/core/ports"
)

// IngestCorpusUseCase accepts corpus files and caller-built documents. When
// no queue is configured an uploaded file is processed inline.
type IngestCorpusUseCase struct {
	storage   ports.ObjectStorage
	queue     ports.MessageQueue
	processor ports.CorpusProcessor
	store     ports.DocumentStore
}

func NewIngestCorpusUseCase(
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	processor ports.CorpusProcessor,
	store ports.DocumentStore,
) *IngestCorpusUseCase {
	return &IngestCorpusUseCase{
		storage:   storage,
		queue:     queue,
		processor: processor,
		store:     store,
	}
}

func (uc *IngestCorpusUseCase) Upload(ctx context.Context, filename string, body io.Reader) (string, error) {
	if strings.TrimSpace(filename) == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "upload corpus file", errors.New("filename is required"))
	}
	key := fmt.Sprintf("%s_%s", uuid.NewString(), sanitizeFilename(filename))

	if err := uc.storage.Save(ctx, key, body); err != nil {
		return "", fmt.Errorf("save to object storage: %w", err)
	}

	if uc.queue != nil {
		if err := uc.queue.PublishCorpusObject(ctx, key); err != nil {
			return "", fmt.Errorf("publish ingestion event: %w", err)
		}
		return key, nil
	}

	if _, err := uc.processor.ProcessByKey(ctx, key); err != nil {
		return "", fmt.Errorf("process corpus file inline: %w", err)
	}
	return key, nil
}

func (uc *IngestCorpusUseCase) AddDocuments(ctx context.Context, docs []domain.Document) error {
	if len(docs) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "add documents", errors.New("at least one document is required"))
	}
	if err := domain.ValidateBatch(docs); err != nil {
		return err
	}

	owned := make([]domain.Document, 0, len(docs))
	for _, doc := range docs {
		owned = append(owned, doc.Clone())
	}
	if err := uc.store.Add(ctx, owned); err != nil {
		return fmt.Errorf("add documents to store: %w", err)
	}
	return nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.txt"
	}
	return base
}
