package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kirillkom/source-knowledge/internal/core/domain"
	"github.com/kirillkom/source-knowledge/internal/core/ports"
)

// ProcessCorpusUseCase extracts, chunks and indexes one stored corpus file.
type ProcessCorpusUseCase struct {
	extractor ports.TextExtractor
	chunker   ports.Chunker
	store     ports.DocumentStore
}

func NewProcessCorpusUseCase(
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	store ports.DocumentStore,
) *ProcessCorpusUseCase {
	return &ProcessCorpusUseCase{
		extractor: extractor,
		chunker:   chunker,
		store:     store,
	}
}

// ProcessByKey returns the number of documents added to the store.
func (uc *ProcessCorpusUseCase) ProcessByKey(ctx context.Context, key string) (int, error) {
	if strings.TrimSpace(key) == "" {
		return 0, domain.WrapError(domain.ErrInvalidInput, "process corpus file", errors.New("key is required"))
	}

	text, err := uc.extractText(ctx, key)
	if err != nil {
		return 0, err
	}

	chunks, err := uc.chunk(text)
	if err != nil {
		return 0, err
	}

	docs := BuildChunkDocuments(key, chunks)
	if err := uc.store.Add(ctx, docs); err != nil {
		return 0, fmt.Errorf("add chunks to document store: %w", err)
	}
	return len(docs), nil
}

func (uc *ProcessCorpusUseCase) extractText(ctx context.Context, key string) (string, error) {
	text, err := uc.extractor.Extract(ctx, key)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("empty extracted text"))
	}
	return text, nil
}

func (uc *ProcessCorpusUseCase) chunk(text string) ([]string, error) {
	chunks := uc.chunker.Split(text)
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("chunking produced zero chunks"))
	}
	return chunks, nil
}

// BuildChunkDocuments names chunks "<source>#<index>" so re-ingesting the
// same source overwrites rather than duplicates.
func BuildChunkDocuments(source string, chunks []string) []domain.Document {
	docs := make([]domain.Document, 0, len(chunks))
	for i, chunk := range chunks {
		docs = append(docs, domain.Document{
			ID:   source + "#" + strconv.Itoa(i),
			Text: chunk,
			Metadata: map[string]string{
				domain.MetadataSource:     source,
				domain.MetadataChunkIndex: strconv.Itoa(i),
			},
		})
	}
	return docs
}
