// Package extractor turns stored corpus files into plain text, choosing a
// format decoder by file extension.
package extractor

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/kirillkom/source-knowledge/internal/core/domain"
	"github.com/kirillkom/source-knowledge/internal/core/ports"
	"github.com/kirillkom/source-knowledge/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/source-knowledge/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/source-knowledge/internal/infrastructure/extractor/xlsx"
)

// DecodeFunc converts raw file bytes into text.
type DecodeFunc func(raw []byte) (string, error)

type Extractor struct {
	storage  ports.ObjectStorage
	decoders map[string]DecodeFunc
}

func New(storage ports.ObjectStorage) *Extractor {
	return &Extractor{
		storage: storage,
		decoders: map[string]DecodeFunc{
			".txt":  plaintext.Decode,
			".md":   plaintext.Decode,
			".csv":  plaintext.Decode,
			".pdf":  pdf.Decode,
			".xlsx": xlsx.Decode,
		},
	}
}

// Supported reports whether files with the given name can be extracted.
func (e *Extractor) Supported(name string) bool {
	_, ok := e.decoders[strings.ToLower(filepath.Ext(name))]
	return ok
}

func (e *Extractor) Extract(ctx context.Context, key string) (string, error) {
	ext := strings.ToLower(filepath.Ext(key))
	decode, ok := e.decoders[ext]
	if !ok {
		return "", domain.WrapError(domain.ErrUnsupportedSourceType, "extract text", fmt.Errorf("extension %q of %s", ext, key))
	}

	reader, err := e.storage.Open(ctx, key)
	if err != nil {
		return "", fmt.Errorf("open corpus file: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read corpus file: %w", err)
	}

	text, err := decode(raw)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", ext, err)
	}
	return strings.TrimSpace(text), nil
}
