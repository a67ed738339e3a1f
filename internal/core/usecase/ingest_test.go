package usecase

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/source-knowledge/internal/core/domain"
)

func TestIngestUploadSuccess(t *testing.T) {
	storage := &storageFake{}
	queue := &queueFake{}
	uc := NewIngestCorpusUseCase(storage, queue, &processorFake{}, &docStoreFake{})

	key, err := uc.Upload(context.Background(), "report 1.txt", bytes.NewBufferString("hello"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if queue.key != key {
		t.Fatalf("expected queued key %s, got %s", key, queue.key)
	}
	if !strings.HasSuffix(storage.savedKey, "_report_1.txt") {
		t.Fatalf("expected sanitized key suffix, got %s", storage.savedKey)
	}
	if storage.savedBody != "hello" {
		t.Fatalf("expected saved body hello, got %s", storage.savedBody)
	}
}

func TestIngestUploadQueueError(t *testing.T) {
	uc := NewIngestCorpusUseCase(&storageFake{}, &queueFake{err: errors.New("queue down")}, &processorFake{}, &docStoreFake{})

	_, err := uc.Upload(context.Background(), "report.txt", bytes.NewBufferString("hello"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "publish ingestion event") {
		t.Fatalf("expected publish error, got %v", err)
	}
}

func TestIngestUploadProcessesInlineWithoutQueue(t *testing.T) {
	processor := &processorFake{}
	uc := NewIngestCorpusUseCase(&storageFake{}, nil, processor, &docStoreFake{})

	key, err := uc.Upload(context.Background(), "notes.md", bytes.NewBufferString("# notes"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if len(processor.keys) != 1 || processor.keys[0] != key {
		t.Fatalf("expected inline processing of %s, got %v", key, processor.keys)
	}
}

func TestIngestUploadRejectsEmptyFilename(t *testing.T) {
	uc := NewIngestCorpusUseCase(&storageFake{}, &queueFake{}, &processorFake{}, &docStoreFake{})

	_, err := uc.Upload(context.Background(), "  ", bytes.NewBufferString("x"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestIngestAddDocumentsRejectsDuplicates(t *testing.T) {
	store := &docStoreFake{}
	uc := NewIngestCorpusUseCase(&storageFake{}, nil, &processorFake{}, store)

	err := uc.AddDocuments(context.Background(), []domain.Document{
		{ID: "a", Text: "one"},
		{ID: "a", Text: "two"},
	})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if len(store.added) != 0 {
		t.Fatalf("expected nothing added, got %d", len(store.added))
	}
}

func TestIngestAddDocumentsCopiesMetadata(t *testing.T) {
	store := &docStoreFake{}
	uc := NewIngestCorpusUseCase(&storageFake{}, nil, &processorFake{}, store)

	docs := []domain.Document{{ID: "a", Text: "one", Metadata: map[string]string{"title": "A"}}}
	if err := uc.AddDocuments(context.Background(), docs); err != nil {
		t.Fatalf("AddDocuments() error = %v", err)
	}
	docs[0].Metadata["title"] = "changed"
	if store.added[0].Metadata["title"] != "A" {
		t.Fatalf("expected stored metadata to be isolated, got %q", store.added[0].Metadata["title"])
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "../etc/passwd", want: "passwd"},
		{in: "отчёт 2024.pdf", want: "______2024.pdf"},
		{in: "table.xlsx", want: "table.xlsx"},
		{in: "", want: "document.txt"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
