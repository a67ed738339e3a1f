package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/source-knowledge/internal/config"
	"github.com/kirillkom/source-knowledge/internal/core/domain"
)

func offlineConfig(t *testing.T, docstore string) config.Config {
	t.Helper()
	return config.Config{
		DocStoreBackend:     docstore,
		EmbedProvider:       "hash",
		ChatProvider:        "ollama",
		ConversationBackend: "memory",
		OllamaURL:           "http://127.0.0.1:1",
		HashDimensions:      128,
		StoragePath:         t.TempDir(),
		ChunkSize:           200,
		ChunkOverlap:        20,
		RAGTopK:             3,
		RAGFusionRRFK:       60,
	}
}

func TestNewWiresOfflineBackends(t *testing.T) {
	for _, backend := range []string{"memory", "lexical", "hybrid"} {
		t.Run(backend, func(t *testing.T) {
			app, err := New(context.Background(), offlineConfig(t, backend), nil)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer app.Close()

			if app.Queue != nil {
				t.Fatalf("expected no queue when nats is disabled")
			}

			ctx := context.Background()
			docs := []domain.Document{
				{ID: "d1", Text: "Llama 2 ranges from 7B to 70B parameters."},
				{ID: "d2", Text: "Bananas are rich in potassium."},
			}
			if err := app.IngestUC.AddDocuments(ctx, docs); err != nil {
				t.Fatalf("AddDocuments() error = %v", err)
			}
			results, err := app.Retriever.Retrieve(ctx, "Tell me about Llama 2 size", 1)
			if err != nil {
				t.Fatalf("Retrieve() error = %v", err)
			}
			if len(results) != 1 || results[0].Document.ID != "d1" {
				t.Fatalf("expected d1 on top, got %+v", results)
			}

			key, err := app.IngestUC.Upload(ctx, "notes.txt", strings.NewReader("Qdrant stores vectors next to payloads."))
			if err != nil {
				t.Fatalf("Upload() error = %v", err)
			}
			if key == "" {
				t.Fatalf("expected storage key")
			}
		})
	}
}

func TestNewRejectsUnknownBackends(t *testing.T) {
	cases := map[string]func(*config.Config){
		"docstore":     func(c *config.Config) { c.DocStoreBackend = "faiss" },
		"chat":         func(c *config.Config) { c.ChatProvider = "cohere" },
		"embed":        func(c *config.Config) { c.EmbedProvider = "cohere" },
		"conversation": func(c *config.Config) { c.ConversationBackend = "mongo" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := offlineConfig(t, "memory")
			mutate(&cfg)
			if _, err := New(context.Background(), cfg, nil); err == nil {
				t.Fatalf("expected error for unknown %s backend", name)
			}
		})
	}
}

func TestNewPreloadsCorpusDir(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"llama.md":  "Llama 2 ranges from 7B to 70B parameters.",
		"empty.txt": "   ",
		"image.png": "not text",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}

	cfg := offlineConfig(t, "lexical")
	cfg.CorpusDir = dir
	app, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	results, err := app.Retriever.Retrieve(context.Background(), "llama parameters", 3)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(results) != 1 || !strings.HasSuffix(results[0].Document.ID, "llama.md#0") {
		t.Fatalf("expected only the llama chunk, got %+v", results)
	}

	n, err := app.IngestDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("IngestDir() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one ingested file (empty one skipped), got %d", n)
	}
}
