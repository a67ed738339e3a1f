package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kirillkom/source-knowledge/internal/config"
	"github.com/kirillkom/source-knowledge/internal/core/ports"
	"github.com/kirillkom/source-knowledge/internal/core/usecase"
	"github.com/kirillkom/source-knowledge/internal/infrastructure/chunking"
	"github.com/kirillkom/source-knowledge/internal/infrastructure/docstore"
	"github.com/kirillkom/source-knowledge/internal/infrastructure/embedding/hashing"
	"github.com/kirillkom/source-knowledge/internal/infrastructure/extractor"
	"github.com/kirillkom/source-knowledge/internal/infrastructure/llm/anthropic"
	"github.com/kirillkom/source-knowledge/internal/infrastructure/llm/gemini"
	"github.com/kirillkom/source-knowledge/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/source-knowledge/internal/infrastructure/llm/openai"
	"github.com/kirillkom/source-knowledge/internal/infrastructure/queue/nats"
	"github.com/kirillkom/source-knowledge/internal/infrastructure/repository/inmemory"
	"github.com/kirillkom/source-knowledge/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/source-knowledge/internal/infrastructure/repository/redis"
	"github.com/kirillkom/source-knowledge/internal/infrastructure/resilience"
	"github.com/kirillkom/source-knowledge/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/source-knowledge/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config

	Store     ports.DocumentStore
	Storage   ports.ObjectStorage
	Extractor *extractor.Extractor
	Queue     ports.MessageQueue

	Retriever *usecase.RetrieverUseCase
	Composer  *usecase.PromptComposer
	Session   *usecase.ChatSessionUseCase
	IngestUC  *usecase.IngestCorpusUseCase
	ProcessUC *usecase.ProcessCorpusUseCase

	closers []func()
}

// New wires every collaborator selected by cfg. observer may be nil.
func New(ctx context.Context, cfg config.Config, observer resilience.Observer) (*App, error) {
	app := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	if err := app.Config.ApplyPromptFile(); err != nil {
		return nil, err
	}

	resCfg := resilience.DefaultConfig()
	if cfg.RetryMaxAttempts > 0 {
		resCfg.RetryMaxAttempts = cfg.RetryMaxAttempts
	}
	resCfg.BreakerEnabled = cfg.BreakerEnabled
	executor := resilience.NewExecutor(resCfg)
	if observer != nil {
		executor.WithObserver(observer)
	}

	store, err := app.buildDocumentStore(ctx, executor)
	if err != nil {
		return nil, err
	}
	app.Store = store

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}
	app.Storage = storage
	app.Extractor = extractor.New(storage)

	if cfg.NATSEnabled {
		queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{Executor: executor})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.Queue = queue
		app.closers = append(app.closers, queue.Close)
	}

	chat, err := app.buildChatProvider(ctx, executor)
	if err != nil {
		return nil, err
	}
	conversations, err := app.buildConversationStore(ctx)
	if err != nil {
		return nil, err
	}

	app.Retriever = usecase.NewRetrieverUseCase(store).
		WithTimeout(time.Duration(cfg.RetrieveTimeoutSeconds) * time.Second)
	app.Composer = usecase.NewPromptComposer(
		usecase.WithInstruction(app.Config.Instruction),
		usecase.WithMaxContextChars(cfg.RAGMaxContextChars),
	)
	app.Session = usecase.NewChatSessionUseCase(chat, app.Retriever, app.Composer, conversations, usecase.SessionConfig{
		ChatTimeout: time.Duration(cfg.ChatTimeoutSeconds) * time.Second,
		DefaultTopK: cfg.RAGTopK,
	})
	app.ProcessUC = usecase.NewProcessCorpusUseCase(app.Extractor, chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap), store)
	app.IngestUC = usecase.NewIngestCorpusUseCase(storage, app.Queue, app.ProcessUC, store)

	slog.Info("bootstrap_ready",
		"docstore", cfg.DocStoreBackend,
		"chat_provider", cfg.ChatProvider,
		"embed_provider", cfg.EmbedProvider,
		"conversation_backend", cfg.ConversationBackend,
		"nats_enabled", cfg.NATSEnabled,
	)
	if cfg.CorpusDir != "" {
		if _, err := app.IngestDir(ctx, cfg.CorpusDir); err != nil {
			return nil, err
		}
	}
	ok = true
	return app, nil
}

// IngestDir uploads every supported file directly inside dir. Files that
// fail are logged and skipped; the count of ingested files is returned.
func (a *App) IngestDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read corpus dir: %w", err)
	}
	n := 0
	for _, entry := range entries {
		if entry.IsDir() || !a.Extractor.Supported(entry.Name()) {
			continue
		}
		if _, err := a.IngestFile(ctx, filepath.Join(dir, entry.Name())); err != nil {
			if errors.Is(err, context.Canceled) {
				return n, err
			}
			slog.Warn("corpus_file_skipped", "file", entry.Name(), "error", err)
			continue
		}
		n++
	}
	slog.Info("corpus_dir_ingested", "dir", dir, "files", n)
	return n, nil
}

// IngestFile uploads one local file under its base name.
func (a *App) IngestFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	key, err := a.IngestUC.Upload(ctx, filepath.Base(path), f)
	if err != nil {
		return "", fmt.Errorf("ingest %s: %w", path, err)
	}
	return key, nil
}

// SystemPrompt is the configured default for new conversations.
func (a *App) SystemPrompt() string {
	return a.Config.SystemPrompt
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) buildDocumentStore(ctx context.Context, executor *resilience.Executor) (ports.DocumentStore, error) {
	switch a.Config.DocStoreBackend {
	case "lexical":
		return a.lexicalStore()
	case "memory", "":
		embedder, err := a.buildEmbedder(ctx, executor)
		if err != nil {
			return nil, err
		}
		return docstore.NewMemoryStore(embedder), nil
	case "qdrant":
		embedder, err := a.buildEmbedder(ctx, executor)
		if err != nil {
			return nil, err
		}
		index := qdrant.New(a.Config.QdrantURL, a.Config.QdrantCollection, executor)
		return docstore.NewVectorStore(embedder, index), nil
	case "hybrid":
		embedder, err := a.buildEmbedder(ctx, executor)
		if err != nil {
			return nil, err
		}
		lexical, err := a.lexicalStore()
		if err != nil {
			return nil, err
		}
		return docstore.NewHybridStore(a.Config.RAGFusionRRFK, docstore.NewMemoryStore(embedder), lexical), nil
	default:
		return nil, fmt.Errorf("unknown DOCSTORE_BACKEND %q", a.Config.DocStoreBackend)
	}
}

func (a *App) lexicalStore() (*docstore.LexicalStore, error) {
	store, err := docstore.NewLexicalStore()
	if err != nil {
		return nil, fmt.Errorf("init lexical store: %w", err)
	}
	a.closers = append(a.closers, func() { _ = store.Close() })
	return store, nil
}

func (a *App) buildEmbedder(ctx context.Context, executor *resilience.Executor) (ports.Embedder, error) {
	cfg := a.Config
	switch cfg.EmbedProvider {
	case "hash":
		return hashing.New(cfg.HashDimensions), nil
	case "ollama", "":
		return ollama.NewEmbedder(ollama.New(cfg.OllamaURL, cfg.OllamaChatModel, cfg.OllamaEmbedModel, executor)), nil
	case "openai":
		return openai.NewEmbedder(openai.New(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIChatModel, cfg.OpenAIEmbedModel, executor)), nil
	case "gemini":
		client, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiBaseURL, cfg.GeminiChatModel, cfg.GeminiEmbedModel, executor)
		if err != nil {
			return nil, fmt.Errorf("init gemini embedder: %w", err)
		}
		return gemini.NewEmbedder(client), nil
	default:
		return nil, fmt.Errorf("unknown EMBED_PROVIDER %q", cfg.EmbedProvider)
	}
}

func (a *App) buildChatProvider(ctx context.Context, executor *resilience.Executor) (ports.ChatProvider, error) {
	cfg := a.Config
	switch cfg.ChatProvider {
	case "ollama", "":
		return ollama.NewChatProvider(ollama.New(cfg.OllamaURL, cfg.OllamaChatModel, cfg.OllamaEmbedModel, executor)), nil
	case "openai":
		return openai.NewChatProvider(openai.New(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIChatModel, cfg.OpenAIEmbedModel, executor)), nil
	case "anthropic":
		return anthropic.NewChatProvider(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.AnthropicMaxTokens, executor), nil
	case "gemini":
		client, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiBaseURL, cfg.GeminiChatModel, cfg.GeminiEmbedModel, executor)
		if err != nil {
			return nil, fmt.Errorf("init gemini chat provider: %w", err)
		}
		return gemini.NewChatProvider(client), nil
	default:
		return nil, fmt.Errorf("unknown CHAT_PROVIDER %q", cfg.ChatProvider)
	}
}

func (a *App) buildConversationStore(ctx context.Context) (ports.ConversationStore, error) {
	cfg := a.Config
	switch cfg.ConversationBackend {
	case "memory", "":
		return inmemory.NewConversationStore(), nil
	case "postgres":
		db, err := postgres.OpenDB(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return postgres.NewConversationRepository(db), nil
	case "redis":
		store := redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, time.Duration(cfg.ConversationTTLHours)*time.Hour)
		a.closers = append(a.closers, func() { _ = store.Close() })
		if err := store.Ping(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown CONVERSATION_BACKEND %q", cfg.ConversationBackend)
	}
}
