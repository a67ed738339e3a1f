package httpadapter

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kirillkom/source-knowledge/internal/config"
	"github.com/kirillkom/source-knowledge/internal/core/ports"
)

const maxUploadBytes = 32 << 20

// Recorder is the metrics surface the router reports to.
type Recorder interface {
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
	RecordRetrieval(endpoint string, resultCount int, duration time.Duration)
	RecordChatTurn(mode string, err error)
	RecordRollback(retryable bool)
}

type Router struct {
	cfg       config.Config
	ingestor  ports.CorpusIngestor
	retriever ports.Retriever
	composer  ports.PromptComposer
	session   ports.ChatSession
	metrics   Recorder
}

func NewRouter(
	cfg config.Config,
	ingestor ports.CorpusIngestor,
	retriever ports.Retriever,
	composer ports.PromptComposer,
	session ports.ChatSession,
) *Router {
	if cfg.RAGTopK <= 0 {
		cfg.RAGTopK = 3
	}
	return &Router{
		cfg:       cfg,
		ingestor:  ingestor,
		retriever: retriever,
		composer:  composer,
		session:   session,
	}
}

// WithMetrics enables request metrics and the /metrics endpoint.
func (rt *Router) WithMetrics(m Recorder) *Router {
	rt.metrics = m
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/corpus/files", rt.uploadCorpusFile)
	mux.HandleFunc("POST /v1/corpus/documents", rt.addDocuments)
	mux.HandleFunc("POST /v1/retrieve", rt.retrieve)
	mux.HandleFunc("POST /v1/compose", rt.compose)
	mux.HandleFunc("POST /v1/conversations", rt.startConversation)
	mux.HandleFunc("GET /v1/conversations/{id}", rt.getConversation)
	mux.HandleFunc("POST /v1/conversations/{id}/messages", rt.postMessage)

	var handler http.Handler = mux
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
		handler = rt.metrics.Middleware(handler)
	}
	handler = backpressureMiddleware(handler, rt.cfg.APIBackpressureMax, time.Duration(rt.cfg.APIBackpressureWaitMs)*time.Millisecond)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
