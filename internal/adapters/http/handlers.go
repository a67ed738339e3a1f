package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/source-knowledge/internal/core/domain"
)

type queryRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

func (rt *Router) uploadCorpusFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	key, err := rt.ingestor.Upload(r.Context(), header.Filename, file)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"key": key})
}

func (rt *Router) addDocuments(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Documents []domain.Document `json:"documents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if err := rt.ingestor.AddDocuments(r.Context(), req.Documents); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	req, ok := rt.decodeQuery(w, r)
	if !ok {
		return
	}
	results, ok := rt.runRetrieve(w, r, "retrieve", req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (rt *Router) compose(w http.ResponseWriter, r *http.Request) {
	req, ok := rt.decodeQuery(w, r)
	if !ok {
		return
	}
	results, ok := rt.runRetrieve(w, r, "compose", req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rt.composer.ComposeWithSources(req.Query, results))
}

func (rt *Router) decodeQuery(w http.ResponseWriter, r *http.Request) (queryRequest, bool) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return req, false
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return req, false
	}
	if req.K == 0 {
		req.K = rt.cfg.RAGTopK
	}
	return req, true
}

func (rt *Router) runRetrieve(w http.ResponseWriter, r *http.Request, endpoint string, req queryRequest) ([]domain.RetrievalResult, bool) {
	start := time.Now()
	results, err := rt.retriever.Retrieve(r.Context(), req.Query, req.K)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	if rt.metrics != nil {
		rt.metrics.RecordRetrieval(endpoint, len(results), time.Since(start))
	}
	return results, true
}

func (rt *Router) startConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SystemPrompt *string `json:"system_prompt"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
	}
	systemPrompt := rt.cfg.SystemPrompt
	if req.SystemPrompt != nil {
		systemPrompt = *req.SystemPrompt
	}

	conv, err := rt.session.Start(r.Context(), systemPrompt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (rt *Router) getConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := rt.session.Load(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (rt *Router) postMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
		Augment bool   `json:"augment"`
		K       int    `json:"k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	conv, err := rt.session.Load(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	mode := "plain"
	var turn *domain.Turn
	if req.Augment {
		mode = "augmented"
		if req.K == 0 {
			req.K = rt.cfg.RAGTopK
		}
		turn, err = rt.session.AskAugmentedTurn(r.Context(), conv, req.Content, req.K)
	} else {
		var updated *domain.Conversation
		var answer string
		updated, answer, err = rt.session.Ask(r.Context(), conv, req.Content)
		turn = &domain.Turn{Conversation: updated, Answer: answer}
	}
	rt.recordTurn(mode, err)
	if err != nil {
		slog.Warn("chat_turn_failed",
			"request_id", requestIDFromContext(r.Context()),
			"conversation_id", conv.ID,
			"mode", mode,
			"error", err,
		)
		if turn != nil && turn.Answer != "" {
			// The reply arrived but was not persisted; the client still gets it.
			writeJSON(w, mapErrorToHTTPStatus(err), turnError{Error: err.Error(), Turn: turn})
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, turn)
}

type turnError struct {
	Error string `json:"error"`
	*domain.Turn
}

func (rt *Router) recordTurn(mode string, err error) {
	if rt.metrics == nil {
		return
	}
	rt.metrics.RecordChatTurn(mode, err)
	if providerErr, ok := domain.AsProviderError(err); ok && providerErr.Operation == domain.ProviderOpChat {
		rt.metrics.RecordRollback(providerErr.Retryable)
	}
}
