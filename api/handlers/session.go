package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/api"
	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/core"
	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/internal/metrics"
)

const defaultRecentTurns = 5

// SessionHandler serves the session-scoped endpoints: conversation turns,
// session context, context windows and prompt assembly.
type SessionHandler struct {
	manager *core.MemoryManager
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(manager *core.MemoryManager, collector *metrics.Collector, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{
		manager: manager,
		metrics: collector,
		logger:  logger.With(zap.String("component", "session_handler")),
	}
}

// Routes registers the handler's endpoints on mux.
func (h *SessionHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/sessions/{session}/turns", h.instrument("/v1/sessions/{session}/turns", h.AddTurn))
	mux.HandleFunc("GET /v1/sessions/{session}/turns", h.instrument("/v1/sessions/{session}/turns", h.RecentTurns))
	mux.HandleFunc("PUT /v1/sessions/{session}/context", h.instrument("/v1/sessions/{session}/context", h.StoreContext))
	mux.HandleFunc("GET /v1/sessions/{session}/context", h.instrument("/v1/sessions/{session}/context", h.GetContext))
	mux.HandleFunc("GET /v1/sessions/{session}/window", h.instrument("/v1/sessions/{session}/window", h.ContextWindow))
	mux.HandleFunc("POST /v1/sessions/{session}/prompt", h.instrument("/v1/sessions/{session}/prompt", h.Prompt))
}

func (h *SessionHandler) instrument(path string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := NewResponseWriter(w)
		next(rw, r)
		h.metrics.RecordHTTPRequest(r.Method, path, rw.StatusCode, time.Since(start))
	}
}

// AddTurn handles POST /v1/sessions/{session}/turns.
func (h *SessionHandler) AddTurn(w http.ResponseWriter, r *http.Request) {
	var req api.AddTurnRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Content == "" {
		WriteErrorMessage(w, http.StatusBadRequest, CodeInvalidRequest, "content is required", h.logger)
		return
	}

	id, err := h.manager.AddConversationTurn(r.Context(), r.PathValue("session"), req.Content, req.Role, req.Importance)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusCreated, Response{
		Success:   true,
		Data:      api.CreateMemoryResponse{MemoryID: id},
		Timestamp: time.Now(),
	})
}

// RecentTurns handles GET /v1/sessions/{session}/turns.
func (h *SessionHandler) RecentTurns(w http.ResponseWriter, r *http.Request) {
	n := queryInt(r, "n", defaultRecentTurns)
	turns, err := h.manager.GetRecentTurns(r.Context(), r.PathValue("session"), n)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, turns)
}

// StoreContext handles PUT /v1/sessions/{session}/context.
func (h *SessionHandler) StoreContext(w http.ResponseWriter, r *http.Request) {
	var req api.StoreContextRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Key == "" {
		WriteErrorMessage(w, http.StatusBadRequest, CodeInvalidRequest, "key is required", h.logger)
		return
	}

	id, err := h.manager.StoreSessionContext(r.Context(), r.PathValue("session"), req.Key, req.Value, req.Importance)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, api.CreateMemoryResponse{MemoryID: id})
}

// GetContext handles GET /v1/sessions/{session}/context.
func (h *SessionHandler) GetContext(w http.ResponseWriter, r *http.Request) {
	entries, err := h.manager.GetSessionContext(r.Context(), r.PathValue("session"), r.URL.Query().Get("key"))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, entries)
}

// ContextWindow handles GET /v1/sessions/{session}/window.
func (h *SessionHandler) ContextWindow(w http.ResponseWriter, r *http.Request) {
	maxTokens := queryInt(r, "max_tokens", 0)
	window, err := h.manager.GetContextWindow(r.Context(), r.PathValue("session"), maxTokens)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, api.ContextWindowResponse{Context: window})
}

// Prompt handles POST /v1/sessions/{session}/prompt.
func (h *SessionHandler) Prompt(w http.ResponseWriter, r *http.Request) {
	var req api.PromptRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.UserQuery == "" {
		WriteErrorMessage(w, http.StatusBadRequest, CodeInvalidRequest, "user_query is required", h.logger)
		return
	}

	prompt, usage, err := h.manager.GeneratePrompt(r.Context(), r.PathValue("session"), req.SystemMessage, req.UserQuery, req.MaxTokens)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, api.PromptResponse{
		Prompt: prompt,
		Usage: api.PromptUsage{
			UserInput: usage.UserInput,
			System:    usage.System,
			Memories:  usage.Memories,
			Total:     usage.Total,
		},
	})
}
