package handlers

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/api"
	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/budget"
	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/core"
	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/internal/metrics"
	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/types"
)

const (
	defaultListLimit   = 100
	defaultSearchLimit = 100
)

// MemoryHandler serves the memory CRUD endpoints.
type MemoryHandler struct {
	manager *core.MemoryManager
	budget  *budget.Manager
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewMemoryHandler creates a memory handler.
func NewMemoryHandler(manager *core.MemoryManager, b *budget.Manager, collector *metrics.Collector, logger *zap.Logger) *MemoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryHandler{
		manager: manager,
		budget:  b,
		metrics: collector,
		logger:  logger.With(zap.String("component", "memory_handler")),
	}
}

// Routes registers the handler's endpoints on mux.
func (h *MemoryHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/memories", h.instrument("/v1/memories", h.Create))
	mux.HandleFunc("GET /v1/memories", h.instrument("/v1/memories", h.List))
	mux.HandleFunc("POST /v1/memories/search", h.instrument("/v1/memories/search", h.Search))
	mux.HandleFunc("GET /v1/memories/{id}", h.instrument("/v1/memories/{id}", h.Get))
	mux.HandleFunc("PUT /v1/memories/{id}", h.instrument("/v1/memories/{id}", h.Update))
	mux.HandleFunc("DELETE /v1/memories/{id}", h.instrument("/v1/memories/{id}", h.Delete))
	mux.HandleFunc("GET /v1/budget", h.instrument("/v1/budget", h.Budget))
}

func (h *MemoryHandler) instrument(path string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := NewResponseWriter(w)
		next(rw, r)
		h.metrics.RecordHTTPRequest(r.Method, path, rw.StatusCode, time.Since(start))
	}
}

// Create handles POST /v1/memories.
func (h *MemoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req api.CreateMemoryRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Content == "" {
		WriteErrorMessage(w, http.StatusBadRequest, CodeInvalidRequest, "content is required", h.logger)
		return
	}

	tier, err := parseTierParam(req.Tier, types.TierWorking)
	if err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, CodeInvalidRequest, err.Error(), h.logger)
		return
	}

	id, err := h.manager.AddMemory(r.Context(), req.Content, req.Metadata, tier, req.Importance, req.SessionID)
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

// Get handles GET /v1/memories/{id}.
func (h *MemoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	tier, err := parseTierParam(r.URL.Query().Get("tier"), "")
	if err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, CodeInvalidRequest, err.Error(), h.logger)
		return
	}

	memory, err := h.manager.GetMemory(r.Context(), r.PathValue("id"), tier, r.URL.Query().Get("session_id"))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, memory)
}

// Update handles PUT /v1/memories/{id}.
func (h *MemoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateMemoryRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	tier, err := parseTierParam(req.Tier, types.TierWorking)
	if err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, CodeInvalidRequest, err.Error(), h.logger)
		return
	}

	memory := &types.Memory{
		ID:         r.PathValue("id"),
		Content:    req.Content,
		Metadata:   req.Metadata,
		Tier:       tier,
		Importance: req.Importance,
		TTLSeconds: req.TTLSeconds,
	}
	if err := h.manager.UpdateMemory(r.Context(), memory); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, memory)
}

// Delete handles DELETE /v1/memories/{id}.
func (h *MemoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tier, err := parseTierParam(r.URL.Query().Get("tier"), "")
	if err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, CodeInvalidRequest, err.Error(), h.logger)
		return
	}

	if err := h.manager.DeleteMemory(r.Context(), r.PathValue("id"), tier, r.URL.Query().Get("session_id")); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"memory_id": r.PathValue("id")})
}

// List handles GET /v1/memories.
func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
	tier, err := parseTierParam(r.URL.Query().Get("tier"), "")
	if err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, CodeInvalidRequest, err.Error(), h.logger)
		return
	}
	limit := queryInt(r, "limit", defaultListLimit)
	offset := queryInt(r, "offset", 0)

	memories, err := h.manager.ListMemories(r.Context(), tier, r.URL.Query().Get("session_id"), limit, offset)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, memories)
}

// Search handles POST /v1/memories/search.
func (h *MemoryHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req api.SearchRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if len(req.Query) == 0 {
		WriteErrorMessage(w, http.StatusBadRequest, CodeInvalidRequest, "query is required", h.logger)
		return
	}

	tier, err := parseTierParam(req.Tier, "")
	if err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, CodeInvalidRequest, err.Error(), h.logger)
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	memories, err := h.manager.SearchByMetadata(r.Context(), req.Query, limit, tier)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, memories)
}

// Budget handles GET /v1/budget.
func (h *MemoryHandler) Budget(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, api.BudgetResponse{
		TotalBudget:     h.budget.CurrentBudget(""),
		UsedTokens:      h.budget.UsedTokens(),
		AvailableTokens: h.budget.AvailableBudget(0),
		TrackedMemories: h.budget.TrackedCount(),
	})
}

func parseTierParam(raw string, fallback types.Tier) (types.Tier, error) {
	if raw == "" {
		return fallback, nil
	}
	return types.ParseTier(raw)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
