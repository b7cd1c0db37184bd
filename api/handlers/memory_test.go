package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/api"
	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/budget"
	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/core"
	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/store"
)

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()

	st := store.NewInMemoryStore(30*time.Minute, time.Now, zap.NewNop())
	b := budget.NewManager(budget.ManagerConfig{TotalBudget: 8000, ReservedTokens: 800}, zap.NewNop())
	manager := core.NewMemoryManager(st, b, zap.NewNop())
	manager.SetContext("main", "")

	mux := http.NewServeMux()
	NewMemoryHandler(manager, b, nil, zap.NewNop()).Routes(mux)
	NewSessionHandler(manager, nil, zap.NewNop()).Routes(mux)

	health := NewHealthHandler("test", zap.NewNop())
	health.Register(StoreCheck{Store: st})
	health.Routes(mux)

	return mux
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}

	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func createMemory(t *testing.T, mux *http.ServeMux, req api.CreateMemoryRequest) string {
	t.Helper()

	w := doRequest(t, mux, http.MethodPost, "/v1/memories", req)
	require.Equal(t, http.StatusCreated, w.Code)

	resp := decodeResponse(t, w)
	require.True(t, resp.Success)
	id := resp.Data.(map[string]any)["memory_id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestCreateAndGetMemory(t *testing.T) {
	mux := newTestMux(t)

	id := createMemory(t, mux, api.CreateMemoryRequest{
		Content:    "deployment uses blue/green rollout",
		Tier:       "working",
		Importance: 0.8,
		SessionID:  "sess1",
	})

	w := doRequest(t, mux, http.MethodGet, "/v1/memories/"+id+"?tier=working&session_id=sess1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse(t, w)
	require.True(t, resp.Success)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "deployment uses blue/green rollout", data["content"])
	assert.Equal(t, "working", data["tier"])
	assert.InDelta(t, 0.8, data["importance"], 1e-9)
}

func TestCreateMemoryValidation(t *testing.T) {
	mux := newTestMux(t)

	w := doRequest(t, mux, http.MethodPost, "/v1/memories", api.CreateMemoryRequest{Content: ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidRequest, resp.Error.Code)

	w = doRequest(t, mux, http.MethodPost, "/v1/memories", api.CreateMemoryRequest{
		Content: "x",
		Tier:    "ancient",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetMemoryNotFound(t *testing.T) {
	mux := newTestMux(t)

	w := doRequest(t, mux, http.MethodGet, "/v1/memories/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeNotFound, resp.Error.Code)
}

func TestUpdateMemory(t *testing.T) {
	mux := newTestMux(t)

	id := createMemory(t, mux, api.CreateMemoryRequest{Content: "v1", Tier: "working"})

	w := doRequest(t, mux, http.MethodPut, "/v1/memories/"+id, api.UpdateMemoryRequest{
		Content:    "v2",
		Tier:       "working",
		Importance: 0.9,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, mux, http.MethodGet, "/v1/memories/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeResponse(t, w).Data.(map[string]any)
	assert.Equal(t, "v2", data["content"])
}

func TestUpdateMemoryNotFound(t *testing.T) {
	mux := newTestMux(t)

	w := doRequest(t, mux, http.MethodPut, "/v1/memories/ghost", api.UpdateMemoryRequest{
		Content: "x",
		Tier:    "working",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteMemory(t *testing.T) {
	mux := newTestMux(t)

	id := createMemory(t, mux, api.CreateMemoryRequest{Content: "ephemeral", Tier: "working"})

	w := doRequest(t, mux, http.MethodDelete, "/v1/memories/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, mux, http.MethodGet, "/v1/memories/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListMemoriesByTier(t *testing.T) {
	mux := newTestMux(t)

	createMemory(t, mux, api.CreateMemoryRequest{Content: "a", Tier: "working", SessionID: "sess1"})
	createMemory(t, mux, api.CreateMemoryRequest{Content: "b", Tier: "long_term", SessionID: "sess1"})

	w := doRequest(t, mux, http.MethodGet, "/v1/memories?tier=working&session_id=sess1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	items := decodeResponse(t, w).Data.([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "a", items[0].(map[string]any)["content"])
}

func TestSearchMemoriesByMetadata(t *testing.T) {
	mux := newTestMux(t)

	createMemory(t, mux, api.CreateMemoryRequest{
		Content:  "the plan",
		Tier:     "working",
		Metadata: map[string]any{"topic": "rollout"},
	})
	createMemory(t, mux, api.CreateMemoryRequest{
		Content:  "unrelated",
		Tier:     "working",
		Metadata: map[string]any{"topic": "billing"},
	})

	w := doRequest(t, mux, http.MethodPost, "/v1/memories/search", api.SearchRequest{
		Query: map[string]any{"topic": "rollout"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	items := decodeResponse(t, w).Data.([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "the plan", items[0].(map[string]any)["content"])

	w = doRequest(t, mux, http.MethodPost, "/v1/memories/search", api.SearchRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBudgetEndpoint(t *testing.T) {
	mux := newTestMux(t)

	createMemory(t, mux, api.CreateMemoryRequest{Content: "tracked content", Tier: "working"})

	w := doRequest(t, mux, http.MethodGet, "/v1/budget", nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeResponse(t, w).Data.(map[string]any)
	assert.Equal(t, float64(8000), data["total_budget"])
	assert.Equal(t, float64(1), data["tracked_memories"])
	assert.Greater(t, data["used_tokens"], float64(0))
	assert.Less(t, data["available_tokens"], float64(7200))
}

func TestInvalidJSONBody(t *testing.T) {
	mux := newTestMux(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/memories", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidRequest, resp.Error.Code)
}
