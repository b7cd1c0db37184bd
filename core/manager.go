package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/budget"
	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/internal/metrics"
	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/store"
	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/types"
)

// Memory type values assigned per tier when the caller leaves type unset.
const (
	typeConversationTurn = "conversation_turn"
	typeSessionContext   = "session_context"
)

const (
	defaultRecentTurns         = 5
	defaultContextImportance   = 0.7
	contextWindowTurnCandidate = 20
	promptTurnCandidates       = 10
	promptContextCandidates    = 50
)

// MemoryManager orchestrates a tiered store and a token budget manager for
// one application. Its operations mirror how an LLM application consumes
// memory: add and fetch records, append conversation turns, upsert session
// context, and generate budget-bounded prompts.
type MemoryManager struct {
	store   store.Store
	budget  *budget.Manager
	metrics *metrics.Collector

	componentID string
	now         func() time.Time
	logger      *zap.Logger
}

// ManagerOption configures a MemoryManager.
type ManagerOption func(*MemoryManager)

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) ManagerOption {
	return func(m *MemoryManager) { m.metrics = c }
}

// WithClock injects the clock, for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *MemoryManager) { m.now = now }
}

// NewMemoryManager creates a MemoryManager over a store and a budget
// manager.
func NewMemoryManager(s store.Store, b *budget.Manager, logger *zap.Logger, opts ...ManagerOption) *MemoryManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &MemoryManager{
		store:  s,
		budget: b,
		now:    time.Now,
		logger: logger.With(zap.String("component", "memory_manager")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetContext sets the component and session context on the manager, the
// store namespace and the budget manager.
func (m *MemoryManager) SetContext(componentID, sessionID string) {
	if componentID != "" {
		m.componentID = componentID
		m.store.SetComponent(componentID)
	}
	m.budget.SetContext(componentID, sessionID)
}

// enrich applies the tier's metadata defaults: a per-tier type, the session
// ID, and the current component ID.
func (m *MemoryManager) enrich(memory *types.Memory, sessionID string) {
	if memory.Metadata == nil {
		memory.Metadata = make(map[string]any)
	}
	if _, ok := memory.Metadata[types.MetaType]; !ok {
		switch memory.Tier {
		case types.TierShortTerm:
			memory.Metadata[types.MetaType] = typeConversationTurn
		case types.TierWorking:
			memory.Metadata[types.MetaType] = typeSessionContext
		}
	}
	if sessionID != "" {
		memory.Metadata[types.MetaSessionID] = sessionID
	}
	if m.componentID != "" {
		memory.Metadata[types.MetaComponentID] = m.componentID
	}
}

// AddMemory stores a new memory and returns its generated ID. A zero tier
// defaults to working; importance is clamped to [0,1].
func (m *MemoryManager) AddMemory(ctx context.Context, content string, metadata map[string]any, tier types.Tier, importance float64, sessionID string) (string, error) {
	now := m.now()
	memory := &types.Memory{
		ID:             uuid.NewString(),
		Content:        content,
		Metadata:       metadata,
		Tier:           tier,
		Importance:     importance,
		CreatedAt:      now,
		LastAccessedAt: now,
		UpdatedAt:      now,
	}
	if !memory.Tier.Valid() {
		memory.Tier = types.TierWorking
	}
	// Tier defaults must land before Normalize fills the generic type.
	m.enrich(memory, sessionID)
	memory.Normalize(now)

	id, err := m.store.Add(ctx, memory)
	if err != nil {
		m.metrics.RecordMemoryOp("add", string(memory.Tier), "error")
		return "", fmt.Errorf("add memory: %w", err)
	}

	tokens := m.budget.TrackMemory(memory)
	m.metrics.RecordMemoryOp("add", string(memory.Tier), "ok")
	m.metrics.RecordMemoryTokens(string(memory.Tier), tokens)
	m.metrics.SetTrackedMemories(m.componentID, m.budget.TrackedCount())

	m.logger.Debug("memory added",
		zap.String("memory_id", id),
		zap.String("tier", string(memory.Tier)),
		zap.Int("tokens", tokens))
	return id, nil
}

// GetMemory retrieves a memory by ID. With an empty tier the store probes
// each tier in canonical order. The record's last-accessed timestamp is
// refreshed.
func (m *MemoryManager) GetMemory(ctx context.Context, id string, tier types.Tier, sessionID string) (*types.Memory, error) {
	memory, err := m.store.Get(ctx, id, tier, sessionID)
	if err != nil {
		m.metrics.RecordMemoryOp("get", string(tier), "miss")
		return nil, err
	}
	m.metrics.RecordMemoryOp("get", string(memory.Tier), "ok")
	return memory, nil
}

// UpdateMemory patches an existing memory with the given record's fields.
// Creation time and metadata keys absent from the update are preserved; the
// result is re-normalized and its budget tracking refreshed.
func (m *MemoryManager) UpdateMemory(ctx context.Context, memory *types.Memory) error {
	if memory.ID == "" {
		return fmt.Errorf("update memory: missing ID")
	}

	existing, err := m.store.Get(ctx, memory.ID, memory.Tier, memory.SessionID())
	if err != nil {
		m.metrics.RecordMemoryOp("update", string(memory.Tier), "miss")
		return fmt.Errorf("update memory %q: %w", memory.ID, err)
	}

	memory.CreatedAt = existing.CreatedAt
	memory.LastAccessedAt = existing.LastAccessedAt
	if memory.Tier == "" {
		memory.Tier = existing.Tier
	}
	merged := make(map[string]any, len(existing.Metadata)+len(memory.Metadata))
	for k, v := range existing.Metadata {
		merged[k] = v
	}
	for k, v := range memory.Metadata {
		merged[k] = v
	}
	memory.Metadata = merged

	memory.Normalize(m.now())
	m.enrich(memory, memory.SessionID())

	if err := m.store.Update(ctx, memory); err != nil {
		m.metrics.RecordMemoryOp("update", string(memory.Tier), "error")
		return fmt.Errorf("update memory %q: %w", memory.ID, err)
	}

	m.budget.UntrackMemory(memory.ID)
	m.budget.TrackMemory(memory)
	m.metrics.RecordMemoryOp("update", string(memory.Tier), "ok")
	return nil
}

// DeleteMemory removes a memory and releases its tracked tokens.
func (m *MemoryManager) DeleteMemory(ctx context.Context, id string, tier types.Tier, sessionID string) error {
	if err := m.store.Delete(ctx, id, tier, sessionID); err != nil {
		m.metrics.RecordMemoryOp("delete", string(tier), "error")
		return err
	}
	m.budget.UntrackMemory(id)
	m.metrics.RecordMemoryOp("delete", string(tier), "ok")
	m.metrics.SetTrackedMemories(m.componentID, m.budget.TrackedCount())
	return nil
}

// ListMemories returns stored memories filtered by tier and session.
func (m *MemoryManager) ListMemories(ctx context.Context, tier types.Tier, sessionID string, limit, offset int) ([]*types.Memory, error) {
	return m.store.List(ctx, tier, sessionID, limit, offset)
}

// SearchByMetadata returns memories whose metadata contains every key/value
// pair in query.
func (m *MemoryManager) SearchByMetadata(ctx context.Context, query map[string]any, limit int, tier types.Tier) ([]*types.Memory, error) {
	return m.store.SearchByMetadata(ctx, query, limit, tier)
}

// AddConversationTurn appends a turn to short-term memory, tagged with the
// speaker role and a timestamp.
func (m *MemoryManager) AddConversationTurn(ctx context.Context, sessionID, content, role string, importance float64) (string, error) {
	metadata := map[string]any{
		types.MetaSessionID: sessionID,
		types.MetaType:      typeConversationTurn,
		types.MetaRole:      role,
		"timestamp":         m.now().Format(time.RFC3339Nano),
	}
	return m.AddMemory(ctx, content, metadata, types.TierShortTerm, importance, sessionID)
}

// GetRecentTurns returns the n most recent conversation turns for a
// session, newest first. Non-positive n defaults to 5.
func (m *MemoryManager) GetRecentTurns(ctx context.Context, sessionID string, n int) ([]*types.Memory, error) {
	if n <= 0 {
		n = defaultRecentTurns
	}

	turns, err := m.store.SearchByMetadata(ctx, map[string]any{
		types.MetaSessionID: sessionID,
		types.MetaType:      typeConversationTurn,
	}, 100, types.TierShortTerm)
	if err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}

	sort.SliceStable(turns, func(i, j int) bool {
		if !turns[i].CreatedAt.Equal(turns[j].CreatedAt) {
			return turns[i].CreatedAt.After(turns[j].CreatedAt)
		}
		return turns[i].ID < turns[j].ID
	})

	if len(turns) > n {
		turns = turns[:n]
	}
	return turns, nil
}

// StoreSessionContext upserts a key piece of session state in working
// memory. An existing entry for the same context key is updated in place.
// Non-positive importance defaults to 0.7.
func (m *MemoryManager) StoreSessionContext(ctx context.Context, sessionID, key, value string, importance float64) (string, error) {
	if importance <= 0 {
		importance = defaultContextImportance
	}

	query := map[string]any{
		types.MetaSessionID:  sessionID,
		types.MetaType:       typeSessionContext,
		types.MetaContextKey: key,
	}

	existing, err := m.store.SearchByMetadata(ctx, query, 1, types.TierWorking)
	if err != nil {
		return "", fmt.Errorf("session context lookup: %w", err)
	}
	if len(existing) > 0 {
		memory := existing[0]
		memory.Content = value
		memory.Importance = importance
		if err := m.UpdateMemory(ctx, memory); err != nil {
			return "", err
		}
		return memory.ID, nil
	}

	return m.AddMemory(ctx, value, query, types.TierWorking, importance, sessionID)
}

// GetSessionContext returns the session's context entries as a key/value
// map. An empty key returns every entry.
func (m *MemoryManager) GetSessionContext(ctx context.Context, sessionID, key string) (map[string]string, error) {
	query := map[string]any{
		types.MetaSessionID: sessionID,
		types.MetaType:      typeSessionContext,
	}
	if key != "" {
		query[types.MetaContextKey] = key
	}

	memories, err := m.store.SearchByMetadata(ctx, query, 100, types.TierWorking)
	if err != nil {
		return nil, fmt.Errorf("session context: %w", err)
	}

	entries := make(map[string]string, len(memories))
	for _, memory := range memories {
		if ck, ok := memory.Metadata[types.MetaContextKey].(string); ok && ck != "" {
			entries[ck] = memory.Content
		}
	}
	return entries, nil
}

// GetContextWindow returns recent conversation history formatted for a
// prompt, within maxTokens.
func (m *MemoryManager) GetContextWindow(ctx context.Context, sessionID string, maxTokens int) (string, error) {
	turns, err := m.GetRecentTurns(ctx, sessionID, contextWindowTurnCandidate)
	if err != nil {
		return "", err
	}
	selected := m.budget.SelectShortTermMemories(turns, maxTokens)
	return m.budget.FormatMemoriesForPrompt(selected), nil
}

// GeneratePrompt assembles a budget-bounded prompt from the session's
// conversation history and working context. Non-positive maxTokens uses
// the budget manager's current component budget.
func (m *MemoryManager) GeneratePrompt(ctx context.Context, sessionID, systemMessage, userQuery string, maxTokens int) (string, budget.PromptUsage, error) {
	start := m.now()

	if maxTokens <= 0 {
		maxTokens = m.budget.CurrentBudget("")
	}

	turns, err := m.GetRecentTurns(ctx, sessionID, promptTurnCandidates)
	if err != nil {
		return "", budget.PromptUsage{}, err
	}

	working, err := m.store.SearchByMetadata(ctx, map[string]any{
		types.MetaSessionID: sessionID,
		types.MetaType:      typeSessionContext,
	}, promptContextCandidates, types.TierWorking)
	if err != nil {
		return "", budget.PromptUsage{}, fmt.Errorf("working memories: %w", err)
	}

	sections := map[string][]*types.Memory{
		string(types.TierShortTerm): turns,
		string(types.TierWorking):   working,
	}

	prompt, usage := m.budget.ConstructPromptWithMemories(userQuery, sections, maxTokens, systemMessage)

	blocks := map[string]int{"user_input": usage.UserInput, "system": usage.System}
	for name, tokens := range usage.Memories {
		blocks[name] = tokens
	}
	m.metrics.RecordPrompt(m.now().Sub(start), blocks)

	m.logger.Debug("prompt generated",
		zap.String("session_id", sessionID),
		zap.Int("max_tokens", maxTokens),
		zap.Int("total_tokens", usage.Total))
	return prompt, usage, nil
}

// Close releases the underlying store.
func (m *MemoryManager) Close() error {
	return m.store.Close()
}
