package budget

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/config"
	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/internal/metrics"
	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/types"
)

// RelevanceSectionName marks a prompt section selected by query relevance
// instead of priority.
const RelevanceSectionName = "relevance"

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// TotalBudget is the overall token budget, typically the model's
	// context limit.
	TotalBudget int

	// ReservedTokens is held back for system messages and overhead when
	// computing the available budget.
	ReservedTokens int

	// Estimator converts text and memories to token counts. Nil selects the
	// default heuristic estimator.
	Estimator Estimator

	// Rules supplies component/tier budgets and adaptation policy. Optional.
	Rules *RulesManager

	// Summarizer backs the summarize adaptation strategy. Optional.
	Summarizer SummarizerFunc

	// Metrics records adaptation passes. Optional.
	Metrics *metrics.Collector

	// Now is injectable for tests. Nil defaults to time.Now.
	Now func() time.Time
}

// Manager is the token budget engine's composition root. It tracks the
// cumulative token cost of a session's memories, triggers adaptation when a
// component budget is exceeded, and exposes the selection and prompt
// construction operations used by the surrounding memory store.
//
// The tracked-memory map is the engine's only mutable shared state; it is
// guarded by a mutex so a Manager can back a concurrent service, though the
// intended shape is one Manager per active session.
type Manager struct {
	mu sync.RWMutex

	totalBudget    int
	reservedTokens int
	usedTokens     int
	tracked        map[string]TrackedMemory

	componentID string
	sessionID   string

	estimator         Estimator
	rules             *RulesManager
	summarizer        SummarizerFunc
	metrics           *metrics.Collector
	prioritySelector  *PrioritySelector
	relevanceSelector *RelevanceSelector
	constructor       *Constructor
	formatter         *Formatter

	now    func() time.Time
	logger *zap.Logger
}

// NewManager creates a Manager.
func NewManager(cfg ManagerConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Estimator == nil {
		cfg.Estimator = NewHeuristicEstimator(0, 0)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	formatter := NewFormatter("")
	return &Manager{
		totalBudget:       cfg.TotalBudget,
		reservedTokens:    cfg.ReservedTokens,
		tracked:           make(map[string]TrackedMemory),
		estimator:         cfg.Estimator,
		rules:             cfg.Rules,
		summarizer:        cfg.Summarizer,
		metrics:           cfg.Metrics,
		prioritySelector:  NewPrioritySelector(cfg.Estimator, cfg.Now),
		relevanceSelector: NewRelevanceSelector(cfg.Estimator, nil),
		constructor:       NewConstructor(cfg.Estimator, formatter, cfg.Rules, logger),
		formatter:         formatter,
		now:               cfg.Now,
		logger:            logger.With(zap.String("component", "token_budget")),
	}
}

// SetContext sets the current component and session. Empty values leave the
// existing context untouched.
func (m *Manager) SetContext(componentID, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if componentID != "" {
		m.componentID = componentID
		m.constructor.SetComponent(componentID)
	}
	if sessionID != "" {
		m.sessionID = sessionID
	}
}

// EstimateTokens estimates the token count of a text string.
func (m *Manager) EstimateTokens(text string) int {
	return m.estimator.EstimateText(text)
}

// EstimateMemoryTokens estimates the token count of a memory record.
func (m *Manager) EstimateMemoryTokens(mem *types.Memory) int {
	return m.estimator.EstimateMemory(mem)
}

// TrackMemory adds a memory to the running total and returns its estimated
// token cost. When a component budget is configured and the total exceeds
// it, the configured adaptation strategy runs immediately and may evict
// other tracked memories.
func (m *Manager) TrackMemory(mem *types.Memory) int {
	tokens := m.estimator.EstimateMemory(mem)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.tracked[mem.ID] = TrackedMemory{Memory: mem, Tokens: tokens}
	m.usedTokens += tokens

	m.adaptIfNeededLocked()
	return tokens
}

// UntrackMemory removes a memory from the running total and returns the
// tokens freed, zero when the ID is unknown.
func (m *Manager) UntrackMemory(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	tm, ok := m.tracked[id]
	if !ok {
		return 0
	}
	delete(m.tracked, id)
	m.usedTokens -= tm.Tokens
	return tm.Tokens
}

// UsedTokens returns the current tracked token total.
func (m *Manager) UsedTokens() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usedTokens
}

// TrackedCount returns the number of tracked memories.
func (m *Manager) TrackedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tracked)
}

// CurrentBudget returns the budget for the current context: the component's
// tier budget when a tier is given, the component budget otherwise, and the
// total budget when no rules or component context is set.
func (m *Manager) CurrentBudget(tier types.Tier) int {
	m.mu.RLock()
	componentID := m.componentID
	m.mu.RUnlock()

	if m.rules == nil || componentID == "" {
		return m.totalBudget
	}
	if tier != "" {
		return m.rules.TierBudget(componentID, tier)
	}
	return m.rules.ComponentBudget(componentID)
}

// AvailableBudget returns the tokens still available after the running
// total, the manager's reserve, and any additional reservation.
func (m *Manager) AvailableBudget(reservedTokens int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	available := m.totalBudget - m.usedTokens - m.reservedTokens - reservedTokens
	if available < 0 {
		return 0
	}
	return available
}

// adaptIfNeededLocked runs the configured adaptation strategy when the
// running total exceeds the component budget, reducing toward that budget.
// Usage at or under the budget never evicts. Caller holds m.mu.
func (m *Manager) adaptIfNeededLocked() {
	if m.rules == nil || m.componentID == "" {
		return
	}
	budget := m.rules.ComponentBudget(m.componentID)
	if budget <= 0 || m.usedTokens <= budget {
		return
	}

	kind := m.rules.AdaptationStrategy(m.componentID)
	adapter := NewAdapter(kind, m.rules.ReductionTarget(), m.summarizer, m.now, m.logger)
	result := adapter.Adapt(m.tracked, m.usedTokens, budget)

	m.tracked = result.Memories
	m.usedTokens = result.UsedTokens

	if len(result.RemovedIDs) > 0 {
		m.metrics.RecordAdaptation(string(kind))
		m.logger.Info("adapted tracked memories",
			zap.String("component_id", m.componentID),
			zap.String("strategy", string(kind)),
			zap.Int("removed", len(result.RemovedIDs)),
			zap.Int("used_tokens", m.usedTokens),
			zap.Int("target_tokens", budget))
	}
}

// SelectMemoriesByPriority selects memories by weighted recency and
// importance within maxTokens. Component-configured weights override the
// given ones when a rules manager and component context are set.
func (m *Manager) SelectMemoriesByPriority(memories []*types.Memory, maxTokens int, recencyWeight, importanceWeight float64) []*types.Memory {
	m.mu.RLock()
	componentID := m.componentID
	m.mu.RUnlock()

	if m.rules != nil && componentID != "" {
		if _, ok := m.rules.ComponentRules(componentID); ok {
			recencyWeight, importanceWeight = m.rules.PriorityWeights(componentID)
		}
	}
	return m.prioritySelector.Select(memories, maxTokens, recencyWeight, importanceWeight)
}

// SelectShortTermMemories selects conversational history, weighting recency
// heavily unless the component configures its own weights.
func (m *Manager) SelectShortTermMemories(memories []*types.Memory, maxTokens int) []*types.Memory {
	return m.SelectMemoriesByPriority(memories, maxTokens, ShortTermRecencyWeight, ShortTermImportanceWeight)
}

// SelectWorkingMemories selects session context, balancing recency and
// importance unless the component configures its own weights.
func (m *Manager) SelectWorkingMemories(memories []*types.Memory, maxTokens int) []*types.Memory {
	return m.SelectMemoriesByPriority(memories, maxTokens, WorkingRecencyWeight, WorkingImportanceWeight)
}

// SelectMemoriesByRelevance selects memories relevant to a query within
// maxTokens. A non-nil relevanceFn substitutes the scoring function for
// this call only.
func (m *Manager) SelectMemoriesByRelevance(memories []*types.Memory, query string, maxTokens int, relevanceFn RelevanceFunc) []*types.Memory {
	m.mu.RLock()
	componentID := m.componentID
	m.mu.RUnlock()

	threshold := DefaultRelevanceThreshold
	if m.rules != nil && componentID != "" {
		threshold = m.rules.RelevanceThreshold(componentID)
	}

	selector := m.relevanceSelector
	if relevanceFn != nil {
		selector = NewRelevanceSelector(m.estimator, relevanceFn)
	}
	return selector.Select(memories, query, maxTokens, threshold)
}

// FormatMemoriesForPrompt renders memories with the default template.
func (m *Manager) FormatMemoriesForPrompt(memories []*types.Memory) string {
	return m.formatter.FormatMemories(memories, "", "")
}

// ConstructPromptWithMemories assembles a prompt from sectioned candidate
// memories within maxTokens. Sections named after a tier select by
// priority with that tier's policy weights; the "relevance" section (and
// any other non-tier section) selects by relevance to the user input.
func (m *Manager) ConstructPromptWithMemories(
	userInput string,
	sections map[string][]*types.Memory,
	maxTokens int,
	systemMessage string,
) (string, PromptUsage) {
	m.mu.RLock()
	componentID := m.componentID
	m.mu.RUnlock()

	threshold := DefaultRelevanceThreshold
	if m.rules != nil && componentID != "" {
		threshold = m.rules.RelevanceThreshold(componentID)
	}

	selectors := make(map[string]SectionSelector, len(sections))
	for name := range sections {
		switch types.Tier(name) {
		case types.TierShortTerm:
			selectors[name] = SectionSelectorFunc(m.SelectShortTermMemories)
		case types.TierWorking:
			selectors[name] = SectionSelectorFunc(m.SelectWorkingMemories)
		case types.TierLongTerm:
			selectors[name] = SectionSelectorFunc(func(mem []*types.Memory, budget int) []*types.Memory {
				return m.prioritySelector.Select(mem, budget, WorkingRecencyWeight, WorkingImportanceWeight)
			})
		default:
			selectors[name] = SectionSelectorFunc(func(mem []*types.Memory, budget int) []*types.Memory {
				return m.relevanceSelector.Select(mem, userInput, budget, threshold)
			})
		}
	}

	return m.constructor.ConstructPrompt(userInput, sections, maxTokens, systemMessage, nil, selectors)
}

// Rules exposes the rules manager, nil when unconfigured.
func (m *Manager) Rules() *RulesManager {
	return m.rules
}

// NewEstimatorFromConfig builds the configured estimator implementation.
func NewEstimatorFromConfig(cfg config.EstimatorConfig) Estimator {
	if cfg.Kind == config.EstimatorTiktoken {
		return NewTiktokenEstimator(cfg.Encoding)
	}
	return NewHeuristicEstimator(cfg.CharsPerToken, cfg.WordsPerToken)
}
