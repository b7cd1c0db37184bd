package budget

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/config"
	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/internal/metrics"
	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/types"
)

func newTestManager(t *testing.T, rules *RulesManager) *Manager {
	t.Helper()
	return NewManager(ManagerConfig{
		TotalBudget:    8000,
		ReservedTokens: 800,
		Rules:          rules,
		Now:            fixedNow,
	}, nil)
}

func TestManagerTrackAndUntrack(t *testing.T) {
	m := newTestManager(t, nil)

	mem := types.NewMemory("m1", "remember the milk", nil, types.TierWorking, 0.5)
	tokens := m.TrackMemory(mem)

	assert.Equal(t, m.EstimateMemoryTokens(mem), tokens)
	assert.Equal(t, tokens, m.UsedTokens())
	assert.Equal(t, 1, m.TrackedCount())

	assert.Equal(t, tokens, m.UntrackMemory("m1"))
	assert.Equal(t, 0, m.UsedTokens())
	assert.Equal(t, 0, m.TrackedCount())

	assert.Equal(t, 0, m.UntrackMemory("ghost"))
}

func TestManagerAvailableBudget(t *testing.T) {
	m := newTestManager(t, nil)

	assert.Equal(t, 7200, m.AvailableBudget(0))
	assert.Equal(t, 7000, m.AvailableBudget(200))

	mem := types.NewMemory("m1", strings.Repeat("verbose fact ", 50), nil, types.TierWorking, 0.5)
	tokens := m.TrackMemory(mem)
	assert.Equal(t, 7200-tokens, m.AvailableBudget(0))

	assert.Equal(t, 0, m.AvailableBudget(100000), "never negative")
}

func TestManagerCurrentBudget(t *testing.T) {
	bare := newTestManager(t, nil)
	assert.Equal(t, 8000, bare.CurrentBudget(""))
	assert.Equal(t, 8000, bare.CurrentBudget(types.TierWorking))

	ruled := newTestManager(t, newTestRules(t, nil))
	assert.Equal(t, 8000, ruled.CurrentBudget(""), "no component context yet")

	ruled.SetContext("planner", "session-1")
	assert.Equal(t, 8000, ruled.CurrentBudget(""))
	assert.Equal(t, 3200, ruled.CurrentBudget(types.TierWorking))
}

func TestManagerAdaptsWhenComponentBudgetExceeded(t *testing.T) {
	rules := newTestRules(t, func(cfg *config.Config) {
		cfg.Components[1].TokenLimit = 39
		cfg.Components[1].TokenRules.AdaptationStrategy = config.AdaptReduce
	})
	m := newTestManager(t, rules)
	m.SetContext("scratchpad", "session-1")

	low := types.NewMemory("low", "barely matters at all honestly", nil, types.TierWorking, 0.1)
	high := types.NewMemory("high", "critical production endpoint", nil, types.TierWorking, 0.9)
	low.LastAccessedAt = selectionNow
	high.LastAccessedAt = selectionNow

	m.TrackMemory(high)
	usedBefore := m.UsedTokens()
	m.TrackMemory(low)

	// Adding the second memory pushed usage past the 39-token component
	// budget; reduction evicted the low-importance entry.
	assert.Equal(t, 1, m.TrackedCount())
	assert.Equal(t, usedBefore, m.UsedTokens())
}

func TestManagerNoAdaptationUnderComponentBudget(t *testing.T) {
	rules := newTestRules(t, func(cfg *config.Config) {
		cfg.Components[1].TokenLimit = 1000
	})
	m := newTestManager(t, rules)
	m.SetContext("scratchpad", "session-1")

	const n = 70
	used := 0
	for i := 0; i < n; i++ {
		used += m.TrackMemory(types.NewMemory(
			fmt.Sprintf("m%02d", i), "a", nil, types.TierWorking, 0.5))
	}

	require.Greater(t, used, 900, "usage sits above ninety percent of the budget")
	require.LessOrEqual(t, used, 1000)
	assert.Equal(t, n, m.TrackedCount(), "nothing evicted at or under the component budget")
	assert.Equal(t, used, m.UsedTokens())
}

func TestManagerAdaptsWhenCompressionDisabled(t *testing.T) {
	rules := newTestRules(t, func(cfg *config.Config) {
		cfg.Components[1].TokenLimit = 100
		cfg.TokenBudget.MemoryCompression.Enabled = false
	})
	m := newTestManager(t, rules)
	m.SetContext("scratchpad", "session-1")

	for i := 0; i < 10; i++ {
		m.TrackMemory(types.NewMemory(
			fmt.Sprintf("m%02d", i), "a", nil, types.TierWorking, 0.5))
	}

	assert.LessOrEqual(t, m.UsedTokens(), 100,
		"over-budget usage is reduced regardless of the compression gate")
	assert.Less(t, m.TrackedCount(), 10)
}

func TestManagerAdaptationRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("azentiq", reg, nil)
	rules := newTestRules(t, func(cfg *config.Config) {
		cfg.Components[1].TokenLimit = 20
	})
	m := NewManager(ManagerConfig{
		TotalBudget:    8000,
		ReservedTokens: 800,
		Rules:          rules,
		Metrics:        collector,
		Now:            fixedNow,
	}, nil)
	m.SetContext("scratchpad", "session-1")

	m.TrackMemory(types.NewMemory("a", "a", nil, types.TierWorking, 0.5))
	n, err := testutil.GatherAndCount(reg, "azentiq_adaptations_total")
	require.NoError(t, err)
	require.Equal(t, 0, n, "no adaptation while under the component budget")

	m.TrackMemory(types.NewMemory("b", "a", nil, types.TierWorking, 0.5))
	n, err = testutil.GatherAndCount(reg, "azentiq_adaptations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestManagerNoAdaptationWithoutComponentContext(t *testing.T) {
	m := newTestManager(t, newTestRules(t, nil))

	for i := 0; i < 20; i++ {
		m.TrackMemory(types.NewMemory(
			fmt.Sprintf("m%d", i), strings.Repeat("padding text ", 30), nil, types.TierWorking, 0.5))
	}
	assert.Equal(t, 20, m.TrackedCount())
}

func TestManagerSelectionPolicies(t *testing.T) {
	m := newTestManager(t, nil)

	fresh := &types.Memory{ID: "fresh", Content: "just said", Tier: types.TierShortTerm,
		Importance: 0.0, LastAccessedAt: selectionNow}
	stale := &types.Memory{ID: "stale", Content: "said yesterday", Tier: types.TierShortTerm,
		Importance: 1.0, LastAccessedAt: selectionNow.Add(-24 * time.Hour)}

	got := m.SelectShortTermMemories([]*types.Memory{stale, fresh}, 1000)
	require.Len(t, got, 2)
	assert.Equal(t, "fresh", got[0].ID, "short-term selection leans on recency")

	got = m.SelectWorkingMemories([]*types.Memory{stale, fresh}, 1000)
	require.Len(t, got, 2)
	assert.Equal(t, "stale", got[0].ID, "balanced weights let importance win")
}

func TestManagerTierHelpersUseComponentWeights(t *testing.T) {
	m := newTestManager(t, newTestRules(t, nil))
	m.SetContext("planner", "session-1")

	fresh := &types.Memory{ID: "fresh", Content: "just said", Tier: types.TierWorking,
		Importance: 0.0, LastAccessedAt: selectionNow}
	stale := &types.Memory{ID: "stale", Content: "said yesterday", Tier: types.TierWorking,
		Importance: 1.0, LastAccessedAt: selectionNow.Add(-24 * time.Hour)}

	// The balanced 0.5/0.5 policy default would rank stale first; planner's
	// configured 0.7/0.3 recency-heavy weights apply instead.
	got := m.SelectWorkingMemories([]*types.Memory{stale, fresh}, 1000)
	require.Len(t, got, 2)
	assert.Equal(t, "fresh", got[0].ID)
}

func TestManagerComponentWeightsOverrideCallersWeights(t *testing.T) {
	m := newTestManager(t, newTestRules(t, nil))
	m.SetContext("planner", "session-1")

	fresh := &types.Memory{ID: "fresh", Content: "just said", Tier: types.TierWorking,
		Importance: 0.0, LastAccessedAt: selectionNow}
	stale := &types.Memory{ID: "stale", Content: "said long ago", Tier: types.TierWorking,
		Importance: 1.0, LastAccessedAt: selectionNow.Add(-48 * time.Hour)}

	// Caller asks for importance-only ranking but planner's configured
	// 0.7/0.3 recency-heavy weights apply instead.
	got := m.SelectMemoriesByPriority([]*types.Memory{stale, fresh}, 1000, 0.0, 1.0)
	require.Len(t, got, 2)
	assert.Equal(t, "fresh", got[0].ID)
}

func TestManagerSelectByRelevance(t *testing.T) {
	m := newTestManager(t, nil)

	onTopic := &types.Memory{ID: "on", Content: "postgres connection pool sizing",
		Tier: types.TierLongTerm, LastAccessedAt: selectionNow}
	offTopic := &types.Memory{ID: "off", Content: "favourite hiking trails",
		Tier: types.TierLongTerm, LastAccessedAt: selectionNow}

	got := m.SelectMemoriesByRelevance([]*types.Memory{offTopic, onTopic},
		"postgres pool tuning", 1000, nil)
	require.Len(t, got, 1)
	assert.Equal(t, "on", got[0].ID)

	everything := RelevanceFunc(func(query, content string) float64 { return 1.0 })
	got = m.SelectMemoriesByRelevance([]*types.Memory{offTopic, onTopic},
		"postgres pool tuning", 1000, everything)
	assert.Len(t, got, 2)
}

func TestManagerConstructPromptWithMemories(t *testing.T) {
	m := newTestManager(t, nil)
	m.SetContext("main", "session-1")

	sections := map[string][]*types.Memory{
		"short_term": {
			{ID: "s1", Content: "user asked about deploys", Tier: types.TierShortTerm,
				LastAccessedAt: selectionNow},
		},
		"relevance": {
			{ID: "r1", Content: "deploy pipeline runs on jenkins", Tier: types.TierLongTerm,
				LastAccessedAt: selectionNow},
			{ID: "r2", Content: "office coffee machine manual", Tier: types.TierLongTerm,
				LastAccessedAt: selectionNow},
		},
	}

	prompt, usage := m.ConstructPromptWithMemories(
		"how does the deploy pipeline work?", sections, 2000, "You are an ops assistant.")

	assert.Contains(t, prompt, "user asked about deploys")
	assert.Contains(t, prompt, "deploy pipeline runs on jenkins")
	assert.NotContains(t, prompt, "coffee machine", "irrelevant memories filtered out")
	assert.True(t, strings.HasSuffix(prompt, "USER: how does the deploy pipeline work?"))

	assert.Greater(t, usage.Total, 0)
	assert.Contains(t, usage.Memories, "short_term")
	assert.Contains(t, usage.Memories, "relevance")
}

func TestManagerFormatMemoriesForPrompt(t *testing.T) {
	m := newTestManager(t, nil)

	out := m.FormatMemoriesForPrompt([]*types.Memory{
		{ID: "m1", Content: "first fact", Tier: types.TierWorking},
	})
	assert.Equal(t, "Memory 1:\nfirst fact\n\n", out)
}

func TestNewEstimatorFromConfig(t *testing.T) {
	heuristic := NewEstimatorFromConfig(config.EstimatorConfig{Kind: config.EstimatorHeuristic})
	assert.IsType(t, &HeuristicEstimator{}, heuristic)

	tk := NewEstimatorFromConfig(config.EstimatorConfig{Kind: config.EstimatorTiktoken})
	assert.IsType(t, &TiktokenEstimator{}, tk)
}
