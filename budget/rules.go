package budget

import (
	"go.uber.org/zap"

	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/config"
	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/types"
)

// tierFallbackAllocation applies when a tier is missing from both the
// component's allocation and the global default allocation map.
const tierFallbackAllocation = 0.3

// RulesManager answers budget questions from the loaded configuration.
// All lookups are pure; an unknown component ID degrades to zero or a
// documented default so unconfigured callers run conservatively instead of
// erroring.
type RulesManager struct {
	strategy              config.AllocationStrategy
	defaultTierAllocation map[string]float64
	dynamic               config.DynamicAllocationConfig
	compression           config.MemoryCompressionConfig
	monitoring            config.TokenMonitoringConfig
	components            map[string]config.ComponentConfig
	logger                *zap.Logger
}

// NewRulesManager builds a RulesManager from configuration.
func NewRulesManager(cfg *config.Config, logger *zap.Logger) *RulesManager {
	if logger == nil {
		logger = zap.NewNop()
	}

	defaults := cfg.TokenBudget.DefaultTierAllocation
	if len(defaults) == 0 {
		defaults = config.DefaultTierAllocation()
	}

	components := make(map[string]config.ComponentConfig, len(cfg.Components))
	for _, comp := range cfg.Components {
		components[comp.ID] = comp
	}

	return &RulesManager{
		strategy:              cfg.TokenBudget.AllocationStrategy,
		defaultTierAllocation: defaults,
		dynamic:               cfg.TokenBudget.DynamicAllocation,
		compression:           cfg.TokenBudget.MemoryCompression,
		monitoring:            cfg.TokenBudget.TokenMonitoring,
		components:            components,
		logger:                logger.With(zap.String("component", "budget_rules")),
	}
}

// ComponentBudget returns the component's token limit, or 0 when unknown.
func (r *RulesManager) ComponentBudget(componentID string) int {
	comp, ok := r.components[componentID]
	if !ok {
		return 0
	}
	return comp.TokenLimit
}

// tierFraction resolves the allocation fraction for a tier: the component's
// own memory_allocation entry, else the global default map, else the
// fallback constant.
func (r *RulesManager) tierFraction(comp config.ComponentConfig, tier types.Tier) float64 {
	if frac, ok := comp.MemoryAllocation[string(tier)]; ok {
		return frac
	}
	if frac, ok := r.defaultTierAllocation[string(tier)]; ok {
		return frac
	}
	return tierFallbackAllocation
}

// TierBudget returns tokenLimit * allocationFraction for a (component, tier)
// pair, truncated to an integer. Unknown components yield 0.
func (r *RulesManager) TierBudget(componentID string, tier types.Tier) int {
	comp, ok := r.components[componentID]
	if !ok {
		return 0
	}
	return int(float64(comp.TokenLimit) * r.tierFraction(comp, tier))
}

// AllocateTierBudgets splits an available token pool across tiers using the
// component's allocation fractions (or the defaults). Unknown components
// split the pool evenly.
func (r *RulesManager) AllocateTierBudgets(componentID string, availableTokens int) map[types.Tier]int {
	allocations := make(map[types.Tier]int, len(types.Tiers()))

	comp, ok := r.components[componentID]
	if !ok {
		per := availableTokens / len(types.Tiers())
		for _, tier := range types.Tiers() {
			allocations[tier] = per
		}
		return allocations
	}

	for _, tier := range types.Tiers() {
		allocations[tier] = int(float64(availableTokens) * r.tierFraction(comp, tier))
	}
	return allocations
}

// AdjustBudgetByActivity returns the budget multiplier for a component's
// activity state. Only the dynamic allocation strategy adjusts; every other
// strategy returns 1.0 unconditionally.
func (r *RulesManager) AdjustBudgetByActivity(componentID string, isActive bool) float64 {
	if r.strategy != config.AllocationDynamic {
		return 1.0
	}
	if isActive {
		return r.dynamic.ActiveBoost
	}
	if r.dynamic.IdleReduction < r.dynamic.MinimumAllocation {
		return r.dynamic.MinimumAllocation
	}
	return r.dynamic.IdleReduction
}

// ShouldCompress reports whether the usage ratio has crossed the compression
// threshold.
func (r *RulesManager) ShouldCompress(usageRatio float64) bool {
	if !r.compression.Enabled {
		return false
	}
	return usageRatio >= r.compression.Threshold
}

// CompressionTarget returns the token count adaptation should reduce to.
func (r *RulesManager) CompressionTarget(currentTokens int) int {
	if !r.compression.Enabled {
		return currentTokens
	}
	return int(float64(currentTokens) * (1 - r.compression.TargetReduction))
}

// ReductionTarget returns the configured fraction the reduce strategy frees.
func (r *RulesManager) ReductionTarget() float64 {
	return r.compression.ReductionTarget
}

// ComponentRules returns the component's token rules, if configured.
func (r *RulesManager) ComponentRules(componentID string) (config.TokenRulesConfig, bool) {
	comp, ok := r.components[componentID]
	if !ok {
		return config.TokenRulesConfig{}, false
	}
	return comp.TokenRules, true
}

// PriorityWeights returns the component's recency/importance weights, or the
// balanced default split.
func (r *RulesManager) PriorityWeights(componentID string) (recency, importance float64) {
	rules, ok := r.ComponentRules(componentID)
	if !ok || (rules.RecencyWeight == 0 && rules.ImportanceWeight == 0) {
		return WorkingRecencyWeight, WorkingImportanceWeight
	}
	return rules.RecencyWeight, rules.ImportanceWeight
}

// RelevanceThreshold returns the component's relevance cutoff, or the
// default.
func (r *RulesManager) RelevanceThreshold(componentID string) float64 {
	rules, ok := r.ComponentRules(componentID)
	if !ok || rules.RelevanceThreshold <= 0 {
		return DefaultRelevanceThreshold
	}
	return rules.RelevanceThreshold
}

// PriorityMultiplier maps a component's priority class to its budget
// multiplier: 1.5 high, 1.0 medium, 0.7 low. Unknown components get 1.0.
func (r *RulesManager) PriorityMultiplier(componentID string) float64 {
	comp, ok := r.components[componentID]
	if !ok {
		return 1.0
	}
	switch comp.MemoryPriority {
	case config.PriorityHigh:
		return 1.5
	case config.PriorityLow:
		return 0.7
	default:
		return 1.0
	}
}

// AdaptationStrategy returns the component's configured adaptation
// strategy, defaulting to reduce.
func (r *RulesManager) AdaptationStrategy(componentID string) config.AdaptationKind {
	rules, ok := r.ComponentRules(componentID)
	if !ok || rules.AdaptationStrategy == "" {
		return config.AdaptReduce
	}
	return rules.AdaptationStrategy
}

// AdaptiveAction returns the adaptation strategy for a component under the
// given token pressure, and whether compression is warranted at all.
func (r *RulesManager) AdaptiveAction(componentID string, usageRatio float64) (config.AdaptationKind, bool) {
	if !r.ShouldCompress(usageRatio) {
		return "", false
	}
	return r.AdaptationStrategy(componentID), true
}

// LogTokenUsage records a usage observation, escalating to a warning once
// usage approaches the alert threshold.
func (r *RulesManager) LogTokenUsage(componentID string, tier types.Tier, used, allocated int) {
	if !r.monitoring.Enabled {
		return
	}
	denom := allocated
	if denom < 1 {
		denom = 1
	}
	ratio := float64(used) / float64(denom)

	fields := []zap.Field{
		zap.String("component_id", componentID),
		zap.String("tier", string(tier)),
		zap.Int("used", used),
		zap.Int("allocated", allocated),
		zap.Float64("usage_ratio", ratio),
	}
	if ratio >= r.monitoring.AlertThreshold {
		r.logger.Warn("token usage approaching limit", fields...)
		return
	}
	r.logger.Info("token usage", fields...)
}
