package budget

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/config"
	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/types"
)

// TrackedMemory pairs a memory with its cached token cost. It lives only
// inside a Manager: created on track, destroyed on untrack or when an
// adaptation pass removes it.
type TrackedMemory struct {
	Memory *types.Memory
	Tokens int
}

// AdaptationResult reports the outcome of an adaptation pass. The caller
// replaces its state wholesale from it; the result itself is never mutated
// after construction. An adaptation may legitimately fail to reach the
// target (prioritize-tier with nothing else to shrink) — that is observable
// through UsedTokens, not through an error.
type AdaptationResult struct {
	Memories   map[string]TrackedMemory
	UsedTokens int
	RemovedIDs []string
}

// Adapter reduces or degrades tracked memories to bring usage back under a
// token target. Implementations are no-ops when usedTokens <= targetTokens.
type Adapter interface {
	Adapt(memories map[string]TrackedMemory, usedTokens, targetTokens int) AdaptationResult
}

// SummarizerFunc condenses a group of memories into a single text.
// Optional — when absent the summarize strategy falls back to reduction.
type SummarizerFunc func(memories []*types.Memory) (string, error)

func noopResult(memories map[string]TrackedMemory, usedTokens int) AdaptationResult {
	return AdaptationResult{
		Memories:   memories,
		UsedTokens: usedTokens,
		RemovedIDs: []string{},
	}
}

func removeFrom(memories map[string]TrackedMemory, removedIDs []string, usedTokens, freed int) AdaptationResult {
	kept := make(map[string]TrackedMemory, len(memories)-len(removedIDs))
	removed := make(map[string]struct{}, len(removedIDs))
	for _, id := range removedIDs {
		removed[id] = struct{}{}
	}
	for id, tm := range memories {
		if _, gone := removed[id]; !gone {
			kept[id] = tm
		}
	}
	return AdaptationResult{
		Memories:   kept,
		UsedTokens: usedTokens - freed,
		RemovedIDs: removedIDs,
	}
}

// ReduceStrategy removes the lowest-value memories until enough tokens are
// freed. It frees at least max(usedTokens*reductionTarget,
// usedTokens-targetTokens): the configured fraction floor, and never less
// than the deficit.
type ReduceStrategy struct {
	reductionTarget float64
	now             func() time.Time
	logger          *zap.Logger
}

// NewReduceStrategy creates a reduce strategy. A non-positive
// reductionTarget defaults to 0.2; nil now defaults to time.Now.
func NewReduceStrategy(reductionTarget float64, now func() time.Time, logger *zap.Logger) *ReduceStrategy {
	if reductionTarget <= 0 {
		reductionTarget = 0.2
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReduceStrategy{
		reductionTarget: reductionTarget,
		now:             now,
		logger:          logger.With(zap.String("strategy", "reduce")),
	}
}

// Adapt removes memories lowest (recency + importance) score first until the
// freed tokens reach the floor. Ties break on memory ID so the removal order
// is deterministic regardless of map iteration.
func (s *ReduceStrategy) Adapt(memories map[string]TrackedMemory, usedTokens, targetTokens int) AdaptationResult {
	if usedTokens <= targetTokens {
		return noopResult(memories, usedTokens)
	}

	tokensToFree := int(float64(usedTokens) * s.reductionTarget)
	if deficit := usedTokens - targetTokens; deficit > tokensToFree {
		tokensToFree = deficit
	}

	now := s.now()
	type candidate struct {
		id     string
		score  float64
		tokens int
	}
	candidates := make([]candidate, 0, len(memories))
	for id, tm := range memories {
		candidates = append(candidates, candidate{
			id:     id,
			score:  recencyScore(now, tm.Memory) + tm.Memory.Importance,
			tokens: tm.Tokens,
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score < candidates[j].score
		}
		return candidates[i].id < candidates[j].id
	})

	freed := 0
	removedIDs := []string{}
	for _, c := range candidates {
		if freed >= tokensToFree {
			break
		}
		removedIDs = append(removedIDs, c.id)
		freed += c.tokens
	}

	s.logger.Debug("reduced tracked memories",
		zap.Int("removed", len(removedIDs)),
		zap.Int("freed_tokens", freed),
		zap.Int("target_tokens", targetTokens))

	return removeFrom(memories, removedIDs, usedTokens, freed)
}

// PrioritizeTierStrategy preserves every memory in a designated tier and
// removes memories from the other tiers until the deficit is freed. When no
// other tier exists it is a logged no-op — the one case where adaptation may
// fail to reach the target.
type PrioritizeTierStrategy struct {
	priorityTier types.Tier
	logger       *zap.Logger
}

// NewPrioritizeTierStrategy creates a prioritize-tier strategy.
func NewPrioritizeTierStrategy(priorityTier types.Tier, logger *zap.Logger) *PrioritizeTierStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrioritizeTierStrategy{
		priorityTier: priorityTier,
		logger:       logger.With(zap.String("strategy", "prioritize_tier")),
	}
}

// Adapt removes memories from non-priority tiers, tier by tier in canonical
// order and by ID within a tier, until usedTokens-targetTokens is freed.
func (s *PrioritizeTierStrategy) Adapt(memories map[string]TrackedMemory, usedTokens, targetTokens int) AdaptationResult {
	if s.priorityTier == "" || usedTokens <= targetTokens {
		return noopResult(memories, usedTokens)
	}

	tokensToFree := usedTokens - targetTokens

	byTier := make(map[types.Tier][]string)
	for id, tm := range memories {
		byTier[tm.Memory.Tier] = append(byTier[tm.Memory.Tier], id)
	}

	reducible := make([]types.Tier, 0, len(byTier))
	for _, tier := range types.Tiers() {
		if tier != s.priorityTier && len(byTier[tier]) > 0 {
			reducible = append(reducible, tier)
		}
	}
	if len(reducible) == 0 {
		s.logger.Info("no non-priority tier to reduce",
			zap.String("priority_tier", string(s.priorityTier)))
		return noopResult(memories, usedTokens)
	}

	freed := 0
	removedIDs := []string{}
	for _, tier := range reducible {
		if freed >= tokensToFree {
			break
		}
		ids := byTier[tier]
		sort.Strings(ids)
		for _, id := range ids {
			removedIDs = append(removedIDs, id)
			freed += memories[id].Tokens
			if freed >= tokensToFree {
				break
			}
		}
	}

	s.logger.Info("prioritized tier",
		zap.String("priority_tier", string(s.priorityTier)),
		zap.Int("removed", len(removedIDs)),
		zap.Int("freed_tokens", freed))

	return removeFrom(memories, removedIDs, usedTokens, freed)
}

// SummarizeStrategy condenses related memories into summaries. Without a
// summarizer it delegates entirely to reduction; grouping and compression
// proper are declared but the current implementation always falls back,
// so behavior stays deterministic without an LLM in the loop.
type SummarizeStrategy struct {
	summarizer SummarizerFunc
	fallback   *ReduceStrategy
	logger     *zap.Logger
}

// NewSummarizeStrategy creates a summarize strategy with a reduce fallback.
func NewSummarizeStrategy(summarizer SummarizerFunc, fallback *ReduceStrategy, logger *zap.Logger) *SummarizeStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fallback == nil {
		fallback = NewReduceStrategy(0, nil, logger)
	}
	return &SummarizeStrategy{
		summarizer: summarizer,
		fallback:   fallback,
		logger:     logger.With(zap.String("strategy", "summarize")),
	}
}

// Adapt falls back to reduction when over target; no-op otherwise.
func (s *SummarizeStrategy) Adapt(memories map[string]TrackedMemory, usedTokens, targetTokens int) AdaptationResult {
	if usedTokens <= targetTokens {
		return noopResult(memories, usedTokens)
	}
	if s.summarizer == nil {
		s.logger.Debug("no summarizer configured, falling back to reduce")
	} else {
		s.logger.Debug("summarization not implemented for tracked sets, falling back to reduce")
	}
	return s.fallback.Adapt(memories, usedTokens, targetTokens)
}

// NewAdapter binds a configured adaptation kind to its strategy. The
// selection happens once at configuration-load time rather than per call.
func NewAdapter(kind config.AdaptationKind, reductionTarget float64, summarizer SummarizerFunc, now func() time.Time, logger *zap.Logger) Adapter {
	switch kind {
	case config.AdaptPrioritizeWorking:
		return NewPrioritizeTierStrategy(types.TierWorking, logger)
	case config.AdaptPrioritizeSTM:
		return NewPrioritizeTierStrategy(types.TierShortTerm, logger)
	case config.AdaptSummarize:
		return NewSummarizeStrategy(summarizer, NewReduceStrategy(reductionTarget, now, logger), logger)
	default:
		return NewReduceStrategy(reductionTarget, now, logger)
	}
}
