package budget

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/types"
)

// Default priority weight splits. Short-term selection leans on recency;
// working-memory selection balances recency against importance. These are
// policy defaults, not selector invariants.
const (
	ShortTermRecencyWeight    = 0.8
	ShortTermImportanceWeight = 0.2

	WorkingRecencyWeight    = 0.5
	WorkingImportanceWeight = 0.5

	// DefaultRelevanceThreshold discards weakly relevant candidates before
	// ranking.
	DefaultRelevanceThreshold = 0.1
)

// recencyScore maps seconds-since-last-access to (0,1]: recently accessed
// memories approach 1.0, day-old memories approach ~0.04.
func recencyScore(now time.Time, m *types.Memory) float64 {
	if m.LastAccessedAt.IsZero() {
		return 1.0
	}
	seconds := now.Sub(m.LastAccessedAt).Seconds()
	if seconds < 0 {
		seconds = 0
	}
	return 1.0 / (1.0 + seconds/3600.0)
}

type scoredMemory struct {
	memory *types.Memory
	score  float64
	tokens int
}

// takeWithinBudget greedily accepts ranked candidates, skipping (not
// stopping at) any memory whose cost would overflow the remaining budget.
// A candidate larger than maxTokens on its own is simply never selected.
func takeWithinBudget(ranked []scoredMemory, maxTokens int) []*types.Memory {
	selected := make([]*types.Memory, 0, len(ranked))
	total := 0
	for _, sm := range ranked {
		if total >= maxTokens {
			break
		}
		if total+sm.tokens > maxTokens {
			continue
		}
		selected = append(selected, sm.memory)
		total += sm.tokens
	}
	return selected
}

// PrioritySelector selects memories by a weighted blend of recency and
// importance.
type PrioritySelector struct {
	estimator Estimator
	now       func() time.Time
}

// NewPrioritySelector creates a priority selector. now is injectable for
// tests; nil defaults to time.Now.
func NewPrioritySelector(estimator Estimator, now func() time.Time) *PrioritySelector {
	if now == nil {
		now = time.Now
	}
	return &PrioritySelector{estimator: estimator, now: now}
}

// Select returns a greedy maximal-value subset of memories whose estimated
// token total never exceeds maxTokens, ranked by
// recencyWeight*recency + importanceWeight*importance. The clock is read
// once per call so scores within one pass cannot skew.
func (s *PrioritySelector) Select(memories []*types.Memory, maxTokens int, recencyWeight, importanceWeight float64) []*types.Memory {
	if len(memories) == 0 {
		return []*types.Memory{}
	}

	now := s.now()
	ranked := make([]scoredMemory, 0, len(memories))
	for _, m := range memories {
		ranked = append(ranked, scoredMemory{
			memory: m,
			score:  recencyWeight*recencyScore(now, m) + importanceWeight*m.Importance,
			tokens: s.estimator.EstimateMemory(m),
		})
	}

	// Stable sort keeps input order on ties, so identical inputs always
	// select identically.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	return takeWithinBudget(ranked, maxTokens)
}

// RelevanceFunc scores how relevant content is to a query, in [0,1].
type RelevanceFunc func(query, content string) float64

// RelevanceSelector selects memories by relevance to a query. The relevance
// function is injectable so an embedding-similarity implementation can be
// substituted without changing selection logic.
type RelevanceSelector struct {
	estimator Estimator
	relevance RelevanceFunc
}

// NewRelevanceSelector creates a relevance selector. A nil relevance
// function defaults to Jaccard word overlap.
func NewRelevanceSelector(estimator Estimator, relevance RelevanceFunc) *RelevanceSelector {
	if relevance == nil {
		relevance = NewJaccardRelevance()
	}
	return &RelevanceSelector{estimator: estimator, relevance: relevance}
}

// Select ranks memories by relevance(query, content) * (1 + 0.5*importance),
// discards candidates scoring below threshold, then greedily selects within
// maxTokens the same way PrioritySelector does.
func (s *RelevanceSelector) Select(memories []*types.Memory, query string, maxTokens int, threshold float64) []*types.Memory {
	if len(memories) == 0 {
		return []*types.Memory{}
	}

	ranked := make([]scoredMemory, 0, len(memories))
	for _, m := range memories {
		score := s.relevance(query, m.Content) * (1 + 0.5*m.Importance)
		if score < threshold {
			continue
		}
		ranked = append(ranked, scoredMemory{
			memory: m,
			score:  score,
			tokens: s.estimator.EstimateMemory(m),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	return takeWithinBudget(ranked, maxTokens)
}

// NewJaccardRelevance returns the default lexical relevance function:
// Jaccard similarity over lower-cased word sets of query and content,
// zero when either set is empty.
func NewJaccardRelevance() RelevanceFunc {
	wordPattern := regexp.MustCompile(`\w+`)

	wordSet := func(text string) map[string]struct{} {
		words := wordPattern.FindAllString(strings.ToLower(text), -1)
		set := make(map[string]struct{}, len(words))
		for _, w := range words {
			set[w] = struct{}{}
		}
		return set
	}

	return func(query, content string) float64 {
		queryWords := wordSet(query)
		contentWords := wordSet(content)
		if len(queryWords) == 0 || len(contentWords) == 0 {
			return 0
		}

		intersection := 0
		for w := range queryWords {
			if _, ok := contentWords[w]; ok {
				intersection++
			}
		}
		union := len(queryWords) + len(contentWords) - intersection
		return float64(intersection) / float64(union)
	}
}
