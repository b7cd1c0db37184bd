package budget

import (
	"encoding/json"
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/types"
)

// memoryOverheadTokens is the fixed structural overhead charged per memory
// record on top of its content and metadata.
const memoryOverheadTokens = 5

// Estimator approximates token counts for text and memory records.
// Implementations must be deterministic for identical input and
// configuration so budgeting stays reproducible.
type Estimator interface {
	// EstimateText approximates the token count of a text string.
	// Empty input costs zero.
	EstimateText(text string) int

	// EstimateMemory approximates the token count of a memory record:
	// content plus serialized metadata plus a fixed structural overhead.
	EstimateMemory(m *types.Memory) int
}

// HeuristicEstimator estimates tokens from character and word counts.
// It averages a chars-per-token and a words-per-token approximation and
// rounds up, so estimates bias high rather than risking budget overrun.
// Smaller ratios force more conservative (higher) estimates.
type HeuristicEstimator struct {
	charsPerToken float64
	wordsPerToken float64
	wordPattern   *regexp.Regexp
}

// NewHeuristicEstimator creates an estimator with the given ratios.
// Non-positive ratios fall back to the defaults (4.0 chars/token,
// 0.75 words/token).
func NewHeuristicEstimator(charsPerToken, wordsPerToken float64) *HeuristicEstimator {
	if charsPerToken <= 0 {
		charsPerToken = 4.0
	}
	if wordsPerToken <= 0 {
		wordsPerToken = 0.75
	}
	return &HeuristicEstimator{
		charsPerToken: charsPerToken,
		wordsPerToken: wordsPerToken,
		wordPattern:   regexp.MustCompile(`\w+`),
	}
}

// EstimateText returns the estimated token count for text.
func (e *HeuristicEstimator) EstimateText(text string) int {
	if text == "" {
		return 0
	}

	charCount := utf8.RuneCountInString(text)
	wordCount := len(e.wordPattern.FindAllStringIndex(text, -1))

	charEstimate := float64(charCount) / e.charsPerToken
	wordEstimate := float64(wordCount) / e.wordsPerToken

	// Truncate the average, then add one as a rounding-up bias.
	return int((charEstimate+wordEstimate)/2) + 1
}

// EstimateMemory returns the estimated token count for a memory record.
// Returns at least the structural overhead for an empty record.
func (e *HeuristicEstimator) EstimateMemory(m *types.Memory) int {
	return estimateMemoryWith(e, m)
}

// estimateMemoryWith composes content, serialized metadata and the fixed
// overhead using the given text estimator. Metadata is serialized to its
// canonical JSON form (sorted keys) so the estimate is deterministic.
func estimateMemoryWith(e Estimator, m *types.Memory) int {
	if m == nil {
		return memoryOverheadTokens
	}

	tokens := e.EstimateText(m.Content)

	if len(m.Metadata) > 0 {
		data, err := json.Marshal(m.Metadata)
		if err != nil {
			// Metadata holds only JSON-like values; a marshal failure means
			// a caller smuggled something exotic in. Estimate from its
			// printed form instead of failing the budget pass.
			data = []byte(fmt.Sprint(m.Metadata))
		}
		tokens += e.EstimateText(string(data))
	}

	return tokens + memoryOverheadTokens
}
