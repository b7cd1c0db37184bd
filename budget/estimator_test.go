package budget

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/types"
)

func TestHeuristicEstimatorEmptyText(t *testing.T) {
	e := NewHeuristicEstimator(0, 0)
	assert.Equal(t, 0, e.EstimateText(""))
}

func TestHeuristicEstimatorFormula(t *testing.T) {
	e := NewHeuristicEstimator(0, 0)

	// 11 runes, 2 words: (11/4.0 + 2/0.75)/2 = 2.708 -> 2 + 1 = 3.
	assert.Equal(t, 3, e.EstimateText("hello world"))

	// 1 rune, 1 word: (0.25 + 1.333)/2 = 0.791 -> 0 + 1 = 1.
	assert.Equal(t, 1, e.EstimateText("a"))

	// Whitespace only: 3 runes, 0 words: (0.75 + 0)/2 = 0.375 -> 1.
	assert.Equal(t, 1, e.EstimateText("   "))
}

func TestHeuristicEstimatorCountsRunesNotBytes(t *testing.T) {
	e := NewHeuristicEstimator(0, 0)

	// Both strings are 4 runes and 1 word, so estimates match even though
	// the multibyte string is 12 bytes.
	assert.Equal(t, e.EstimateText("abcd"), e.EstimateText("日本語だ"))
}

func TestHeuristicEstimatorRatioFallback(t *testing.T) {
	defaults := NewHeuristicEstimator(0, 0)
	negative := NewHeuristicEstimator(-1, -1)

	text := "the quick brown fox jumps over the lazy dog"
	assert.Equal(t, defaults.EstimateText(text), negative.EstimateText(text))
}

func TestHeuristicEstimatorSmallerRatiosEstimateHigher(t *testing.T) {
	loose := NewHeuristicEstimator(4.0, 0.75)
	tight := NewHeuristicEstimator(2.0, 0.5)

	text := "estimates bias conservative under tighter ratios"
	assert.Greater(t, tight.EstimateText(text), loose.EstimateText(text))
}

func TestEstimateMemoryComposition(t *testing.T) {
	e := NewHeuristicEstimator(0, 0)

	meta := map[string]any{"session_id": "s1", "type": "generic"}
	mem := types.NewMemory("m1", "some remembered fact", meta, types.TierWorking, 0.5)

	data, err := json.Marshal(mem.Metadata)
	require.NoError(t, err)

	want := e.EstimateText(mem.Content) + e.EstimateText(string(data)) + 5
	assert.Equal(t, want, e.EstimateMemory(mem))
}

func TestEstimateMemoryEdgeCases(t *testing.T) {
	e := NewHeuristicEstimator(0, 0)

	assert.Equal(t, 5, e.EstimateMemory(nil))

	empty := &types.Memory{ID: "m1", Tier: types.TierWorking}
	assert.Equal(t, 5, e.EstimateMemory(empty))

	noMeta := &types.Memory{ID: "m2", Content: "hello world", Tier: types.TierWorking}
	assert.Equal(t, e.EstimateText("hello world")+5, e.EstimateMemory(noMeta))
}

func TestHeuristicEstimatorProperties(t *testing.T) {
	e := NewHeuristicEstimator(0, 0)

	rapid.Check(t, func(t *rapid.T) {
		text := rapid.StringN(1, 200, -1).Draw(t, "text")
		suffix := rapid.StringN(0, 50, -1).Draw(t, "suffix")

		base := e.EstimateText(text)
		assert.GreaterOrEqual(t, base, 1, "non-empty text costs at least one token")
		assert.GreaterOrEqual(t, e.EstimateText(text+suffix), base,
			"appending text never lowers the estimate")
	})
}

func TestTiktokenEstimatorBehavesLikeAnEstimator(t *testing.T) {
	e := NewTiktokenEstimator("")

	// Holds whether the encoding loaded or the heuristic fallback engaged.
	assert.Equal(t, 0, e.EstimateText(""))
	assert.Greater(t, e.EstimateText("hello world"), 0)
	assert.Greater(t, e.EstimateText(strings.Repeat("lorem ipsum ", 50)),
		e.EstimateText("lorem ipsum"))
	assert.Equal(t, 5, e.EstimateMemory(nil))
}
