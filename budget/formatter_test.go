package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/types"
)

func TestFormatMemoryDefaultTemplate(t *testing.T) {
	f := NewFormatter("")
	m := &types.Memory{ID: "m1", Content: "the sky is blue", Tier: types.TierWorking}

	assert.Equal(t, "Memory 3:\nthe sky is blue\n\n", f.FormatMemory(m, 3, ""))
}

func TestFormatMemoryCustomTemplate(t *testing.T) {
	f := NewFormatter("")
	m := &types.Memory{
		ID:         "m1",
		Content:    "deploy window opens Friday",
		Tier:       types.TierWorking,
		Importance: 0.8,
		Metadata:   map[string]any{"type": "session_context"},
	}

	got := f.FormatMemory(m, 1, "[{tier}/{importance}] {content} ({metadata_type})")
	assert.Equal(t, "[working/0.8] deploy window opens Friday (session_context)", got)
}

func TestFormatMemoryUnknownPlaceholderFallsBack(t *testing.T) {
	f := NewFormatter("")
	m := &types.Memory{ID: "m1", Content: "fallback check", Tier: types.TierWorking}

	got := f.FormatMemory(m, 1, "{content} by {author}")
	assert.Equal(t, "Memory 1:\nfallback check\n\n", got)
}

func TestFormatMemoriesNumbersFromOne(t *testing.T) {
	f := NewFormatter("")
	memories := []*types.Memory{
		{ID: "a", Content: "first", Tier: types.TierWorking},
		{ID: "b", Content: "second", Tier: types.TierWorking},
	}

	got := f.FormatMemories(memories, "", "RECENT:")
	assert.Equal(t, "RECENT:\nMemory 1:\nfirst\n\nMemory 2:\nsecond\n\n", got)
}

func TestFormatMemoriesEmptyList(t *testing.T) {
	f := NewFormatter("")
	assert.Equal(t, "", f.FormatMemories(nil, "", "TITLE"))
}
