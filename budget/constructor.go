package budget

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/types"
)

// formattingReserveTokens is held back from every prompt for joins, section
// titles and the USER prefix.
const formattingReserveTokens = 50

// PromptUsage is the per-block token breakdown returned with every
// constructed prompt.
type PromptUsage struct {
	UserInput int            `json:"user_input"`
	System    int            `json:"system,omitempty"`
	Memories  map[string]int `json:"memories"`
	Total     int            `json:"total"`
}

// SectionSelector picks memories for one prompt section within a token
// allocation.
type SectionSelector interface {
	SelectSection(memories []*types.Memory, maxTokens int) []*types.Memory
}

// SectionSelectorFunc adapts a closure to SectionSelector.
type SectionSelectorFunc func(memories []*types.Memory, maxTokens int) []*types.Memory

func (f SectionSelectorFunc) SelectSection(memories []*types.Memory, maxTokens int) []*types.Memory {
	return f(memories, maxTokens)
}

// Constructor assembles a bounded prompt from named memory sections plus
// fixed system and user text.
type Constructor struct {
	estimator   Estimator
	formatter   *Formatter
	rules       *RulesManager
	componentID string
	logger      *zap.Logger
}

// NewConstructor creates a prompt constructor. rules may be nil; without a
// rules manager and component context the memory pool splits evenly across
// sections.
func NewConstructor(estimator Estimator, formatter *Formatter, rules *RulesManager, logger *zap.Logger) *Constructor {
	if formatter == nil {
		formatter = NewFormatter("")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Constructor{
		estimator: estimator,
		formatter: formatter,
		rules:     rules,
		logger:    logger.With(zap.String("component", "prompt_constructor")),
	}
}

// SetComponent sets the component context used for tier-proportional
// allocation.
func (c *Constructor) SetComponent(componentID string) {
	c.componentID = componentID
}

// sectionOrder returns section names in deterministic order: tier sections
// in canonical tier order first, then the rest alphabetically.
func sectionOrder(sections map[string][]*types.Memory) []string {
	tierNames := make([]string, 0, 3)
	other := make([]string, 0, len(sections))
	for name := range sections {
		if _, err := types.ParseTier(strings.ToLower(name)); err == nil {
			tierNames = append(tierNames, name)
		} else {
			other = append(other, name)
		}
	}
	sort.Slice(tierNames, func(i, j int) bool {
		return tierRank(tierNames[i]) < tierRank(tierNames[j])
	})
	sort.Strings(other)
	return append(tierNames, other...)
}

func tierRank(name string) int {
	for i, tier := range types.Tiers() {
		if string(tier) == strings.ToLower(name) {
			return i
		}
	}
	return len(types.Tiers())
}

// AllocateBudget splits an available token pool across the named sections.
// Without a rules manager or component context every section gets an even
// share. Otherwise sections whose name matches a tier get that tier's
// proportional allocation, and the remaining sections split what is left
// evenly.
func (c *Constructor) AllocateBudget(availableTokens int, sections map[string][]*types.Memory) map[string]int {
	allocations := make(map[string]int, len(sections))
	if len(sections) == 0 {
		return allocations
	}

	if c.rules == nil || c.componentID == "" {
		per := availableTokens / len(sections)
		for name := range sections {
			allocations[name] = per
		}
		return allocations
	}

	tierBudgets := c.rules.AllocateTierBudgets(c.componentID, availableTokens)

	unmatched := make([]string, 0, len(sections))
	allocated := 0
	for _, name := range sectionOrder(sections) {
		tier, err := types.ParseTier(strings.ToLower(name))
		if err != nil {
			unmatched = append(unmatched, name)
			continue
		}
		allocations[name] = tierBudgets[tier]
		allocated += tierBudgets[tier]
	}

	if len(unmatched) > 0 {
		remaining := availableTokens - allocated
		if remaining < 0 {
			remaining = 0
		}
		per := remaining / len(unmatched)
		for _, name := range unmatched {
			allocations[name] = per
		}
	}
	return allocations
}

// ConstructPrompt assembles system message, budget-selected memory sections
// and user input into a single prompt, never exceeding maxTokens. Sections
// whose formatted text would overflow their allocation are dropped whole
// rather than truncated. The returned usage reports tokens per included
// block plus the total.
func (c *Constructor) ConstructPrompt(
	userInput string,
	sections map[string][]*types.Memory,
	maxTokens int,
	systemMessage string,
	templates map[string]string,
	selectors map[string]SectionSelector,
) (string, PromptUsage) {
	usage := PromptUsage{Memories: make(map[string]int)}

	usage.UserInput = c.estimator.EstimateText(userInput)
	if systemMessage != "" {
		usage.System = c.estimator.EstimateText(systemMessage)
	}

	fixedTokens := usage.UserInput + usage.System
	availableMemoryTokens := maxTokens - fixedTokens - formattingReserveTokens
	if availableMemoryTokens < 0 {
		availableMemoryTokens = 0
	}

	allocations := c.AllocateBudget(availableMemoryTokens, sections)

	formatted := make([]string, 0, len(sections))
	for _, name := range sectionOrder(sections) {
		memories := sections[name]
		allocation, ok := allocations[name]
		if len(memories) == 0 || !ok {
			continue
		}

		selected := memories
		if selector, ok := selectors[name]; ok && selector != nil {
			selected = selector.SelectSection(memories, allocation)
		}

		content := c.formatter.FormatMemories(
			selected,
			templates[name],
			"--- "+strings.ToUpper(name)+" MEMORIES ---",
		)
		if content == "" {
			continue
		}

		sectionTokens := c.estimator.EstimateText(content)
		if sectionTokens > allocation {
			c.logger.Debug("dropping oversized prompt section",
				zap.String("section", name),
				zap.Int("tokens", sectionTokens),
				zap.Int("allocation", allocation))
			continue
		}

		formatted = append(formatted, content)
		usage.Memories[name] = sectionTokens
	}

	parts := make([]string, 0, 3)
	if systemMessage != "" {
		parts = append(parts, systemMessage)
	}
	if len(formatted) > 0 {
		parts = append(parts, strings.Join(formatted, "\n\n"))
	}
	parts = append(parts, "USER: "+userInput)

	usage.Total = fixedTokens
	for _, tokens := range usage.Memories {
		usage.Total += tokens
	}

	return strings.Join(parts, "\n\n"), usage
}
