package budget

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/types"
)

// DefaultFormatTemplate is the minimal numbered memory template.
const DefaultFormatTemplate = "Memory {index}:\n{content}\n\n"

// Formatter renders memories into prompt text using {placeholder}
// templates. Supported placeholders: index, id, content, importance, tier,
// created_at, last_accessed_at, metadata, and metadata_<key> for each
// metadata entry. A template referencing an unknown placeholder falls back
// to the default template instead of propagating a formatting error.
type Formatter struct {
	defaultTemplate    string
	placeholderPattern *regexp.Regexp
}

// NewFormatter creates a Formatter. An empty template selects
// DefaultFormatTemplate.
func NewFormatter(defaultTemplate string) *Formatter {
	if defaultTemplate == "" {
		defaultTemplate = DefaultFormatTemplate
	}
	return &Formatter{
		defaultTemplate:    defaultTemplate,
		placeholderPattern: regexp.MustCompile(`\{(\w+)\}`),
	}
}

func (f *Formatter) placeholders(m *types.Memory, index int) map[string]string {
	values := map[string]string{
		"index":      strconv.Itoa(index),
		"id":         m.ID,
		"content":    m.Content,
		"importance": strconv.FormatFloat(m.Importance, 'g', -1, 64),
		"tier":       string(m.Tier),
	}
	if !m.CreatedAt.IsZero() {
		values["created_at"] = m.CreatedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	if !m.LastAccessedAt.IsZero() {
		values["last_accessed_at"] = m.LastAccessedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	if len(m.Metadata) > 0 {
		values["metadata"] = fmt.Sprint(m.Metadata)
		for key, val := range m.Metadata {
			values["metadata_"+key] = fmt.Sprint(val)
		}
	}
	return values
}

// FormatMemory renders one memory. index is 1-based for numbered lists.
func (f *Formatter) FormatMemory(m *types.Memory, index int, template string) string {
	if template == "" {
		template = f.defaultTemplate
	}
	values := f.placeholders(m, index)

	// Check every referenced placeholder before substituting. A missing key
	// degrades to the minimal default, never an error.
	for _, match := range f.placeholderPattern.FindAllStringSubmatch(template, -1) {
		if _, ok := values[match[1]]; !ok {
			template = DefaultFormatTemplate
			break
		}
	}

	pairs := make([]string, 0, 2*len(values))
	for key, val := range values {
		pairs = append(pairs, "{"+key+"}", val)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// FormatMemories renders a list of memories, optionally under a section
// title. Returns "" for an empty list.
func (f *Formatter) FormatMemories(memories []*types.Memory, template, sectionTitle string) string {
	if len(memories) == 0 {
		return ""
	}

	var b strings.Builder
	if sectionTitle != "" {
		b.WriteString(sectionTitle)
		b.WriteString("\n")
	}
	for i, m := range memories {
		b.WriteString(f.FormatMemory(m, i+1, template))
	}
	return b.String()
}
