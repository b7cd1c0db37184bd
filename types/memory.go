package types

import (
	"fmt"
	"time"
)

// Tier defines a retention class for stored memories.
type Tier string

const (
	// TierShortTerm holds conversation turns. Short-lived, TTL-backed.
	TierShortTerm Tier = "short_term"

	// TierWorking holds session context. Persists for the session.
	TierWorking Tier = "working"

	// TierLongTerm holds persistent knowledge.
	TierLongTerm Tier = "long_term"
)

// Tiers lists all tiers in canonical order.
func Tiers() []Tier {
	return []Tier{TierShortTerm, TierWorking, TierLongTerm}
}

// ParseTier converts a tier name to a Tier.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierShortTerm, TierWorking, TierLongTerm:
		return Tier(s), nil
	default:
		return "", fmt.Errorf("unknown memory tier: %q", s)
	}
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	_, err := ParseTier(string(t))
	return err == nil
}

// Well-known metadata keys. Every memory carries session_id and type;
// component_id is attached when a component context is set.
const (
	MetaSessionID   = "session_id"
	MetaType        = "type"
	MetaComponentID = "component_id"
	MetaContextKey  = "context_key"
	MetaRole        = "role"

	DefaultSessionID  = "default"
	DefaultMemoryType = "generic"
)

// Memory is a single memory record: immutable content with mutable metadata.
// The store owns persistence; the budget engine only holds transient
// references supplied by callers.
type Memory struct {
	ID             string         `json:"memory_id"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Tier           Tier           `json:"tier"`
	Importance     float64        `json:"importance"`
	TTLSeconds     int            `json:"ttl,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	LastAccessedAt time.Time      `json:"last_accessed_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewMemory creates a normalized memory record. Importance is clamped to
// [0,1] and the required metadata keys are defaulted when absent.
func NewMemory(id, content string, metadata map[string]any, tier Tier, importance float64) *Memory {
	now := time.Now()
	m := &Memory{
		ID:             id,
		Content:        content,
		Metadata:       metadata,
		Tier:           tier,
		Importance:     importance,
		CreatedAt:      now,
		LastAccessedAt: now,
		UpdatedAt:      now,
	}
	m.Normalize(now)
	return m
}

// Normalize enforces the record invariants: importance in [0,1], a valid
// tier, required metadata keys, and non-zero timestamps.
func (m *Memory) Normalize(now time.Time) {
	m.Importance = ClampImportance(m.Importance)
	if !m.Tier.Valid() {
		m.Tier = TierWorking
	}
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	if _, ok := m.Metadata[MetaSessionID]; !ok {
		m.Metadata[MetaSessionID] = DefaultSessionID
	}
	if _, ok := m.Metadata[MetaType]; !ok {
		m.Metadata[MetaType] = DefaultMemoryType
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.LastAccessedAt.IsZero() {
		m.LastAccessedAt = now
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = now
	}
}

// ClampImportance bounds an importance score to [0,1].
func ClampImportance(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Touch marks the memory as accessed.
func (m *Memory) Touch(now time.Time) {
	m.LastAccessedAt = now
}

// SessionID returns the session_id metadata value.
func (m *Memory) SessionID() string {
	return m.metaString(MetaSessionID)
}

// Type returns the type metadata value.
func (m *Memory) Type() string {
	return m.metaString(MetaType)
}

// ComponentID returns the component_id metadata value, if set.
func (m *Memory) ComponentID() string {
	return m.metaString(MetaComponentID)
}

func (m *Memory) metaString(key string) string {
	if m.Metadata == nil {
		return ""
	}
	v, _ := m.Metadata[key].(string)
	return v
}

// Clone returns a deep copy. Stores hand out clones so callers cannot
// mutate persisted state through shared maps.
func (m *Memory) Clone() *Memory {
	if m == nil {
		return nil
	}
	cp := *m
	if m.Metadata != nil {
		cp.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// MatchesMetadata reports whether every key/value pair in query is present
// in the memory's metadata. Values compare with fmt-style equality so
// numeric values loaded from JSON still match.
func (m *Memory) MatchesMetadata(query map[string]any) bool {
	for k, want := range query {
		got, ok := m.Metadata[k]
		if !ok {
			return false
		}
		if got != want && fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
