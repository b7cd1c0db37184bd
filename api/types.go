package api

// CreateMemoryRequest creates a new memory record.
type CreateMemoryRequest struct {
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Tier       string         `json:"tier,omitempty"`
	Importance float64        `json:"importance,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
}

// UpdateMemoryRequest replaces the mutable fields of a memory record.
type UpdateMemoryRequest struct {
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Tier       string         `json:"tier,omitempty"`
	Importance float64        `json:"importance,omitempty"`
	TTLSeconds int            `json:"ttl,omitempty"`
}

// SearchRequest filters memories by metadata key/value pairs.
type SearchRequest struct {
	Query map[string]any `json:"query"`
	Tier  string         `json:"tier,omitempty"`
	Limit int            `json:"limit,omitempty"`
}

// CreateMemoryResponse carries the ID assigned to a new memory.
type CreateMemoryResponse struct {
	MemoryID string `json:"memory_id"`
}

// AddTurnRequest appends a conversation turn to a session.
type AddTurnRequest struct {
	Content    string  `json:"content"`
	Role       string  `json:"role,omitempty"`
	Importance float64 `json:"importance,omitempty"`
}

// StoreContextRequest stores one session context entry.
type StoreContextRequest struct {
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Importance float64 `json:"importance,omitempty"`
}

// PromptRequest asks for a budget-aware prompt for a session.
type PromptRequest struct {
	SystemMessage string `json:"system_message,omitempty"`
	UserQuery     string `json:"user_query"`
	MaxTokens     int    `json:"max_tokens,omitempty"`
}

// PromptUsage reports the token spend of an assembled prompt.
type PromptUsage struct {
	UserInput int            `json:"user_input"`
	System    int            `json:"system,omitempty"`
	Memories  map[string]int `json:"memories"`
	Total     int            `json:"total"`
}

// PromptResponse carries the assembled prompt and its token usage.
type PromptResponse struct {
	Prompt string      `json:"prompt"`
	Usage  PromptUsage `json:"usage"`
}

// ContextWindowResponse carries a formatted recent-turn window.
type ContextWindowResponse struct {
	Context string `json:"context"`
}

// BudgetResponse reports current token budget usage.
type BudgetResponse struct {
	TotalBudget     int `json:"total_budget"`
	UsedTokens      int `json:"used_tokens"`
	AvailableTokens int `json:"available_tokens"`
	TrackedMemories int `json:"tracked_memories"`
}
