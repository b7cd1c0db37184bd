// Package core orchestrates the tiered memory store and the token budget
// engine. MemoryManager is the entry point applications embed: it owns
// memory CRUD across tiers, conversation history, session context, and
// budget-aware prompt generation.
package core
