package store

import (
	"context"
	"errors"

	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/types"
)

// ErrNotFound is returned when a memory ID cannot be resolved in any
// searched namespace.
var ErrNotFound = errors.New("memory not found")

// Namespace placeholders applied when a session or component is not set.
const (
	DefaultNamespaceSession   = "global"
	DefaultNamespaceComponent = "main"
)

// Store persists memory records across tiers.
//
// Get, Delete and List accept an empty tier: Get and Delete then probe the
// legacy un-namespaced key and every tier in canonical order, and List
// matches all tiers. An empty sessionID falls back to the namespace
// placeholder on writes and matches any session on List.
type Store interface {
	// Add stores a memory under its tier's namespace and returns its ID.
	Add(ctx context.Context, memory *types.Memory) (string, error)

	// Get retrieves a memory and refreshes its last-accessed timestamp.
	Get(ctx context.Context, id string, tier types.Tier, sessionID string) (*types.Memory, error)

	// Update overwrites an existing memory in place.
	Update(ctx context.Context, memory *types.Memory) error

	// Delete removes a memory. Deleting an absent ID is not an error.
	Delete(ctx context.Context, id string, tier types.Tier, sessionID string) error

	// List returns stored memories with pagination, filtered by tier
	// and/or session when given.
	List(ctx context.Context, tier types.Tier, sessionID string, limit, offset int) ([]*types.Memory, error)

	// SearchByMetadata returns memories whose metadata contains every
	// key/value pair in query.
	SearchByMetadata(ctx context.Context, query map[string]any, limit int, tier types.Tier) ([]*types.Memory, error)

	// SetComponent sets the component used in key namespacing.
	SetComponent(componentID string)

	// Close releases the store's resources.
	Close() error
}

// sessionFor resolves the session used for namespacing: the explicit value,
// else the memory's session_id metadata, else empty.
func sessionFor(memory *types.Memory, sessionID string) string {
	if sessionID != "" {
		return sessionID
	}
	return memory.SessionID()
}
