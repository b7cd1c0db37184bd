package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/types"
)

type inMemoryEntry struct {
	memory    *types.Memory
	sessionID string
	expiresAt time.Time // zero means no expiry
}

// InMemoryStore keeps memories in a map, for development and tests. It
// honors the same TTL semantics as the Redis store: per-memory TTLs first,
// the short-term tier default otherwise. Expired entries are swept lazily
// on access against the injected clock.
type InMemoryStore struct {
	mu           sync.Mutex
	entries      map[string]inMemoryEntry
	shortTermTTL time.Duration
	componentID  string
	now          func() time.Time
	logger       *zap.Logger
}

// NewInMemoryStore creates an empty store. now is injectable for tests; nil
// defaults to time.Now.
func NewInMemoryStore(shortTermTTL time.Duration, now func() time.Time, logger *zap.Logger) *InMemoryStore {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryStore{
		entries:      make(map[string]inMemoryEntry),
		shortTermTTL: shortTermTTL,
		now:          now,
		logger:       logger.With(zap.String("component", "inmemory_store")),
	}
}

// SetComponent sets the component context. The in-memory store keys by ID
// alone, so this only mirrors the interface.
func (s *InMemoryStore) SetComponent(componentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if componentID != "" {
		s.componentID = componentID
	}
}

func (s *InMemoryStore) ttlFor(memory *types.Memory) time.Duration {
	if memory.TTLSeconds > 0 {
		return time.Duration(memory.TTLSeconds) * time.Second
	}
	if memory.Tier == types.TierShortTerm {
		return s.shortTermTTL
	}
	return 0
}

// sweepLocked drops expired entries. Caller holds s.mu.
func (s *InMemoryStore) sweepLocked() {
	now := s.now()
	for id, e := range s.entries {
		if !e.expiresAt.IsZero() && !e.expiresAt.After(now) {
			delete(s.entries, id)
		}
	}
}

func (s *InMemoryStore) storeLocked(memory *types.Memory) {
	e := inMemoryEntry{
		memory:    memory.Clone(),
		sessionID: sessionFor(memory, ""),
	}
	if ttl := s.ttlFor(memory); ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[memory.ID] = e
}

// Add stores a memory and returns its ID.
func (s *InMemoryStore) Add(_ context.Context, memory *types.Memory) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.storeLocked(memory)
	return memory.ID, nil
}

// Get retrieves a memory and refreshes its last-accessed timestamp. An
// empty tier matches any tier.
func (s *InMemoryStore) Get(_ context.Context, id string, tier types.Tier, sessionID string) (*types.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	e, ok := s.entries[id]
	if !ok || (tier != "" && e.memory.Tier != tier) {
		return nil, ErrNotFound
	}
	if sessionID != "" && e.sessionID != sessionID {
		return nil, ErrNotFound
	}

	e.memory.Touch(s.now())
	return e.memory.Clone(), nil
}

// Update overwrites an existing memory.
func (s *InMemoryStore) Update(_ context.Context, memory *types.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	memory.UpdatedAt = s.now()
	s.storeLocked(memory)
	return nil
}

// Delete removes a memory if its tier matches (or tier is empty).
func (s *InMemoryStore) Delete(_ context.Context, id string, tier types.Tier, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if ok && (tier == "" || e.memory.Tier == tier) {
		delete(s.entries, id)
	}
	return nil
}

// List returns stored memories filtered by tier and session, ordered by ID
// for stable pagination.
func (s *InMemoryStore) List(_ context.Context, tier types.Tier, sessionID string, limit, offset int) ([]*types.Memory, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	ids := make([]string, 0, len(s.entries))
	for id, e := range s.entries {
		if tier != "" && e.memory.Tier != tier {
			continue
		}
		if sessionID != "" && e.sessionID != sessionID {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if offset >= len(ids) {
		return []*types.Memory{}, nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}

	memories := make([]*types.Memory, 0, end-offset)
	for _, id := range ids[offset:end] {
		memories = append(memories, s.entries[id].memory.Clone())
	}
	return memories, nil
}

// SearchByMetadata returns memories whose metadata contains every key/value
// pair in query.
func (s *InMemoryStore) SearchByMetadata(ctx context.Context, query map[string]any, limit int, tier types.Tier) ([]*types.Memory, error) {
	if limit <= 0 {
		limit = 10
	}

	candidates, err := s.List(ctx, tier, "", 10000, 0)
	if err != nil {
		return nil, err
	}

	matched := make([]*types.Memory, 0, limit)
	for _, memory := range candidates {
		if !memory.MatchesMetadata(query) {
			continue
		}
		matched = append(matched, memory)
		if len(matched) >= limit {
			break
		}
	}
	return matched, nil
}

// Close empties the store.
func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]inMemoryEntry)
	return nil
}
