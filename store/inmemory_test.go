package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/types"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newInMemoryStore(t *testing.T) (*InMemoryStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)}
	return NewInMemoryStore(30*time.Minute, clock.Now, nil), clock
}

func TestInMemoryStoreAddGetRoundtrip(t *testing.T) {
	s, _ := newInMemoryStore(t)
	ctx := context.Background()

	mem := sessionMemory("m1", "remember me", types.TierWorking, "sess1")
	id, err := s.Add(ctx, mem)
	require.NoError(t, err)
	assert.Equal(t, "m1", id)

	got, err := s.Get(ctx, "m1", types.TierWorking, "sess1")
	require.NoError(t, err)
	assert.Equal(t, "remember me", got.Content)

	// Returned memories are copies, not aliases of stored state.
	got.Content = "mutated"
	again, err := s.Get(ctx, "m1", types.TierWorking, "sess1")
	require.NoError(t, err)
	assert.Equal(t, "remember me", again.Content)
}

func TestInMemoryStoreGetMismatches(t *testing.T) {
	s, _ := newInMemoryStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, sessionMemory("m1", "content", types.TierWorking, "sess1"))
	require.NoError(t, err)

	_, err = s.Get(ctx, "m1", types.TierShortTerm, "sess1")
	assert.ErrorIs(t, err, ErrNotFound, "wrong tier")

	_, err = s.Get(ctx, "m1", types.TierWorking, "other")
	assert.ErrorIs(t, err, ErrNotFound, "wrong session")

	_, err = s.Get(ctx, "ghost", "", "")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.Get(ctx, "m1", "", "")
	require.NoError(t, err)
	assert.Equal(t, "m1", got.ID, "empty tier and session match anything")
}

func TestInMemoryStoreTouchOnGet(t *testing.T) {
	s, clock := newInMemoryStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, sessionMemory("m1", "content", types.TierWorking, "sess1"))
	require.NoError(t, err)

	clock.Advance(time.Hour)
	got, err := s.Get(ctx, "m1", types.TierWorking, "sess1")
	require.NoError(t, err)
	assert.True(t, got.LastAccessedAt.Equal(clock.Now()))
}

func TestInMemoryStoreShortTermExpiry(t *testing.T) {
	s, clock := newInMemoryStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, sessionMemory("m1", "ephemeral", types.TierShortTerm, "sess1"))
	require.NoError(t, err)

	clock.Advance(29 * time.Minute)
	_, err = s.Get(ctx, "m1", types.TierShortTerm, "sess1")
	assert.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = s.Get(ctx, "m1", types.TierShortTerm, "sess1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryStorePerMemoryTTL(t *testing.T) {
	s, clock := newInMemoryStore(t)
	ctx := context.Background()

	mem := sessionMemory("m1", "short lived", types.TierWorking, "sess1")
	mem.TTLSeconds = 60
	_, err := s.Add(ctx, mem)
	require.NoError(t, err)

	durable := sessionMemory("m2", "durable", types.TierWorking, "sess1")
	_, err = s.Add(ctx, durable)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)

	_, err = s.Get(ctx, "m1", types.TierWorking, "sess1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get(ctx, "m2", types.TierWorking, "sess1")
	assert.NoError(t, err)
}

func TestInMemoryStoreUpdate(t *testing.T) {
	s, _ := newInMemoryStore(t)
	ctx := context.Background()

	mem := sessionMemory("m1", "first draft", types.TierWorking, "sess1")
	_, err := s.Add(ctx, mem)
	require.NoError(t, err)

	mem.Content = "second draft"
	mem.Importance = 0.9
	require.NoError(t, s.Update(ctx, mem))

	got, err := s.Get(ctx, "m1", types.TierWorking, "sess1")
	require.NoError(t, err)
	assert.Equal(t, "second draft", got.Content)
	assert.Equal(t, 0.9, got.Importance)
}

func TestInMemoryStoreDelete(t *testing.T) {
	s, _ := newInMemoryStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, sessionMemory("m1", "content", types.TierWorking, "sess1"))
	require.NoError(t, err)

	// Tier mismatch leaves the entry alone.
	require.NoError(t, s.Delete(ctx, "m1", types.TierShortTerm, "sess1"))
	_, err = s.Get(ctx, "m1", types.TierWorking, "sess1")
	assert.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "m1", types.TierWorking, "sess1"))
	_, err = s.Get(ctx, "m1", types.TierWorking, "sess1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.Delete(ctx, "ghost", "", ""))
}

func TestInMemoryStoreListOrderAndPagination(t *testing.T) {
	s, _ := newInMemoryStore(t)
	ctx := context.Background()

	for _, mem := range []*types.Memory{
		sessionMemory("c", "third", types.TierWorking, "sess1"),
		sessionMemory("a", "first", types.TierWorking, "sess1"),
		sessionMemory("b", "second", types.TierWorking, "sess2"),
		sessionMemory("d", "short", types.TierShortTerm, "sess1"),
	} {
		_, err := s.Add(ctx, mem)
		require.NoError(t, err)
	}

	all, err := s.List(ctx, "", "", 100, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "d", all[3].ID)

	sess1Working, err := s.List(ctx, types.TierWorking, "sess1", 100, 0)
	require.NoError(t, err)
	require.Len(t, sess1Working, 2)
	assert.Equal(t, "a", sess1Working[0].ID)
	assert.Equal(t, "c", sess1Working[1].ID)

	page, err := s.List(ctx, "", "", 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].ID)
}

func TestInMemoryStoreSearchByMetadata(t *testing.T) {
	s, _ := newInMemoryStore(t)
	ctx := context.Background()

	ctxMem := types.NewMemory("k1", "user prefers dark mode", map[string]any{
		types.MetaSessionID:  "sess1",
		types.MetaType:       "session_context",
		types.MetaContextKey: "preferences",
	}, types.TierWorking, 0.8)
	other := sessionMemory("k2", "unrelated", types.TierWorking, "sess1")

	for _, mem := range []*types.Memory{ctxMem, other} {
		_, err := s.Add(ctx, mem)
		require.NoError(t, err)
	}

	got, err := s.SearchByMetadata(ctx, map[string]any{
		types.MetaType:       "session_context",
		types.MetaContextKey: "preferences",
	}, 10, types.TierWorking)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "k1", got[0].ID)
}
