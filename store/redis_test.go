package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/config"
	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/types"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	s, err := NewRedisStore(config.RedisConfig{
		Addr:         mr.Addr(),
		KeyPrefix:    "memory:",
		DialTimeout:  time.Second,
		ShortTermTTL: 30 * time.Minute,
	}, "app", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func sessionMemory(id, content string, tier types.Tier, sessionID string) *types.Memory {
	return types.NewMemory(id, content, map[string]any{
		types.MetaSessionID: sessionID,
	}, tier, 0.5)
}

func TestRedisStoreAddGetRoundtrip(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	mem := sessionMemory("m1", "remember me", types.TierWorking, "sess1")
	id, err := s.Add(ctx, mem)
	require.NoError(t, err)
	assert.Equal(t, "m1", id)

	assert.True(t, mr.Exists("memory:working:sess1:app:main:m1"))

	got, err := s.Get(ctx, "m1", types.TierWorking, "sess1")
	require.NoError(t, err)
	assert.Equal(t, "remember me", got.Content)
	assert.Equal(t, types.TierWorking, got.Tier)
	assert.Equal(t, "sess1", got.SessionID())
}

func TestRedisStoreGetRefreshesLastAccessed(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	mem := sessionMemory("m1", "touch me", types.TierWorking, "sess1")
	mem.LastAccessedAt = base.Add(-time.Hour)
	_, err := s.Add(ctx, mem)
	require.NoError(t, err)

	got, err := s.Get(ctx, "m1", types.TierWorking, "sess1")
	require.NoError(t, err)
	assert.True(t, got.LastAccessedAt.Equal(base))

	// The refreshed timestamp persisted.
	again, err := s.Get(ctx, "m1", types.TierWorking, "sess1")
	require.NoError(t, err)
	assert.True(t, again.LastAccessedAt.Equal(base))
}

func TestRedisStoreGetWithoutTierProbesAllTiers(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()

	mem := sessionMemory("m1", "somewhere in a tier", types.TierLongTerm, "sess1")
	_, err := s.Add(ctx, mem)
	require.NoError(t, err)

	got, err := s.Get(ctx, "m1", "", "sess1")
	require.NoError(t, err)
	assert.Equal(t, types.TierLongTerm, got.Tier)
}

func TestRedisStoreGetMissing(t *testing.T) {
	s, _ := newRedisStore(t)

	_, err := s.Get(context.Background(), "ghost", types.TierWorking, "sess1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreShortTermTTL(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	mem := sessionMemory("m1", "ephemeral", types.TierShortTerm, "sess1")
	_, err := s.Add(ctx, mem)
	require.NoError(t, err)

	mr.FastForward(31 * time.Minute)

	_, err = s.Get(ctx, "m1", types.TierShortTerm, "sess1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStorePerMemoryTTLOverridesTierDefault(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	mem := sessionMemory("m1", "short lived", types.TierWorking, "sess1")
	mem.TTLSeconds = 60
	_, err := s.Add(ctx, mem)
	require.NoError(t, err)

	mr.FastForward(61 * time.Second)

	_, err = s.Get(ctx, "m1", types.TierWorking, "sess1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreWorkingTierDoesNotExpire(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	mem := sessionMemory("m1", "durable", types.TierWorking, "sess1")
	_, err := s.Add(ctx, mem)
	require.NoError(t, err)

	mr.FastForward(24 * time.Hour)

	_, err = s.Get(ctx, "m1", types.TierWorking, "sess1")
	assert.NoError(t, err)
}

func TestRedisStoreDeleteWithoutTierClearsAllNamespaces(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()

	mem := sessionMemory("m1", "to be removed", types.TierWorking, "sess1")
	_, err := s.Add(ctx, mem)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "m1", "", "sess1"))

	_, err = s.Get(ctx, "m1", "", "sess1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting an absent ID is not an error.
	assert.NoError(t, s.Delete(ctx, "ghost", "", "sess1"))
}

func TestRedisStoreListFiltersAndPaginates(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()

	for _, mem := range []*types.Memory{
		sessionMemory("a1", "working one", types.TierWorking, "sess1"),
		sessionMemory("a2", "working two", types.TierWorking, "sess1"),
		sessionMemory("a3", "working other session", types.TierWorking, "sess2"),
		sessionMemory("a4", "short term", types.TierShortTerm, "sess1"),
	} {
		_, err := s.Add(ctx, mem)
		require.NoError(t, err)
	}

	all, err := s.List(ctx, "", "", 100, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	working, err := s.List(ctx, types.TierWorking, "", 100, 0)
	require.NoError(t, err)
	assert.Len(t, working, 3)

	sess1Working, err := s.List(ctx, types.TierWorking, "sess1", 100, 0)
	require.NoError(t, err)
	assert.Len(t, sess1Working, 2)

	// Stable pagination: page boundaries line up over sorted keys.
	page1, err := s.List(ctx, types.TierWorking, "sess1", 1, 0)
	require.NoError(t, err)
	page2, err := s.List(ctx, types.TierWorking, "sess1", 1, 1)
	require.NoError(t, err)
	require.Len(t, page1, 1)
	require.Len(t, page2, 1)
	assert.NotEqual(t, page1[0].ID, page2[0].ID)

	empty, err := s.List(ctx, types.TierWorking, "sess1", 10, 99)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRedisStoreSearchByMetadata(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()

	turn := types.NewMemory("t1", "hello there", map[string]any{
		types.MetaSessionID: "sess1",
		types.MetaType:      "conversation_turn",
		types.MetaRole:      "user",
	}, types.TierShortTerm, 0.5)
	note := sessionMemory("n1", "unrelated note", types.TierWorking, "sess1")

	for _, mem := range []*types.Memory{turn, note} {
		_, err := s.Add(ctx, mem)
		require.NoError(t, err)
	}

	got, err := s.SearchByMetadata(ctx, map[string]any{
		types.MetaSessionID: "sess1",
		types.MetaType:      "conversation_turn",
	}, 10, "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "t1", got[0].ID)

	none, err := s.SearchByMetadata(ctx, map[string]any{
		types.MetaType: "nonexistent",
	}, 10, "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRedisStoreComponentNamespacing(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	s.SetComponent("planner")

	mem := sessionMemory("m1", "component scoped", types.TierWorking, "sess1")
	_, err := s.Add(ctx, mem)
	require.NoError(t, err)

	assert.True(t, mr.Exists("memory:working:sess1:app:planner:m1"))
}
