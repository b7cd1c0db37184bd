package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/config"
	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/types"
)

const scanBatchSize = 1000

// RedisStore persists memories in Redis as JSON values under namespaced
// keys. Short-term memories expire via Redis TTLs; a per-memory TTL
// overrides the tier default.
type RedisStore struct {
	client       *redis.Client
	prefix       string
	framework    string
	shortTermTTL time.Duration

	mu          sync.RWMutex
	componentID string

	now    func() time.Time
	logger *zap.Logger
}

// NewRedisStore connects to Redis and verifies the connection. framework
// names the integration writing through this store ("app" when empty).
func NewRedisStore(cfg config.RedisConfig, framework string, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if framework == "" {
		framework = "app"
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis store connected",
		zap.String("addr", cfg.Addr),
		zap.String("key_prefix", cfg.KeyPrefix))

	return &RedisStore{
		client:       client,
		prefix:       cfg.KeyPrefix,
		framework:    framework,
		shortTermTTL: cfg.ShortTermTTL,
		now:          time.Now,
		logger:       logger.With(zap.String("component", "redis_store")),
	}, nil
}

// SetComponent sets the component used in key namespacing.
func (s *RedisStore) SetComponent(componentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if componentID != "" {
		s.componentID = componentID
	}
}

func (s *RedisStore) component() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.componentID == "" {
		return DefaultNamespaceComponent
	}
	return s.componentID
}

// key builds {prefix}{tier}:{session}:{framework}:{component}:{id}. Without
// a tier it degrades to the legacy {prefix}{id} form.
func (s *RedisStore) key(id string, tier types.Tier, sessionID string) string {
	if tier == "" || id == "" {
		return s.prefix + id
	}
	if sessionID == "" {
		sessionID = DefaultNamespaceSession
	}
	return s.prefix + strings.Join([]string{
		string(tier), sessionID, s.framework, s.component(), id,
	}, ":")
}

// ttlFor resolves the expiry for a memory: its own TTL first, the tier
// default for short-term entries otherwise, no expiry for the rest.
func (s *RedisStore) ttlFor(memory *types.Memory) time.Duration {
	if memory.TTLSeconds > 0 {
		return time.Duration(memory.TTLSeconds) * time.Second
	}
	if memory.Tier == types.TierShortTerm {
		return s.shortTermTTL
	}
	return 0
}

func (s *RedisStore) write(ctx context.Context, key string, memory *types.Memory) error {
	data, err := json.Marshal(memory)
	if err != nil {
		return fmt.Errorf("marshal memory %q: %w", memory.ID, err)
	}
	if err := s.client.Set(ctx, key, data, s.ttlFor(memory)).Err(); err != nil {
		return fmt.Errorf("write memory %q: %w", memory.ID, err)
	}
	return nil
}

// Add stores a memory and returns its ID.
func (s *RedisStore) Add(ctx context.Context, memory *types.Memory) (string, error) {
	key := s.key(memory.ID, memory.Tier, sessionFor(memory, ""))
	if err := s.write(ctx, key, memory); err != nil {
		return "", err
	}
	return memory.ID, nil
}

// Get retrieves a memory and refreshes its last-accessed timestamp. With an
// empty tier it probes the legacy key first, then each tier in canonical
// order.
func (s *RedisStore) Get(ctx context.Context, id string, tier types.Tier, sessionID string) (*types.Memory, error) {
	keys := make([]string, 0, 4)
	if tier != "" {
		keys = append(keys, s.key(id, tier, sessionID))
	} else {
		keys = append(keys, s.key(id, "", ""))
		for _, t := range types.Tiers() {
			keys = append(keys, s.key(id, t, sessionID))
		}
	}

	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read memory %q: %w", id, err)
		}

		var memory types.Memory
		if err := json.Unmarshal(data, &memory); err != nil {
			return nil, fmt.Errorf("decode memory %q: %w", id, err)
		}

		memory.Touch(s.now())
		if err := s.write(ctx, key, &memory); err != nil {
			s.logger.Warn("failed to refresh last-accessed timestamp",
				zap.String("memory_id", id), zap.Error(err))
		}
		return &memory, nil
	}

	return nil, fmt.Errorf("memory %q: %w", id, ErrNotFound)
}

// Update overwrites a memory under its current tier namespace.
func (s *RedisStore) Update(ctx context.Context, memory *types.Memory) error {
	memory.UpdatedAt = s.now()
	key := s.key(memory.ID, memory.Tier, sessionFor(memory, ""))
	return s.write(ctx, key, memory)
}

// Delete removes a memory. Without a tier it clears the legacy key and
// every tier namespace; deleting an absent ID is not an error.
func (s *RedisStore) Delete(ctx context.Context, id string, tier types.Tier, sessionID string) error {
	keys := make([]string, 0, 4)
	if tier != "" {
		keys = append(keys, s.key(id, tier, sessionID))
	} else {
		keys = append(keys, s.key(id, "", ""))
		for _, t := range types.Tiers() {
			keys = append(keys, s.key(id, t, sessionID))
		}
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete memory %q: %w", id, err)
	}
	return nil
}

// pattern builds the scan pattern for a tier/session filter combination.
func (s *RedisStore) pattern(tier types.Tier, sessionID string) string {
	switch {
	case tier != "" && sessionID != "":
		return s.prefix + strings.Join([]string{
			string(tier), sessionID, s.framework, "*",
		}, ":")
	case tier != "":
		return s.prefix + string(tier) + ":*"
	case sessionID != "":
		return s.prefix + "*:" + sessionID + ":*"
	default:
		return s.prefix + "*"
	}
}

func (s *RedisStore) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("scan %q: %w", pattern, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	// SCAN order is unspecified; sort so pagination is stable.
	sort.Strings(keys)
	return keys, nil
}

// List returns stored memories with pagination.
func (s *RedisStore) List(ctx context.Context, tier types.Tier, sessionID string, limit, offset int) ([]*types.Memory, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	keys, err := s.scanKeys(ctx, s.pattern(tier, sessionID))
	if err != nil {
		return nil, err
	}

	if offset >= len(keys) {
		return []*types.Memory{}, nil
	}
	end := offset + limit
	if end > len(keys) {
		end = len(keys)
	}
	page := keys[offset:end]
	if len(page) == 0 {
		return []*types.Memory{}, nil
	}

	values, err := s.client.MGet(ctx, page...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget: %w", err)
	}

	memories := make([]*types.Memory, 0, len(values))
	for _, value := range values {
		data, ok := value.(string)
		if !ok {
			continue
		}
		var memory types.Memory
		if err := json.Unmarshal([]byte(data), &memory); err != nil {
			s.logger.Warn("skipping undecodable memory", zap.Error(err))
			continue
		}
		memories = append(memories, &memory)
	}
	return memories, nil
}

// SearchByMetadata returns memories whose metadata contains every key/value
// pair in query. A session_id in the query narrows the scan namespace.
func (s *RedisStore) SearchByMetadata(ctx context.Context, query map[string]any, limit int, tier types.Tier) ([]*types.Memory, error) {
	if limit <= 0 {
		limit = 10
	}

	sessionID := ""
	if v, ok := query[types.MetaSessionID]; ok {
		sessionID = fmt.Sprint(v)
	}

	candidates, err := s.List(ctx, tier, sessionID, 10000, 0)
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

// Close releases the Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
