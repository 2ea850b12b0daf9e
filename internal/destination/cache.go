package destination

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store is a byte cache with per-key TTL.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

const keyPrefix = "destination:"

// Invalidator drops a user's cached account.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// CachedResolver is a read-through cache in front of another Resolver.
// Only connected accounts are cached; missing accounts and errors always go
// through, so a newly connected account is picked up on the next attempt.
//
// A disconnected account keeps resolving from the cache until its TTL expires
// or Invalidate is called. The payout executor invalidates when the provider
// rejects the account as an invalid destination, and the account service can
// invalidate through the ops endpoint DELETE /v1/users/:id/destination-cache.
type CachedResolver struct {
	next  Resolver
	store Store
	ttl   time.Duration
	log   *zap.Logger
}

// NewCachedResolver creates a new CachedResolver.
func NewCachedResolver(next Resolver, store Store, ttl time.Duration, log *zap.Logger) *CachedResolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedResolver{next: next, store: store, ttl: ttl, log: log}
}

// Resolve returns the cached account id or asks the underlying resolver.
// Cache failures are logged and bypassed.
func (c *CachedResolver) Resolve(ctx context.Context, userID string) (string, error) {
	if err := ValidateUserID(userID); err != nil {
		return "", err
	}

	key := keyPrefix + userID
	if v, found, err := c.store.Get(ctx, key); err != nil {
		c.log.Warn("destination cache get failed", zap.String("user_id", userID), zap.Error(err))
	} else if found && len(v) > 0 {
		return string(v), nil
	}

	accountID, err := c.next.Resolve(ctx, userID)
	if err != nil || accountID == "" {
		return accountID, err
	}

	if err := c.store.Set(ctx, key, []byte(accountID), c.ttl); err != nil {
		c.log.Warn("destination cache set failed", zap.String("user_id", userID), zap.Error(err))
	}
	return accountID, nil
}

// Invalidate drops a user's cached account.
func (c *CachedResolver) Invalidate(ctx context.Context, userID string) error {
	return c.store.Delete(ctx, keyPrefix+userID)
}

// RedisStore is a Store backed by Redis.
type RedisStore struct {
	Client *redis.Client
}

// NewRedisStore creates a new RedisStore.
func NewRedisStore(opt *redis.Options) *RedisStore {
	return &RedisStore{Client: redis.NewClient(opt)}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.Client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.Client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.Client.Del(ctx, key).Err()
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.Client.Close()
}

type memItem struct {
	v       []byte
	expires time.Time
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memItem
	now   func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]memItem{}, now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	it, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !it.expires.IsZero() && s.now().After(it.expires) {
		s.mu.Lock()
		delete(s.items, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), it.v...), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	it := memItem{v: append([]byte(nil), value...)}
	if ttl > 0 {
		it.expires = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.items[key] = it
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}
