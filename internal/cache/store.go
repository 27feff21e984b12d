package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/Mosas2000/sprintfund/internal/database"
)

// retentionFactor controls how long past the TTL an entry survives in the
// backing store. Entries older than the TTL read as stale but remain usable
// as fallbacks when a live fetch fails.
const retentionFactor = 12

// envelope is the persisted shape of a cache entry.
type envelope struct {
	Payload  json.RawMessage `json:"payload"`
	CachedAt time.Time       `json:"cached_at"`
}

// Entry is a returned cache entry. Callers never mutate a returned entry;
// they replace it wholesale via Set.
type Entry struct {
	Data     json.RawMessage `json:"data"`
	CachedAt time.Time       `json:"cached_at"`
	Age      time.Duration   `json:"age"`
	Stale    bool            `json:"stale"`
}

// Decode unmarshals the entry payload into dest.
func (e *Entry) Decode(dest interface{}) error {
	return json.Unmarshal(e.Data, dest)
}

// Stats tracks cache performance counters.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	mu     sync.Mutex
}

// Store is a namespaced, TTL-aware key/value layer over Redis. Staleness is
// advisory: Get reports it, callers decide whether a stale entry is still
// acceptable. Store failures degrade to cache-miss behavior and are never
// surfaced to callers.
type Store struct {
	redis     *database.RedisClient
	logger    *logrus.Logger
	namespace string
	ttl       time.Duration
	stats     *Stats

	// now is swapped in tests to age entries without sleeping.
	now func() time.Time
}

// NewStore creates a cache store for one logical dataset. Keys are prefixed
// with namespace so independent stores can share one Redis database.
func NewStore(redisClient *database.RedisClient, logger *logrus.Logger, namespace string, ttl time.Duration) *Store {
	return &Store{
		redis:     redisClient,
		logger:    logger,
		namespace: namespace + ":",
		ttl:       ttl,
		stats:     &Stats{},
		now:       time.Now,
	}
}

// TTL returns the configured freshness window.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Get retrieves an entry. The second return is false when the key is absent
// or the backing store failed; both degrade to a miss.
func (s *Store) Get(ctx context.Context, key string) (*Entry, bool) {
	cacheKey := s.namespace + key

	data, err := s.redis.Get(ctx, cacheKey)
	if err == redis.Nil {
		s.miss()
		return nil, false
	}
	if err != nil {
		s.logger.Warnf("Cache store error getting %s: %v", cacheKey, err)
		s.miss()
		return nil, false
	}

	var env envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		s.logger.Warnf("Error deserializing cache entry %s: %v", cacheKey, err)
		s.miss()
		return nil, false
	}

	age := s.now().Sub(env.CachedAt)
	s.hit()

	return &Entry{
		Data:     env.Payload,
		CachedAt: env.CachedAt,
		Age:      age,
		Stale:    age > s.ttl,
	}, true
}

// Set stores a value under key. Always succeeds logically: serialization or
// store failures are logged and swallowed, degrading the entry to a miss on
// the next Get.
func (s *Store) Set(ctx context.Context, key string, value interface{}) {
	cacheKey := s.namespace + key

	payload, err := json.Marshal(value)
	if err != nil {
		s.logger.Warnf("Error serializing cache entry %s: %v", cacheKey, err)
		return
	}

	env := envelope{
		Payload:  payload,
		CachedAt: s.now(),
	}

	data, err := json.Marshal(env)
	if err != nil {
		s.logger.Warnf("Error serializing cache envelope %s: %v", cacheKey, err)
		return
	}

	if err := s.redis.Set(ctx, cacheKey, data, s.ttl*retentionFactor); err != nil {
		s.logger.Warnf("Cache store error setting %s: %v", cacheKey, err)
		return
	}

	s.stats.mu.Lock()
	s.stats.Sets++
	s.stats.mu.Unlock()
}

// Clear removes every entry under this store's namespace.
func (s *Store) Clear(ctx context.Context) error {
	keys, err := s.redis.ScanKeys(ctx, s.namespace+"*")
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.redis.Delete(ctx, keys...); err != nil {
		return err
	}
	s.logger.Debugf("Cleared %d cache entries under %s", len(keys), s.namespace)
	return nil
}

// GetStats returns a copy of the current counters.
func (s *Store) GetStats() Stats {
	s.stats.mu.Lock()
	defer s.stats.mu.Unlock()
	return Stats{
		Hits:   s.stats.Hits,
		Misses: s.stats.Misses,
		Sets:   s.stats.Sets,
	}
}

func (s *Store) hit() {
	s.stats.mu.Lock()
	s.stats.Hits++
	s.stats.mu.Unlock()
}

func (s *Store) miss() {
	s.stats.mu.Lock()
	s.stats.Misses++
	s.stats.mu.Unlock()
}
