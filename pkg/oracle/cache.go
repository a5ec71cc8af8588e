package oracle

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"peachcash/pkg/metrics"

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/singleflight"
)

// PriceCache keeps recent prices for a ttl
type PriceCache interface {
	Get(ctx context.Context, key string) (price float64, ok bool, err error)
	Set(ctx context.Context, key string, price float64, ttl time.Duration) error
}

// Cached serves prices from a PriceCache and collapses concurrent misses for the same pair
type Cached struct {
	source  PriceSource
	cache   PriceCache
	ttl     time.Duration
	sf      singleflight.Group
	metrics metrics.Collector

	// FlightTimeout bounds one source lookup shared by every waiter on the pair
	FlightTimeout time.Duration
}

const defaultFlightTimeout = 30 * time.Second

func NewCached(source PriceSource, cache PriceCache, ttl time.Duration, mc metrics.Collector) *Cached {
	if mc == nil {
		mc = metrics.NoOp{}
	}
	return &Cached{
		source:  source,
		cache:   cache,
		ttl:     ttl,
		metrics: mc,

		FlightTimeout: defaultFlightTimeout,
	}
}

func priceKey(cryptoID, fiatID string) string {
	return cryptoID + "/" + fiatID
}

func (c *Cached) Price(ctx context.Context, cryptoID, fiatID string) (float64, error) {
	key := priceKey(cryptoID, fiatID)

	p, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		// a broken cache must not block the feed
		logger.Warningf("price cache get %s failed with err:%s", key, err)
	}
	c.metrics.RecordCacheLookup(ok)
	if ok {
		return p, nil
	}

	ch := c.sf.DoChan(key, func() (interface{}, error) {
		// the flight outlives the caller that started it, other waiters share its result
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.FlightTimeout)
		defer cancel()

		// a flight that just finished may already have filled the cache
		if p, ok, _ := c.cache.Get(fctx, key); ok {
			return p, nil
		}
		p, err := c.source.Price(fctx, cryptoID, fiatID)
		if err != nil {
			return 0.0, err
		}
		if err := c.cache.Set(fctx, key, p, c.ttl); err != nil {
			logger.Warningf("price cache set %s failed with err:%s", key, err)
		}
		return p, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(float64), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// MemoryCache is a process local PriceCache
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	price   float64
	expires time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: map[string]memoryEntry{}, now: time.Now}
}

func (m *MemoryCache) Get(ctx context.Context, key string) (float64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return 0, false, nil
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, key)
		return 0, false, nil
	}
	return e.price, true, nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, price float64, ttl time.Duration) error {
	m.mu.Lock()
	m.entries[key] = memoryEntry{price: price, expires: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

// RedisCache shares prices between instances
type RedisCache struct {
	rc     *redis.Client
	prefix string
}

func NewRedisCache(rc *redis.Client, prefix string) *RedisCache {
	return &RedisCache{rc: rc, prefix: prefix}
}

func (r *RedisCache) Get(ctx context.Context, key string) (float64, bool, error) {
	s, err := r.rc.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	p, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, err
	}
	return p, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, price float64, ttl time.Duration) error {
	return r.rc.Set(ctx, r.prefix+key, strconv.FormatFloat(price, 'g', -1, 64), ttl).Err()
}
