package oracle

import (
	"time"

	"peachcash/pkg/config"
	"peachcash/pkg/metrics"

	"github.com/go-redis/redis/v8"
)

// Build wires the feed from config: coingecko, then the breaker, then the cache.
// rc is only used when the cache lives in redis.
func Build(cfg config.Oracle, rc *redis.Client, mc metrics.Collector) (*MarketRater, PriceSource) {
	if mc == nil {
		mc = metrics.NoOp{}
	}

	var source PriceSource = NewCoinGecko(cfg.BaseURL)
	if cfg.Breaker.Enabled {
		source = NewBreaker(source, BreakerConfig{
			Name:                "coingecko",
			MaxRequests:         cfg.Breaker.MaxRequests,
			ConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
			OpenTimeout:         time.Duration(cfg.Breaker.OpenSeconds) * time.Second,
		}, mc)
	}
	if cfg.CacheTTL > 0 {
		var cache PriceCache = NewMemoryCache()
		if cfg.CacheIn == "redis" && rc != nil {
			cache = NewRedisCache(rc, "peachcash:price:")
		}
		source = NewCached(source, cache, time.Duration(cfg.CacheTTL)*time.Second, mc)
	}

	rater := NewMarketRater(source, time.Duration(cfg.TimeoutMs)*time.Millisecond)
	rater.Name = "coingecko"
	rater.Metrics = mc
	return rater, source
}
