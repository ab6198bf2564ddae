package external

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/snp-search-service/internal/domain"
)

// ResilientSearchClient wraps a search engine with a circuit breaker, a rate
// limiter and an optional envelope cache
type ResilientSearchClient struct {
	engine   domain.SearchEngine
	breaker  *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	cache    domain.PageCache
	cacheTTL time.Duration
	index    string
	logger   *logrus.Logger
}

// ResilientSearchConfig represents configuration for the resilient client
type ResilientSearchConfig struct {
	Name      string
	Index     string
	RateLimit int // requests per second, 0 disables limiting
	Breaker   domain.CircuitBreakerConfig
	Cache     domain.PageCache
	CacheTTL  time.Duration
}

// NewResilientSearchClient creates a new resilient search client
func NewResilientSearchClient(engine domain.SearchEngine, config ResilientSearchConfig, logger *logrus.Logger) *ResilientSearchClient {
	if config.Name == "" {
		config.Name = "Elasticsearch"
	}
	if config.Breaker.MaxRequests == 0 {
		config.Breaker.MaxRequests = 5
	}
	if config.Breaker.Interval == 0 {
		config.Breaker.Interval = 30 * time.Second
	}
	if config.Breaker.Timeout == 0 {
		config.Breaker.Timeout = 60 * time.Second
	}
	if config.Breaker.MinRequests == 0 {
		config.Breaker.MinRequests = 3
	}
	if config.Breaker.FailureRatio == 0 {
		config.Breaker.FailureRatio = 0.6
	}

	breakerCfg := config.Breaker
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: breakerCfg.MaxRequests,
		Interval:    breakerCfg.Interval,
		Timeout:     breakerCfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= breakerCfg.MinRequests && failureRatio >= breakerCfg.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from_state":      from.String(),
				"to_state":        to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), config.RateLimit)
	}

	return &ResilientSearchClient{
		engine:   engine,
		breaker:  breaker,
		limiter:  limiter,
		cache:    config.Cache,
		cacheTTL: config.CacheTTL,
		index:    config.Index,
		logger:   logger,
	}
}

// Search queries the engine through the cache, limiter and breaker
func (r *ResilientSearchClient) Search(ctx context.Context, req domain.SearchRequest) (*domain.ResultEnvelope, error) {
	key := ""
	if r.cache != nil {
		var err error
		key, err = EnvelopeCacheKey(r.index, req)
		if err != nil {
			return nil, err
		}
		if cached, found, err := r.cache.GetEnvelope(ctx, key); err == nil && found {
			r.logger.WithField("cache_key", key).Debug("Search served from cache")
			return cached, nil
		} else if err != nil {
			r.logger.WithError(err).Warn("Failed to read search cache")
		}
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.engine.Search(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit breaker %s", domain.ErrEngineUnavailable, r.breaker.State())
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}

	envelope := result.(*domain.ResultEnvelope)

	if r.cache != nil {
		if cacheErr := r.cache.SetEnvelope(ctx, key, envelope, r.cacheTTL); cacheErr != nil {
			// cache errors never fail the request
			r.logger.WithError(cacheErr).Warn("Failed to cache search envelope")
		}
	}

	return envelope, nil
}

// Ping checks engine liveness without counting against the breaker
func (r *ResilientSearchClient) Ping(ctx context.Context) error {
	return r.engine.Ping(ctx)
}

// State returns the current circuit breaker state
func (r *ResilientSearchClient) State() gobreaker.State {
	return r.breaker.State()
}

// EnvelopeCacheKey derives a stable cache key for a paged request
func EnvelopeCacheKey(index string, req domain.SearchRequest) (string, error) {
	body, err := json.Marshal(req.Body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal search body for cache key: %w", err)
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d|", index, req.From, req.Size)
	h.Write(body)
	return "snp:envelope:" + hex.EncodeToString(h.Sum(nil)), nil
}
