// Package app wires configuration into a ready SnpService shared by the
// HTTP and MCP entry points.
package app

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/snp-search-service/internal/cache"
	"github.com/snp-search-service/internal/domain"
	"github.com/snp-search-service/internal/service"
	"github.com/snp-search-service/pkg/external"
)

// App holds the wired service and the resources it owns
type App struct {
	Service *service.SnpService
	Engine  *external.ResilientSearchClient

	closers []io.Closer
	logger  *logrus.Logger
}

// New builds the search engine client, envelope cache, download client and
// service described by cfg
func New(cfg *domain.Config, logger *logrus.Logger) (*App, error) {
	a := &App{logger: logger}

	es, err := external.NewElasticsearchClientFromConfig(cfg.Search)
	if err != nil {
		return nil, fmt.Errorf("failed to create search engine client: %w", err)
	}

	pageCache, err := a.buildCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	a.Engine = external.NewResilientSearchClient(es, external.ResilientSearchConfig{
		Name:      "Elasticsearch",
		Index:     es.Index(),
		RateLimit: cfg.Search.RateLimit,
		Breaker:   cfg.Search.Breaker,
		Cache:     pageCache,
		CacheTTL:  cfg.Cache.DefaultTTL,
	}, logger)

	svc, err := service.NewSnpService(a.Engine,
		service.WithPageSize(cfg.Search.PageSize),
		service.WithPingTimeout(cfg.Search.PingTimeout),
		service.WithDownloadFetcher(external.NewDownloadClient(cfg.Download)),
		service.WithLogger(logger),
	)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to create snp service: %w", err)
	}
	a.Service = svc

	logger.WithFields(logrus.Fields{
		"addresses":     cfg.Search.Addresses,
		"index":         es.Index(),
		"page_size":     cfg.Search.PageSize,
		"cache_enabled": pageCache != nil,
	}).Info("SNP search service initialized")

	return a, nil
}

func (a *App) buildCache(cfg domain.CacheConfig) (domain.PageCache, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch cfg.Backend {
	case "", "memory":
		memCache, err := cache.NewMemoryCache(cfg.MaxItems, cfg.DefaultTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to create memory cache: %w", err)
		}
		return memCache, nil
	case "redis":
		redisCache, err := external.NewCacheClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis cache: %w", err)
		}
		a.closers = append(a.closers, redisCache)
		return redisCache, nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}
}

// Close releases resources owned by the app
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
