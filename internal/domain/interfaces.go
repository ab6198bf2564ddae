package domain

import (
	"context"
	"time"
)

// SearchEngine executes paged queries against the SNP index
type SearchEngine interface {
	Search(ctx context.Context, req SearchRequest) (*ResultEnvelope, error)
	Ping(ctx context.Context) error
}

// DownloadFetcher retrieves the readiness payload of an export job
type DownloadFetcher interface {
	FetchDownload(ctx context.Context, downloadID string) (*DownloadState, error)
}

// PageCache stores engine envelopes keyed by request
type PageCache interface {
	GetEnvelope(ctx context.Context, key string) (*ResultEnvelope, bool, error)
	SetEnvelope(ctx context.Context, key string, env *ResultEnvelope, ttl time.Duration) error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetSearchConfig() *SearchConfig
	GetDownloadConfig() *DownloadConfig
	Reload() error
	Validate() error
	IsProduction() bool
	IsDevelopment() bool
}
