package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string         `mapstructure:"environment"`
	Server      ServerConfig   `mapstructure:"server"`
	Search      SearchConfig   `mapstructure:"search"`
	Download    DownloadConfig `mapstructure:"download"`
	Cache       CacheConfig    `mapstructure:"cache"`
	Logging     LoggingConfig  `mapstructure:"logging"`
	MCP         MCPConfig      `mapstructure:"mcp"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// SearchConfig represents search engine configuration.
// A zero PingTimeout leaves the availability check unbounded.
type SearchConfig struct {
	Addresses   []string             `mapstructure:"addresses"`
	Index       string               `mapstructure:"index"`
	Username    string               `mapstructure:"username"`
	Password    string               `mapstructure:"password"`
	APIKey      string               `mapstructure:"api_key"`
	PageSize    int                  `mapstructure:"page_size"`
	Timeout     time.Duration        `mapstructure:"timeout"`
	PingTimeout time.Duration        `mapstructure:"ping_timeout"`
	RateLimit   int                  `mapstructure:"rate_limit"`
	Breaker     CircuitBreakerConfig `mapstructure:"breaker"`
}

// CircuitBreakerConfig represents circuit breaker thresholds
type CircuitBreakerConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
}

// DownloadConfig represents the export status resource configuration.
// A zero Timeout leaves the fetch unbounded.
type DownloadConfig struct {
	AnnotationAPI string        `mapstructure:"annotation_api"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RateLimit     int           `mapstructure:"rate_limit"`
}

// CacheConfig represents search envelope cache configuration
type CacheConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Backend     string        `mapstructure:"backend"` // "memory", "redis"
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxItems    int           `mapstructure:"max_items"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	Filename string `mapstructure:"filename"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName    string `mapstructure:"server_name"`
	ServerVersion string `mapstructure:"server_version"`
}
