package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/snp-search-service/internal/domain"
	"github.com/spf13/viper"
)

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v      *viper.Viper
	config *domain.Config
}

var _ domain.ConfigManager = (*Manager)(nil)

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	m := &Manager{v: viper.New()}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// NewManagerFromFile creates a configuration manager reading an explicit file
func NewManagerFromFile(path string) (*Manager, error) {
	m := &Manager{v: viper.New()}
	m.v.SetConfigFile(path)
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration from %s: %w", path, err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := m.v
	if v.ConfigFileUsed() == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/snp-search/")
	}

	v.SetEnvPrefix("SNP_SEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	m.setDefaults()

	// Config file is optional, defaults and environment still apply
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	v := m.v

	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "60s")

	// Search engine defaults
	v.SetDefault("search.addresses", []string{"http://localhost:9200"})
	v.SetDefault("search.index", "snps")
	v.SetDefault("search.username", "")
	v.SetDefault("search.password", "")
	v.SetDefault("search.api_key", "")
	v.SetDefault("search.page_size", 50)
	v.SetDefault("search.timeout", "30s")
	v.SetDefault("search.ping_timeout", "10s")
	v.SetDefault("search.rate_limit", 20)
	v.SetDefault("search.breaker.max_requests", 5)
	v.SetDefault("search.breaker.interval", "30s")
	v.SetDefault("search.breaker.timeout", "60s")
	v.SetDefault("search.breaker.min_requests", 3)
	v.SetDefault("search.breaker.failure_ratio", 0.6)

	// Download status defaults
	v.SetDefault("download.annotation_api", "http://localhost:8000")
	v.SetDefault("download.timeout", "30s")
	v.SetDefault("download.rate_limit", 5)

	// Cache defaults
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_url", "redis://localhost:6379")
	v.SetDefault("cache.default_ttl", "5m")
	v.SetDefault("cache.max_items", 1000)
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.pool_timeout", "4s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.filename", "")

	// MCP defaults
	v.SetDefault("mcp.server_name", "snp-search-mcp-server")
	v.SetDefault("mcp.server_version", "v0.1.0")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetSearchConfig returns search engine configuration
func (m *Manager) GetSearchConfig() *domain.SearchConfig {
	return &m.config.Search
}

// GetDownloadConfig returns download status configuration
func (m *Manager) GetDownloadConfig() *domain.DownloadConfig {
	return &m.config.Download
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if len(config.Search.Addresses) == 0 {
		return fmt.Errorf("at least one search engine address is required")
	}
	if config.Search.Index == "" {
		return fmt.Errorf("search index is required")
	}
	if config.Search.PageSize <= 0 {
		return fmt.Errorf("invalid page size: %d", config.Search.PageSize)
	}
	if config.Search.RateLimit < 0 {
		return fmt.Errorf("invalid search rate limit: %d", config.Search.RateLimit)
	}
	if config.Search.Breaker.FailureRatio < 0 || config.Search.Breaker.FailureRatio > 1 {
		return fmt.Errorf("invalid breaker failure ratio: %v", config.Search.Breaker.FailureRatio)
	}

	if config.Download.AnnotationAPI == "" {
		return fmt.Errorf("annotation API base URL is required")
	}

	if config.Cache.Enabled {
		switch strings.ToLower(config.Cache.Backend) {
		case "memory":
			if config.Cache.MaxItems <= 0 {
				return fmt.Errorf("invalid cache max items: %d", config.Cache.MaxItems)
			}
		case "redis":
			if config.Cache.RedisURL == "" {
				return fmt.Errorf("Redis URL is required for the redis cache backend")
			}
		default:
			return fmt.Errorf("invalid cache backend: %s", config.Cache.Backend)
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}
