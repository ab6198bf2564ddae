// Package setup registers the SNP search MCP server in an MCP client
// configuration file.
package setup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultServerName is the key the server is registered under
const DefaultServerName = "snp-search"

// ClientConfig represents an MCP client configuration file.
type ClientConfig struct {
	MCPServers map[string]MCPServerConfig `json:"mcpServers"`
}

// MCPServerConfig represents a single MCP server configuration.
type MCPServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Options contains options for registering the server.
type Options struct {
	ConfigPath    string
	ServerName    string
	BinaryPath    string
	SearchAddress string
	AnnotationAPI string
}

// Status represents the registration state in a client config.
type Status struct {
	ConfigPath string
	Registered bool
	ServerPath string
	Env        map[string]string
	Issues     []string
}

// LoadClientConfig loads an existing client configuration. A missing file
// yields an empty configuration.
func LoadClientConfig(configPath string) (*ClientConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &ClientConfig{MCPServers: make(map[string]MCPServerConfig)}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config ClientConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if config.MCPServers == nil {
		config.MCPServers = make(map[string]MCPServerConfig)
	}

	return &config, nil
}

// SaveClientConfig writes the configuration, creating parent directories.
func SaveClientConfig(configPath string, config *ClientConfig) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Register adds or replaces the server entry, leaving other servers intact.
func Register(opts Options) error {
	if opts.ConfigPath == "" {
		return fmt.Errorf("config path is required")
	}
	if opts.BinaryPath == "" {
		return fmt.Errorf("binary path is required")
	}
	if opts.ServerName == "" {
		opts.ServerName = DefaultServerName
	}

	config, err := LoadClientConfig(opts.ConfigPath)
	if err != nil {
		return err
	}

	env := make(map[string]string)
	if opts.SearchAddress != "" {
		env["SNP_SEARCH_SEARCH_ADDRESSES"] = opts.SearchAddress
	}
	if opts.AnnotationAPI != "" {
		env["SNP_SEARCH_DOWNLOAD_ANNOTATION_API"] = opts.AnnotationAPI
	}

	config.MCPServers[opts.ServerName] = MCPServerConfig{
		Command: opts.BinaryPath,
		Env:     env,
	}

	return SaveClientConfig(opts.ConfigPath, config)
}

// GetStatus reports whether serverName is registered in the config file.
func GetStatus(configPath, serverName string) (*Status, error) {
	if serverName == "" {
		serverName = DefaultServerName
	}
	status := &Status{ConfigPath: configPath, Issues: []string{}}

	config, err := LoadClientConfig(configPath)
	if err != nil {
		return nil, err
	}

	serverConfig, ok := config.MCPServers[serverName]
	if !ok {
		status.Issues = append(status.Issues, fmt.Sprintf("Server %q is not registered", serverName))
		return status, nil
	}

	status.Registered = true
	status.ServerPath = serverConfig.Command
	status.Env = serverConfig.Env

	if _, err := os.Stat(serverConfig.Command); os.IsNotExist(err) {
		status.Issues = append(status.Issues, fmt.Sprintf("Server binary not found at: %s", serverConfig.Command))
	}

	return status, nil
}
