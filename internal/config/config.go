// Package config provides centralized configuration management for vifd.
// All configuration is loaded from a JSON file at /etc/vrouter-vif/config.json
// (overridable via VIFD_CONFIG environment variable).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

const (
	// DefaultConfigPath is the default location for the config file
	DefaultConfigPath = "/etc/vrouter-vif/config.json"

	// ConfigEnvVar is the environment variable to override config file location
	ConfigEnvVar = "VIFD_CONFIG"
)

// Config is the root configuration structure
type Config struct {
	Docker  DockerConfig  `json:"docker"`
	VRouter VRouterConfig `json:"vrouter"`
	Attach  AttachConfig  `json:"attach"`
	Paths   PathsConfig   `json:"paths"`
	Server  ServerConfig  `json:"server"`
	Log     LogConfig     `json:"log"`
}

// DockerConfig defines how to reach the Docker Engine API used for
// in-container commands and PID lookups.
type DockerConfig struct {
	HostURL  string `json:"host_url"`     // e.g. unix:///var/run/docker.sock or tcp://host:2376
	Insecure bool   `json:"api_insecure"` // Skip TLS verification for tcp endpoints
	CAFile   string `json:"ca_file"`
	CertFile string `json:"cert_file"`
	KeyFile  string `json:"key_file"`

	// PrivilegedExec runs in-container commands privileged. Renaming and
	// configuring links needs CAP_NET_ADMIN inside the container.
	// Default: true.
	PrivilegedExec bool `json:"privileged_exec"`
}

// VRouterConfig defines the vrouter agent port API endpoint.
type VRouterConfig struct {
	AgentURL string `json:"agent_url"`

	// RequestTimeout bounds each port API call. Duration string.
	// Default: 10s.
	RequestTimeout string `json:"request_timeout"`
}

// GetRequestTimeout returns the agent request timeout as a time.Duration.
// Panics if the configuration is invalid (should be caught by validation).
func (v *VRouterConfig) GetRequestTimeout() time.Duration {
	return mustParseDuration(v.RequestTimeout)
}

// AttachConfig tunes the attach sequence.
type AttachConfig struct {
	// SettleDelay is waited after the peer link enters the container and
	// before the port is registered. Duration string. Default: 0s.
	SettleDelay string `json:"settle_delay"`

	// DHCPClient is run inside the container as "<dhcp_client> <ifname>".
	// Default: dhclient.
	DHCPClient string `json:"dhcp_client"`
}

// GetSettleDelay returns the settle delay as a time.Duration.
func (a *AttachConfig) GetSettleDelay() time.Duration {
	return mustParseDuration(a.SettleDelay)
}

// mustParseDuration parses a duration string, panicking on error.
// This is safe because validation should have already verified the format.
func mustParseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("invalid duration %q: %v (config validation should have caught this)", s, err))
	}
	return d
}

// PathsConfig defines filesystem paths for vifd
type PathsConfig struct {
	StateDir string `json:"state_dir"` // Attachment journal directory
	NetnsDir string `json:"netns_dir"` // Named network namespaces
}

// ServerConfig defines the HTTP API listener.
type ServerConfig struct {
	Listen string `json:"listen"`
}

// LogConfig defines logging output.
type LogConfig struct {
	Level  string `json:"level"`  // trace, debug, info, warn, error
	Format string `json:"format"` // text or json
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.Mutex
	errConfig    error
)

// Reset clears the cached global config, forcing the next Get() call to reload.
// This is intended for testing only. Callers must ensure no concurrent Get() calls
// are in progress when calling Reset().
func Reset() {
	configMu.Lock()
	defer configMu.Unlock()
	globalConfig = nil
	errConfig = nil
	configOnce = sync.Once{}
}

// Get returns the global config, loading it on first call.
func Get() (*Config, error) {
	configOnce.Do(func() {
		globalConfig, errConfig = Load()
	})
	return globalConfig, errConfig
}

// Load loads configuration from VIFD_CONFIG env var or /etc/vrouter-vif/config.json.
// Missing files return an error for the caller to handle.
func Load() (*Config, error) {
	configPath := os.Getenv(ConfigEnvVar)
	if configPath == "" {
		configPath = DefaultConfigPath
	}

	return LoadFrom(configPath)
}

// LoadFrom loads configuration from a specific path.
// Returns error if file doesn't exist or is invalid.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s. Please create a config file or set %s environment variable", path, ConfigEnvVar)
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// Decode over the defaults so omitted booleans keep their default value.
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w (ensure it's valid JSON)", path, err)
	}

	// Fields explicitly set to "" fall back to defaults
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}

	return cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Docker: DockerConfig{
			HostURL:        "unix:///var/run/docker.sock",
			PrivilegedExec: true,
		},
		VRouter: VRouterConfig{
			AgentURL:       "http://127.0.0.1:9091",
			RequestTimeout: "10s",
		},
		Attach: AttachConfig{
			SettleDelay: "0s",
			DHCPClient:  "dhclient",
		},
		Paths: PathsConfig{
			StateDir: "/var/lib/vrouter-vif",
			NetnsDir: "/var/run/netns",
		},
		Server: ServerConfig{
			Listen: "127.0.0.1:9790",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// applyDefaults fills in default values for any empty fields
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Docker.HostURL == "" {
		c.Docker.HostURL = defaults.Docker.HostURL
	}

	if c.VRouter.AgentURL == "" {
		c.VRouter.AgentURL = defaults.VRouter.AgentURL
	}
	if c.VRouter.RequestTimeout == "" {
		c.VRouter.RequestTimeout = defaults.VRouter.RequestTimeout
	}

	if c.Attach.SettleDelay == "" {
		c.Attach.SettleDelay = defaults.Attach.SettleDelay
	}
	if c.Attach.DHCPClient == "" {
		c.Attach.DHCPClient = defaults.Attach.DHCPClient
	}

	if c.Paths.StateDir == "" {
		c.Paths.StateDir = defaults.Paths.StateDir
	}
	if c.Paths.NetnsDir == "" {
		c.Paths.NetnsDir = defaults.Paths.NetnsDir
	}

	if c.Server.Listen == "" {
		c.Server.Listen = defaults.Server.Listen
	}

	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
}
