package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

// validConfig returns defaults with a state dir the test can write to.
func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Paths.StateDir = filepath.Join(t.TempDir(), "state")
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Docker.HostURL != "unix:///var/run/docker.sock" {
		t.Errorf("expected default docker host, got %s", cfg.Docker.HostURL)
	}
	if !cfg.Docker.PrivilegedExec {
		t.Error("expected privileged exec by default")
	}
	if cfg.VRouter.AgentURL != "http://127.0.0.1:9091" {
		t.Errorf("expected default agent url, got %s", cfg.VRouter.AgentURL)
	}
	if got := cfg.VRouter.GetRequestTimeout(); got != 10*time.Second {
		t.Errorf("expected request timeout 10s, got %s", got)
	}
	if got := cfg.Attach.GetSettleDelay(); got != 0 {
		t.Errorf("expected no settle delay, got %s", got)
	}
	if cfg.Attach.DHCPClient != "dhclient" {
		t.Errorf("expected dhclient, got %s", cfg.Attach.DHCPClient)
	}
	if cfg.Paths.NetnsDir != "/var/run/netns" {
		t.Errorf("expected /var/run/netns, got %s", cfg.Paths.NetnsDir)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("expected info/text logging, got %s/%s", cfg.Log.Level, cfg.Log.Format)
	}
}

func TestLoadFrom_MissingFile(t *testing.T) {
	_, err := LoadFrom("/nonexistent/path/config.json")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}

	errMsg := err.Error()
	if !strings.Contains(errMsg, "/nonexistent/path/config.json") {
		t.Errorf("error should mention config file path, got: %s", errMsg)
	}
	if !strings.Contains(errMsg, ConfigEnvVar) {
		t.Errorf("error should mention %s, got: %s", ConfigEnvVar, errMsg)
	}
}

func TestLoadFrom_InvalidJSON(t *testing.T) {
	path := writeConfig(t, "{invalid json}")

	_, err := LoadFrom(path)
	if err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
	if !strings.Contains(err.Error(), "failed to parse") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadFrom_PartialConfig(t *testing.T) {
	stateDir := filepath.Join(t.TempDir(), "state")
	path := writeConfig(t, `{
		"vrouter": {"agent_url": "http://10.1.1.1:9091"},
		"attach": {"settle_delay": "2s"},
		"paths": {"state_dir": "`+stateDir+`"},
		"log": {"format": "json"}
	}`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.VRouter.AgentURL != "http://10.1.1.1:9091" {
		t.Errorf("expected custom agent url, got %s", cfg.VRouter.AgentURL)
	}
	if got := cfg.Attach.GetSettleDelay(); got != 2*time.Second {
		t.Errorf("expected settle delay 2s, got %s", got)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("expected json format, got %s", cfg.Log.Format)
	}

	// Omitted fields keep their defaults
	if cfg.VRouter.RequestTimeout != "10s" {
		t.Errorf("expected default request timeout, got %s", cfg.VRouter.RequestTimeout)
	}
	if !cfg.Docker.PrivilegedExec {
		t.Error("expected privileged exec to default to true when omitted")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected default level, got %s", cfg.Log.Level)
	}
	if _, err := os.Stat(stateDir); err != nil {
		t.Errorf("expected state dir to be created: %v", err)
	}
}

func TestLoadFrom_ExplicitFalse(t *testing.T) {
	stateDir := t.TempDir()
	path := writeConfig(t, `{"docker": {"privileged_exec": false}, "paths": {"state_dir": "`+stateDir+`"}}`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Docker.PrivilegedExec {
		t.Error("expected explicit false to be kept")
	}
}

func TestLoadFrom_InvalidValues(t *testing.T) {
	path := writeConfig(t, `{"attach": {"settle_delay": "soon"}, "paths": {"state_dir": "`+t.TempDir()+`"}}`)

	_, err := LoadFrom(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "attach: settle_delay") {
		t.Errorf("error should name the section and field, got: %v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{
		VRouter: VRouterConfig{
			AgentURL: "https://agent:9091",
		},
	}

	cfg.applyDefaults()

	if cfg.VRouter.AgentURL != "https://agent:9091" {
		t.Errorf("expected custom agent url to be preserved, got %s", cfg.VRouter.AgentURL)
	}
	if cfg.VRouter.RequestTimeout != "10s" {
		t.Errorf("expected default request timeout, got %s", cfg.VRouter.RequestTimeout)
	}
	if cfg.Docker.HostURL != "unix:///var/run/docker.sock" {
		t.Errorf("expected default docker host, got %s", cfg.Docker.HostURL)
	}
	if cfg.Attach.DHCPClient != "dhclient" {
		t.Errorf("expected default dhcp client, got %s", cfg.Attach.DHCPClient)
	}
	if cfg.Server.Listen == "" {
		t.Error("expected default listen address")
	}
}

func TestValidate_Default(t *testing.T) {
	if err := validConfig(t).Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		setupFunc func(*Config)
		wantErr   string
	}{
		{
			name:      "docker scheme",
			setupFunc: func(c *Config) { c.Docker.HostURL = "ftp://docker" },
			wantErr:   "docker: host_url",
		},
		{
			name:      "cert without key",
			setupFunc: func(c *Config) { c.Docker.CertFile = "/etc/docker/cert.pem" },
			wantErr:   "set together",
		},
		{
			name:      "missing ca file",
			setupFunc: func(c *Config) { c.Docker.CAFile = "/nonexistent/ca.pem" },
			wantErr:   "ca_file",
		},
		{
			name:      "agent scheme",
			setupFunc: func(c *Config) { c.VRouter.AgentURL = "tcp://127.0.0.1:9091" },
			wantErr:   "vrouter: agent_url",
		},
		{
			name:      "agent host",
			setupFunc: func(c *Config) { c.VRouter.AgentURL = "http://" },
			wantErr:   "missing host",
		},
		{
			name:      "zero request timeout",
			setupFunc: func(c *Config) { c.VRouter.RequestTimeout = "0s" },
			wantErr:   "must be positive",
		},
		{
			name:      "negative settle delay",
			setupFunc: func(c *Config) { c.Attach.SettleDelay = "-1s" },
			wantErr:   "must not be negative",
		},
		{
			name:      "huge settle delay",
			setupFunc: func(c *Config) { c.Attach.SettleDelay = "1h" },
			wantErr:   "too large",
		},
		{
			name:      "quoted dhcp client",
			setupFunc: func(c *Config) { c.Attach.DHCPClient = `dhclient "-v"` },
			wantErr:   "dhcp_client",
		},
		{
			name:      "relative netns dir",
			setupFunc: func(c *Config) { c.Paths.NetnsDir = "run/netns" },
			wantErr:   "must be absolute",
		},
		{
			name:      "listen without port",
			setupFunc: func(c *Config) { c.Server.Listen = "localhost" },
			wantErr:   "server: listen",
		},
		{
			name:      "log level",
			setupFunc: func(c *Config) { c.Log.Level = "loud" },
			wantErr:   "log: level",
		},
		{
			name:      "log format",
			setupFunc: func(c *Config) { c.Log.Format = "xml" },
			wantErr:   "log: format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.setupFunc(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error for %s", tt.name)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestGet_FromEnv(t *testing.T) {
	t.Cleanup(Reset)
	Reset()

	path := writeConfig(t, `{"server": {"listen": "0.0.0.0:9999"}, "paths": {"state_dir": "`+t.TempDir()+`"}}`)
	t.Setenv(ConfigEnvVar, path)

	cfg1, err := Get()
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if cfg1.Server.Listen != "0.0.0.0:9999" {
		t.Errorf("expected listen from env config, got %s", cfg1.Server.Listen)
	}

	cfg2, err := Get()
	if err != nil {
		t.Fatal(err)
	}
	if cfg1 != cfg2 {
		t.Errorf("Get() returned different instances: cfg1=%p cfg2=%p", cfg1, cfg2)
	}

	Reset()
	cfg3, err := Get()
	if err != nil {
		t.Fatal(err)
	}
	if cfg3 == cfg1 {
		t.Error("expected Reset() to force a reload")
	}
}
