package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// Validate validates the entire configuration.
func (c *Config) Validate() error {
	if err := c.validateDocker(); err != nil {
		return fmt.Errorf("docker: %w", err)
	}
	if err := c.validateVRouter(); err != nil {
		return fmt.Errorf("vrouter: %w", err)
	}
	if err := c.validateAttach(); err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	if err := c.validatePaths(); err != nil {
		return fmt.Errorf("paths: %w", err)
	}
	if err := c.validateServer(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.validateLog(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

func (c *Config) validateDocker() error {
	u, err := url.Parse(c.Docker.HostURL)
	if err != nil {
		return fmt.Errorf("host_url: %w", err)
	}
	switch u.Scheme {
	case "unix", "tcp", "http", "https":
	default:
		return fmt.Errorf("host_url: unsupported scheme %q (want unix, tcp, http or https)", u.Scheme)
	}

	if (c.Docker.CertFile == "") != (c.Docker.KeyFile == "") {
		return fmt.Errorf("cert_file and key_file must be set together")
	}
	for _, f := range []struct{ name, path string }{
		{"ca_file", c.Docker.CAFile},
		{"cert_file", c.Docker.CertFile},
		{"key_file", c.Docker.KeyFile},
	} {
		if f.path == "" {
			continue
		}
		if err := validateFileExists(f.path, f.name); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateVRouter() error {
	u, err := url.Parse(c.VRouter.AgentURL)
	if err != nil {
		return fmt.Errorf("agent_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("agent_url: scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("agent_url: missing host")
	}

	d, err := time.ParseDuration(c.VRouter.RequestTimeout)
	if err != nil {
		return fmt.Errorf("request_timeout: invalid duration %q", c.VRouter.RequestTimeout)
	}
	if d <= 0 {
		return fmt.Errorf("request_timeout: must be positive, got %s", d)
	}
	if d > time.Hour {
		return fmt.Errorf("request_timeout: too large (%s), max is 1h", d)
	}
	return nil
}

func (c *Config) validateAttach() error {
	d, err := time.ParseDuration(c.Attach.SettleDelay)
	if err != nil {
		return fmt.Errorf("settle_delay: invalid duration %q", c.Attach.SettleDelay)
	}
	if d < 0 {
		return fmt.Errorf("settle_delay: must not be negative, got %s", d)
	}
	if d > 5*time.Minute {
		return fmt.Errorf("settle_delay: too large (%s), max is 5m", d)
	}

	if strings.TrimSpace(c.Attach.DHCPClient) == "" {
		return fmt.Errorf("dhcp_client cannot be empty")
	}
	// The client runs inside sh -c "..."; a double quote would end the script.
	if strings.ContainsAny(c.Attach.DHCPClient, `"\`) {
		return fmt.Errorf("dhcp_client must not contain quotes or backslashes: %q", c.Attach.DHCPClient)
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.StateDir == "" {
		return fmt.Errorf("state_dir cannot be empty")
	}
	if err := ensureDirWritable(c.Paths.StateDir, "state_dir"); err != nil {
		return err
	}
	if c.Paths.NetnsDir == "" {
		return fmt.Errorf("netns_dir cannot be empty")
	}
	if !filepath.IsAbs(c.Paths.NetnsDir) {
		return fmt.Errorf("netns_dir: must be absolute, got %s", c.Paths.NetnsDir)
	}
	return nil
}

func (c *Config) validateServer() error {
	if _, _, err := net.SplitHostPort(c.Server.Listen); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

func (c *Config) validateLog() error {
	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic":
	default:
		return fmt.Errorf("level: unknown level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("format must be \"text\" or \"json\", got %q", c.Log.Format)
	}
	return nil
}

// Helper functions

func canonicalizePath(path string) (string, error) {
	cleaned := filepath.Clean(path)
	resolved, err := filepath.EvalSymlinks(cleaned)
	if err == nil {
		return resolved, nil
	}
	if os.IsNotExist(err) {
		return cleaned, nil
	}
	return "", fmt.Errorf("failed to resolve path %s: %w", path, err)
}

func validateFileExists(path, name string) error {
	canonical, err := canonicalizePath(path)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	info, err := os.Stat(canonical)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: file not found: %s", name, canonical)
		}
		return fmt.Errorf("%s: cannot access: %w", name, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s: is a directory: %s", name, canonical)
	}
	return nil
}

func ensureDirWritable(path, name string) error {
	canonical, err := canonicalizePath(path)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	info, statErr := os.Stat(canonical)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			if err := os.MkdirAll(canonical, 0750); err != nil {
				return fmt.Errorf("%s: cannot create directory %s: %w", name, canonical, err)
			}
		} else {
			return fmt.Errorf("%s: cannot access %s: %w", name, canonical, statErr)
		}
	} else if !info.IsDir() {
		return fmt.Errorf("%s: not a directory: %s", name, canonical)
	}

	if err := unix.Access(canonical, unix.W_OK); err != nil {
		return fmt.Errorf("%s: not writable: %s", name, canonical)
	}
	return nil
}
