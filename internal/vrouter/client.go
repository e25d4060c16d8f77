// Package vrouter registers container ports with the vrouter agent.
package vrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"

	"github.com/spin-stack/vrouter-vif/internal/vif"
)

// Client is the control plane contract used by the attachment driver.
type Client interface {
	// AddPort registers a port. A false result with a nil error means the
	// agent answered but did not accept the port.
	AddPort(ctx context.Context, instanceID, vifID, hostDevice, mac string, params vif.AttachmentParameters) (bool, error)

	// DeletePort removes a port registration.
	DeletePort(ctx context.Context, vifID string) error
}

const (
	// DefaultAgentURL is the vrouter agent's local port API.
	DefaultAgentURL = "http://127.0.0.1:9091"

	// DefaultTimeout bounds a single agent request.
	DefaultTimeout = 10 * time.Second

	portTypeVM        = 0
	portTypeNamespace = 1
	noVLAN            = -1
	author            = "vrouter-vif"
)

// Config configures the agent client.
type Config struct {
	AgentURL string
	Timeout  time.Duration
}

// HTTPClient talks to the vrouter agent port API over HTTP.
type HTTPClient struct {
	base *url.URL
	http *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient validates cfg and returns a client.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	raw := cfg.AgentURL
	if raw == "" {
		raw = DefaultAgentURL
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse agent url %q: %w", raw, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("agent url %q: unsupported scheme: %w", raw, errdefs.ErrInvalidArgument)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		base: base,
		http: &http.Client{Timeout: timeout},
	}, nil
}

// portRequest is the agent's port registration body.
type portRequest struct {
	ID          string `json:"id"`
	InstanceID  string `json:"instance-id"`
	DisplayName string `json:"display-name"`
	VMName      string `json:"vm-name"`
	Hostname    string `json:"hostname"`
	Host        string `json:"host"`
	IPAddress   string `json:"ip-address"`
	IP6Address  string `json:"ip6-address,omitempty"`
	VNID        string `json:"vn-id"`
	ProjectID   string `json:"vm-project-id"`
	MACAddress  string `json:"mac-address"`
	SystemName  string `json:"system-name"`
	Type        int    `json:"type"`
	RxVLANID    int    `json:"rx-vlan-id"`
	TxVLANID    int    `json:"tx-vlan-id"`
	Author      string `json:"author"`
	Time        string `json:"time"`
}

func portType(tag string) int {
	if tag == "NameSpacePort" {
		return portTypeNamespace
	}
	return portTypeVM
}

// AddPort posts a port registration to the agent.
func (c *HTTPClient) AddPort(ctx context.Context, instanceID, vifID, hostDevice, mac string, params vif.AttachmentParameters) (bool, error) {
	body, err := json.Marshal(portRequest{
		ID:          vifID,
		InstanceID:  instanceID,
		DisplayName: params.DisplayName,
		VMName:      params.DisplayName,
		Hostname:    params.Hostname,
		Host:        params.Host,
		IPAddress:   params.IPv4Address,
		IP6Address:  params.IPv6Address,
		VNID:        params.NetworkID,
		ProjectID:   params.ProjectID,
		MACAddress:  mac,
		SystemName:  hostDevice,
		Type:        portType(params.PortType),
		RxVLANID:    noVLAN,
		TxVLANID:    noVLAN,
		Author:      author,
		Time:        time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return false, fmt.Errorf("marshal port request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("port"), bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build add port request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("add port %s: %w: %w", vifID, errdefs.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		log.G(ctx).WithFields(log.Fields{
			"vif":    vifID,
			"status": resp.StatusCode,
			"body":   readSnippet(resp.Body),
		}).Warn("vrouter agent rejected port")
		return false, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return true, nil
}

// DeletePort removes a port registration from the agent.
func (c *HTTPClient) DeletePort(ctx context.Context, vifID string) error {
	target, err := c.portURL(vifID)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target, nil)
	if err != nil {
		return fmt.Errorf("build delete port request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("delete port %s: %w: %w", vifID, errdefs.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode/100 == 2:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("delete port %s: %w", vifID, errdefs.ErrNotFound)
	default:
		return fmt.Errorf("delete port %s: agent returned %d: %s", vifID, resp.StatusCode, readSnippet(resp.Body))
	}
}

func (c *HTTPClient) endpoint(elem ...string) string {
	return c.base.JoinPath(elem...).String()
}

// portURL addresses one port. The id is escaped as a single path segment;
// JoinPath would clean dot segments and split on slashes.
func (c *HTTPClient) portURL(vifID string) (string, error) {
	switch vifID {
	case "", ".", "..":
		return "", fmt.Errorf("port id %q: %w", vifID, errdefs.ErrInvalidArgument)
	}
	u := c.base.JoinPath("port")
	prefix := u.EscapedPath()
	u.Path += "/" + vifID
	u.RawPath = prefix + "/" + url.PathEscape(vifID)
	return u.String(), nil
}

// readSnippet returns the start of a response body for diagnostics.
func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}
