// Package docker implements runtime.Runtime on the Docker Engine API.
package docker

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/shlex"

	"github.com/spin-stack/vrouter-vif/internal/runtime"
)

// Config holds the Docker Engine connection settings.
type Config struct {
	// HostURL is tcp://host:port or unix:///path/to/socket.
	HostURL string
	// Insecure skips TLS verification.
	Insecure bool
	CAFile   string
	CertFile string
	KeyFile  string
	// Privileged runs exec'd commands with extended privileges so link
	// changes inside the container are permitted.
	Privileged bool
}

// API is the subset of the Docker client used by Runtime.
type API interface {
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerExecCreate(ctx context.Context, containerID string, options container.ExecOptions) (container.ExecCreateResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, config container.ExecAttachOptions) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error)
	Close() error
}

// Runtime runs commands in Docker containers.
type Runtime struct {
	api        API
	privileged bool
}

var _ runtime.Runtime = (*Runtime)(nil)

// New connects to the Docker Engine described by cfg.
func New(cfg Config) (*Runtime, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.HostURL != "" {
		opts = append(opts, client.WithHost(cfg.HostURL))
	}
	switch {
	case cfg.Insecure:
		opts = append(opts, client.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // explicitly requested by api_insecure
			},
		}))
	case cfg.CAFile != "" || cfg.CertFile != "" || cfg.KeyFile != "":
		opts = append(opts, client.WithTLSClientConfig(cfg.CAFile, cfg.CertFile, cfg.KeyFile))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return NewWithAPI(cli, cfg.Privileged), nil
}

// NewWithAPI wraps an existing Docker API client.
func NewWithAPI(api API, privileged bool) *Runtime {
	return &Runtime{api: api, privileged: privileged}
}

// Close releases the underlying client.
func (r *Runtime) Close() error {
	return r.api.Close()
}

// Pid returns the init PID of a running container.
func (r *Runtime) Pid(ctx context.Context, containerID string) (int, error) {
	info, err := r.api.ContainerInspect(ctx, containerID)
	if err != nil {
		return 0, fmt.Errorf("inspect container %s: %w", containerID, err)
	}
	if info.ContainerJSONBase == nil || info.State == nil || !info.State.Running {
		return 0, fmt.Errorf("container %s is not running: %w", containerID, errdefs.ErrFailedPrecondition)
	}
	return info.State.Pid, nil
}

// Exec splits command with shell quoting rules and runs it in the container.
func (r *Runtime) Exec(ctx context.Context, containerID, command string) error {
	argv, err := shlex.Split(command)
	if err != nil {
		return fmt.Errorf("parse command %q: %w: %w", command, errdefs.ErrInvalidArgument, err)
	}
	if len(argv) == 0 {
		return fmt.Errorf("empty command: %w", errdefs.ErrInvalidArgument)
	}

	created, err := r.api.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          argv,
		Privileged:   r.privileged,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return fmt.Errorf("create exec in container %s: %w", containerID, err)
	}

	// Attaching starts the exec; reading to EOF waits for it to finish.
	hijacked, err := r.api.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return fmt.Errorf("attach exec %s: %w", created.ID, err)
	}
	defer hijacked.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, hijacked.Reader); err != nil {
		return fmt.Errorf("read exec %s output: %w", created.ID, err)
	}

	inspect, err := r.api.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return fmt.Errorf("inspect exec %s: %w", created.ID, err)
	}

	log.G(ctx).WithFields(log.Fields{
		"container": containerID,
		"command":   command,
		"exit_code": inspect.ExitCode,
	}).Debug("exec in container finished")

	if inspect.ExitCode != 0 {
		return &runtime.ExecError{
			ContainerID: containerID,
			Command:     command,
			ExitCode:    inspect.ExitCode,
			Output:      stderr.String() + stdout.String(),
		}
	}
	return nil
}
