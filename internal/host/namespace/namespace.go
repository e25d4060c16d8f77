// Package namespace resolves the network namespace of a running container.
package namespace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"
	"github.com/vishvananda/netns"
)

// DefaultBasePath is where named network namespaces are bind mounted or linked.
const DefaultBasePath = "/var/run/netns"

// PidLookup returns the init PID of a running container.
type PidLookup interface {
	Pid(ctx context.Context, containerID string) (int, error)
}

// Handle is an open container network namespace.
type Handle struct {
	netns.NsHandle

	// Path is the namespace file the handle was opened from.
	Path string
}

// ValidateContainerID rejects ids that cannot name a single entry under the
// named namespace directory.
func ValidateContainerID(containerID string) error {
	switch {
	case containerID == "":
		return fmt.Errorf("container id is empty: %w", errdefs.ErrInvalidArgument)
	case containerID == "." || containerID == "..":
		return fmt.Errorf("container id %q is not a valid name: %w", containerID, errdefs.ErrInvalidArgument)
	case strings.ContainsAny(containerID, "/\x00"):
		return fmt.Errorf("container id %q contains a path separator: %w", containerID, errdefs.ErrInvalidArgument)
	}
	return nil
}

// Resolver opens container network namespaces.
type Resolver struct {
	basePath string
	pids     PidLookup
}

// NewResolver creates a resolver that prefers named namespaces under basePath
// and falls back to the container's init PID.
func NewResolver(basePath string, pids PidLookup) *Resolver {
	if basePath == "" {
		basePath = DefaultBasePath
	}
	return &Resolver{basePath: basePath, pids: pids}
}

// Path returns the named namespace path for a container.
func (r *Resolver) Path(containerID string) string {
	return filepath.Join(r.basePath, containerID)
}

// Exists checks if a named namespace exists for the container.
func (r *Resolver) Exists(containerID string) bool {
	_, err := os.Stat(r.Path(containerID))
	return err == nil
}

// Open returns a handle to the container's network namespace.
// The caller must close the handle.
func (r *Resolver) Open(ctx context.Context, containerID string) (*Handle, error) {
	if err := ValidateContainerID(containerID); err != nil {
		return nil, err
	}

	if path := r.Path(containerID); r.Exists(containerID) {
		ns, err := netns.GetFromPath(path)
		if err == nil {
			return &Handle{NsHandle: ns, Path: path}, nil
		}
		log.G(ctx).WithError(err).WithField("container", containerID).
			Warn("named netns exists but could not be opened, falling back to container pid")
	}

	if r.pids == nil {
		return nil, fmt.Errorf("netns for container %s: %w", containerID, errdefs.ErrNotFound)
	}

	pid, err := r.pids.Pid(ctx, containerID)
	if err != nil {
		return nil, fmt.Errorf("lookup pid of container %s: %w", containerID, err)
	}
	if pid <= 0 {
		return nil, fmt.Errorf("container %s is not running: %w", containerID, errdefs.ErrFailedPrecondition)
	}

	path := fmt.Sprintf("/proc/%d/ns/net", pid)
	ns, err := netns.GetFromPath(path)
	if err != nil {
		return nil, fmt.Errorf("open netns of pid %d: %w", pid, err)
	}
	return &Handle{NsHandle: ns, Path: path}, nil
}
