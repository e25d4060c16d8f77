// Package runtime defines the container runtime capabilities the attachment
// driver depends on.
package runtime

import (
	"context"
	"fmt"
	"strings"
)

// Runtime executes commands inside running containers.
type Runtime interface {
	// Exec runs a shell-style command line inside the container and returns
	// an error unless it exits zero.
	Exec(ctx context.Context, containerID, command string) error

	// Pid returns the host PID of the container's init process.
	Pid(ctx context.Context, containerID string) (int, error)
}

// ExecError reports a command that ran but exited non-zero.
type ExecError struct {
	ContainerID string
	Command     string
	ExitCode    int
	Output      string
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("exec %q in container %s: exit code %d", e.Command, e.ContainerID, e.ExitCode)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}
