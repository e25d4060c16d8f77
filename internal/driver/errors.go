package driver

import (
	"errors"
	"fmt"

	"github.com/spin-stack/vrouter-vif/internal/vif"
)

// Sentinel errors for lifecycle failures.
// Use errors.Is() to check for these error types.
var (
	// ErrNetworkSetupFailed matches every error returned by Plug.
	ErrNetworkSetupFailed = errors.New("network setup failed")

	// ErrNetworkAttachFailed matches every error returned by Attach.
	ErrNetworkAttachFailed = errors.New("network attach failed")

	// ErrPortRejected indicates the control plane answered add-port with a false result.
	ErrPortRejected = errors.New("port registration rejected")
)

// SetupError reports a failed Plug after its own work was rolled back.
type SetupError struct {
	Instance vif.Instance
	VIFID    string
	Msg      string
	Err      error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%s (instance %s, vif %s): %v", e.Msg, instanceLabel(e.Instance), e.VIFID, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

func (e *SetupError) Is(target error) bool {
	return target == ErrNetworkSetupFailed
}

// AttachError reports a failed Attach after its own work was rolled back.
type AttachError struct {
	Instance    vif.Instance
	VIFID       string
	ContainerID string
	Msg         string
	Err         error
}

func (e *AttachError) Error() string {
	return fmt.Sprintf("%s (instance %s, vif %s, container %s): %v",
		e.Msg, instanceLabel(e.Instance), e.VIFID, e.ContainerID, e.Err)
}

func (e *AttachError) Unwrap() error {
	return e.Err
}

func (e *AttachError) Is(target error) bool {
	return target == ErrNetworkAttachFailed
}

func instanceLabel(inst vif.Instance) string {
	if inst.DisplayName == "" {
		return inst.UUID
	}
	return fmt.Sprintf("%s/%s", inst.UUID, inst.DisplayName)
}
