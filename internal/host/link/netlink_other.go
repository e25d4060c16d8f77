//go:build !linux

package link

import (
	"fmt"

	"github.com/containerd/errdefs"
)

// NewOperator returns an error on platforms without netlink.
func NewOperator() (Operator, error) {
	return nil, fmt.Errorf("link operations: %w", errdefs.ErrNotImplemented)
}
