//go:build linux

package link

import (
	"errors"
	"fmt"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		check   func(error) bool
		checkID string
	}{
		{
			name:    "no such device",
			err:     fmt.Errorf("netlink: %w", unix.ENODEV),
			check:   errdefs.IsNotFound,
			checkID: "not found",
		},
		{
			name:    "file exists",
			err:     unix.EEXIST,
			check:   errdefs.IsAlreadyExists,
			checkID: "already exists",
		},
		{
			name:    "invalid",
			err:     unix.EINVAL,
			check:   errdefs.IsInvalidArgument,
			checkID: "invalid argument",
		},
		{
			name:    "not permitted",
			err:     unix.EPERM,
			check:   errdefs.IsPermissionDenied,
			checkID: "permission denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("add veth", "vethabcdef12", tt.err)
			assert.True(t, tt.check(err), "expected %s category, got %v", tt.checkID, err)
			assert.ErrorIs(t, err, tt.err)
			assert.Contains(t, err.Error(), "vethabcdef12")
		})
	}
}

func TestClassifyUnknown(t *testing.T) {
	raw := errors.New("netlink socket closed")
	err := classify("set up", "vethabcdef12", raw)

	assert.ErrorIs(t, err, raw)
	assert.False(t, errdefs.IsNotFound(err))
	assert.False(t, errdefs.IsAlreadyExists(err))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(netlink.LinkNotFoundError{}))
	assert.False(t, isNotFound(unix.EEXIST))
}
