// Package link performs host-side network link operations.
package link

import (
	"context"
	"net"

	"github.com/vishvananda/netns"
)

// Operator defines the link operations used to plumb a VIF.
// Names refer to links in the host namespace unless a namespace is given.
type Operator interface {
	// Exists reports whether a host link with the given name exists.
	Exists(ctx context.Context, name string) (bool, error)
	// AddVethPair creates a veth pair on the host.
	AddVethPair(ctx context.Context, name, peer string) error
	// SetHardwareAddr sets the MAC address of a host link.
	SetHardwareAddr(ctx context.Context, name string, mac net.HardwareAddr) error
	// SetUp brings a host link up.
	SetUp(ctx context.Context, name string) error
	// SetDown brings a host link down.
	SetDown(ctx context.Context, name string) error
	// Delete removes a host link. Deleting one end of a veth pair removes both.
	Delete(ctx context.Context, name string) error
	// MoveToNamespace moves a host link into ns.
	MoveToNamespace(ctx context.Context, name string, ns netns.NsHandle) error
	// MoveToHost moves a link that lives in ns back to the host namespace.
	MoveToHost(ctx context.Context, ns netns.NsHandle, name string) error
}
