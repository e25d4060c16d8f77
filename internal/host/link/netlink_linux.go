//go:build linux

package link

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"
)

// netlinkOperator implements Operator on a netlink handle bound to the host namespace.
type netlinkOperator struct {
	handle *netlink.Handle
	hostNS netns.NsHandle
}

// NewOperator opens a netlink handle in the current process namespace.
func NewOperator() (Operator, error) {
	hostNS, err := netns.GetFromPid(os.Getpid())
	if err != nil {
		return nil, fmt.Errorf("get host netns: %w", err)
	}
	h, err := netlink.NewHandleAt(hostNS)
	if err != nil {
		hostNS.Close()
		return nil, fmt.Errorf("open netlink handle: %w", err)
	}
	return &netlinkOperator{handle: h, hostNS: hostNS}, nil
}

func (o *netlinkOperator) Exists(ctx context.Context, name string) (bool, error) {
	_, err := o.handle.LinkByName(name)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, classify("lookup", name, err)
}

func (o *netlinkOperator) AddVethPair(ctx context.Context, name, peer string) error {
	veth := &netlink.Veth{
		LinkAttrs: netlink.LinkAttrs{Name: name},
		PeerName:  peer,
	}
	if err := o.handle.LinkAdd(veth); err != nil {
		return classify("add veth", name, err)
	}
	log.G(ctx).WithFields(log.Fields{
		"link": name,
		"peer": peer,
	}).Debug("veth pair created")
	return nil
}

func (o *netlinkOperator) SetHardwareAddr(ctx context.Context, name string, mac net.HardwareAddr) error {
	l, err := o.handle.LinkByName(name)
	if err != nil {
		return classify("lookup", name, err)
	}
	if err := o.handle.LinkSetHardwareAddr(l, mac); err != nil {
		return classify("set address", name, err)
	}
	return nil
}

func (o *netlinkOperator) SetUp(ctx context.Context, name string) error {
	l, err := o.handle.LinkByName(name)
	if err != nil {
		return classify("lookup", name, err)
	}
	if err := o.handle.LinkSetUp(l); err != nil {
		return classify("set up", name, err)
	}
	return nil
}

func (o *netlinkOperator) SetDown(ctx context.Context, name string) error {
	l, err := o.handle.LinkByName(name)
	if err != nil {
		return classify("lookup", name, err)
	}
	if err := o.handle.LinkSetDown(l); err != nil {
		return classify("set down", name, err)
	}
	return nil
}

func (o *netlinkOperator) Delete(ctx context.Context, name string) error {
	l, err := o.handle.LinkByName(name)
	if err != nil {
		return classify("lookup", name, err)
	}
	if err := o.handle.LinkDel(l); err != nil {
		return classify("delete", name, err)
	}
	log.G(ctx).WithField("link", name).Debug("link deleted")
	return nil
}

func (o *netlinkOperator) MoveToNamespace(ctx context.Context, name string, ns netns.NsHandle) error {
	l, err := o.handle.LinkByName(name)
	if err != nil {
		return classify("lookup", name, err)
	}
	if err := o.handle.LinkSetNsFd(l, int(ns)); err != nil {
		return classify("set netns", name, err)
	}
	return nil
}

func (o *netlinkOperator) MoveToHost(ctx context.Context, ns netns.NsHandle, name string) error {
	h, err := netlink.NewHandleAt(ns)
	if err != nil {
		return fmt.Errorf("open netlink handle in container netns: %w", err)
	}
	defer h.Close()

	l, err := h.LinkByName(name)
	if err != nil {
		return classify("lookup in container", name, err)
	}
	if err := h.LinkSetNsFd(l, int(o.hostNS)); err != nil {
		return classify("return to host netns", name, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nf netlink.LinkNotFoundError
	return errors.As(err, &nf) || errors.Is(err, unix.ENODEV)
}

// classify wraps a netlink error with an errdefs category so callers can
// use errdefs.IsNotFound and errdefs.IsAlreadyExists.
func classify(op, name string, err error) error {
	switch {
	case isNotFound(err):
		return fmt.Errorf("%s %s: %w: %w", op, name, errdefs.ErrNotFound, err)
	case errors.Is(err, unix.EEXIST):
		return fmt.Errorf("%s %s: %w: %w", op, name, errdefs.ErrAlreadyExists, err)
	case errors.Is(err, unix.EINVAL), errors.Is(err, unix.ERANGE):
		return fmt.Errorf("%s %s: %w: %w", op, name, errdefs.ErrInvalidArgument, err)
	case errors.Is(err, unix.EPERM):
		return fmt.Errorf("%s %s: %w: %w", op, name, errdefs.ErrPermissionDenied, err)
	default:
		return fmt.Errorf("%s %s: %w", op, name, err)
	}
}
