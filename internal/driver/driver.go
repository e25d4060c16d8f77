// Package driver plugs, attaches, and unplugs VIFs for containerized workloads.
//
// Plug creates the host veth pair, Attach moves the peer into the container,
// registers the port with the vrouter agent, and configures the interface,
// and Unplug tears everything down. Plug and Attach undo their own work on
// failure. Calls for the same VIF id are serialized.
package driver

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"
	current "github.com/containernetworking/cni/pkg/types/100"
	"github.com/moby/locker"

	"github.com/spin-stack/vrouter-vif/internal/host/link"
	"github.com/spin-stack/vrouter-vif/internal/host/namespace"
	"github.com/spin-stack/vrouter-vif/internal/runtime"
	"github.com/spin-stack/vrouter-vif/internal/store"
	"github.com/spin-stack/vrouter-vif/internal/undo"
	"github.com/spin-stack/vrouter-vif/internal/vif"
	"github.com/spin-stack/vrouter-vif/internal/vrouter"
)

// DefaultDHCPClient is the DHCP client run inside the container.
const DefaultDHCPClient = "dhclient"

// NamespaceOpener resolves the network namespace of a container.
// The caller closes the returned handle.
type NamespaceOpener interface {
	Open(ctx context.Context, containerID string) (*namespace.Handle, error)
}

// Options configures a Driver.
type Options struct {
	Links      link.Operator
	Namespaces NamespaceOpener
	Runtime    runtime.Runtime
	Ports      vrouter.Client

	// Journal records successful attachments. Optional.
	Journal store.Store[Attachment]

	// SettleDelay is waited after the peer moves into the container and
	// before the port is registered.
	SettleDelay time.Duration

	// DHCPClient defaults to DefaultDHCPClient.
	DHCPClient string

	// Metrics defaults to a fresh set.
	Metrics *Metrics
}

// Driver runs the VIF lifecycle against its collaborators.
type Driver struct {
	links      link.Operator
	namespaces NamespaceOpener
	runtime    runtime.Runtime
	ports      vrouter.Client
	journal    store.Store[Attachment]

	settleDelay time.Duration
	dhcpClient  string

	metrics *Metrics
	locks   *locker.Locker
	now     func() time.Time
}

// New creates a Driver. Links, Namespaces, Runtime, and Ports are required.
func New(opts Options) (*Driver, error) {
	switch {
	case opts.Links == nil:
		return nil, fmt.Errorf("link operator is required: %w", errdefs.ErrInvalidArgument)
	case opts.Namespaces == nil:
		return nil, fmt.Errorf("namespace resolver is required: %w", errdefs.ErrInvalidArgument)
	case opts.Runtime == nil:
		return nil, fmt.Errorf("container runtime is required: %w", errdefs.ErrInvalidArgument)
	case opts.Ports == nil:
		return nil, fmt.Errorf("port client is required: %w", errdefs.ErrInvalidArgument)
	case opts.SettleDelay < 0:
		return nil, fmt.Errorf("settle delay %s is negative: %w", opts.SettleDelay, errdefs.ErrInvalidArgument)
	}

	d := &Driver{
		links:       opts.Links,
		namespaces:  opts.Namespaces,
		runtime:     opts.Runtime,
		ports:       opts.Ports,
		journal:     opts.Journal,
		settleDelay: opts.SettleDelay,
		dhcpClient:  opts.DHCPClient,
		metrics:     opts.Metrics,
		locks:       locker.New(),
		now:         time.Now,
	}
	if d.dhcpClient == "" {
		d.dhcpClient = DefaultDHCPClient
	}
	if d.metrics == nil {
		d.metrics = &Metrics{}
	}
	return d, nil
}

// Metrics returns the driver's live counters.
func (d *Driver) Metrics() *Metrics {
	return d.metrics
}

// Plug creates the host veth pair for v and sets the peer's MAC address.
// If the host end already exists Plug does nothing. On failure the pair is
// removed again and a *SetupError is returned.
func (d *Driver) Plug(ctx context.Context, inst vif.Instance, v vif.VIF) (retErr error) {
	start := time.Now()
	skipped := false
	defer func() {
		d.metrics.RecordPlug(retErr == nil, skipped, time.Since(start))
	}()

	fail := func(msg string, err error) error {
		return &SetupError{Instance: inst, VIFID: v.ID, Msg: msg, Err: err}
	}

	names, err := vif.NamesFor(v.ID, 0)
	if err != nil {
		return fail("derive device names", err)
	}

	d.locks.Lock(v.ID)
	defer d.locks.Unlock(v.ID) //nolint:errcheck

	ctx = log.WithLogger(ctx, log.G(ctx).WithFields(log.Fields{
		"instance": inst.UUID,
		"vif":      v.ID,
		"local":    names.Local,
		"remote":   names.Remote,
	}))

	exists, err := d.links.Exists(ctx, names.Local)
	if err != nil {
		return fail("check host device", err)
	}
	if exists {
		skipped = true
		log.G(ctx).Debug("host device already present, skipping plug")
		return nil
	}

	u := undo.New()

	if err := d.links.AddVethPair(ctx, names.Local, names.Remote); err != nil {
		return d.rollback(ctx, u, fail("create veth pair", err))
	}
	u.Push("delete "+names.Local, func(ctx context.Context) error {
		return d.links.Delete(ctx, names.Local)
	})

	mac, err := net.ParseMAC(v.Address)
	if err != nil {
		return d.rollback(ctx, u, fail("parse vif address", fmt.Errorf("%q: %w: %w", v.Address, err, errdefs.ErrInvalidArgument)))
	}
	if err := d.links.SetHardwareAddr(ctx, names.Remote, mac); err != nil {
		return d.rollback(ctx, u, fail("set peer hardware address", err))
	}

	u.Discard()
	log.G(ctx).WithField("mac", mac.String()).Info("vif plugged")
	return nil
}

// Attach moves the peer of a plugged VIF into the container's network
// namespace, registers the port with the vrouter agent, brings both ends
// up, and starts DHCP inside the container. index selects the interface
// name inside the container. On failure every committed step is undone in
// reverse order and an *AttachError is returned.
func (d *Driver) Attach(ctx context.Context, inst vif.Instance, v vif.VIF, containerID string, index int) (_ *current.Result, retErr error) {
	start := time.Now()
	rejected := false
	defer func() {
		d.metrics.RecordAttach(retErr == nil, rejected, time.Since(start))
	}()

	fail := func(msg string, err error) error {
		return &AttachError{Instance: inst, VIFID: v.ID, ContainerID: containerID, Msg: msg, Err: err}
	}

	if err := namespace.ValidateContainerID(containerID); err != nil {
		return nil, fail("validate request", err)
	}
	names, err := vif.NamesFor(v.ID, index)
	if err != nil {
		return nil, fail("derive device names", err)
	}
	params := vif.ResolveParameters(inst, v.Network)

	d.locks.Lock(v.ID)
	defer d.locks.Unlock(v.ID) //nolint:errcheck

	ctx = log.WithLogger(ctx, log.G(ctx).WithFields(log.Fields{
		"instance":  inst.UUID,
		"vif":       v.ID,
		"container": containerID,
		"local":     names.Local,
		"remote":    names.Remote,
		"renamed":   names.Renamed,
	}))

	ns, err := d.namespaces.Open(ctx, containerID)
	if err != nil {
		return nil, fail("resolve container namespace", err)
	}
	// Deferred so the handle outlives any rollback below.
	defer ns.Close()

	u := undo.New()

	if err := d.links.MoveToNamespace(ctx, names.Remote, ns.NsHandle); err != nil {
		return nil, d.rollback(ctx, u, fail("move peer into container", err))
	}
	u.Push("move "+names.Remote+" to host", func(ctx context.Context) error {
		return d.links.MoveToHost(ctx, ns.NsHandle, names.Remote)
	})

	if err := d.settle(ctx); err != nil {
		return nil, d.rollback(ctx, u, fail("wait for namespace to settle", err))
	}

	ok, err := d.ports.AddPort(ctx, inst.UUID, v.ID, names.Local, v.Address, params)
	if err != nil {
		return nil, d.rollback(ctx, u, fail("register port", err))
	}
	if !ok {
		rejected = true
		return nil, d.rollback(ctx, u, fail("register port", ErrPortRejected))
	}
	u.Push("delete port "+v.ID, func(ctx context.Context) error {
		return d.ports.DeletePort(ctx, v.ID)
	})

	if err := d.links.SetUp(ctx, names.Local); err != nil {
		return nil, d.rollback(ctx, u, fail("bring up host device", err))
	}
	u.Push("set "+names.Local+" down", func(ctx context.Context) error {
		return d.links.SetDown(ctx, names.Local)
	})

	if err := d.exec(ctx, containerID, "ip link set dev %s name %s", names.Remote, names.Renamed); err != nil {
		return nil, d.rollback(ctx, u, fail("rename container interface", err))
	}
	u.Push("rename "+names.Renamed+" to "+names.Remote, func(ctx context.Context) error {
		return d.exec(ctx, containerID, "ip link set dev %s name %s", names.Renamed, names.Remote)
	})

	if err := d.exec(ctx, containerID, "ip link set dev %s up", names.Renamed); err != nil {
		return nil, d.rollback(ctx, u, fail("bring up container interface", err))
	}
	u.Push("set "+names.Renamed+" down", func(ctx context.Context) error {
		return d.exec(ctx, containerID, "ip link set dev %s down", names.Renamed)
	})

	if err := d.exec(ctx, containerID, `/bin/sh -c "%s %s"`, d.dhcpClient, names.Renamed); err != nil {
		return nil, d.rollback(ctx, u, fail("start dhcp client", err))
	}

	u.Discard()

	result := buildResult(names, v.Address, ns.Path, params)
	d.record(ctx, &Attachment{
		VIFID:        v.ID,
		InstanceUUID: inst.UUID,
		ContainerID:  containerID,
		Index:        index,
		Devices:      names,
		Result:       result,
		AttachedAt:   d.now().UTC(),
	})

	log.G(ctx).WithFields(log.Fields{
		"ipv4": params.IPv4Address,
		"ipv6": params.IPv6Address,
	}).Info("vif attached")
	return result, nil
}

// Unplug deregisters the port and removes the host device. Each step runs
// regardless of the other's outcome; failures are logged and Unplug always
// returns nil.
func (d *Driver) Unplug(ctx context.Context, inst vif.Instance, v vif.VIF) error {
	start := time.Now()
	var portFailed, linkFailed bool
	defer func() {
		d.metrics.RecordUnplug(portFailed, linkFailed, time.Since(start))
	}()

	ctx = log.WithLogger(ctx, log.G(ctx).WithFields(log.Fields{
		"instance": inst.UUID,
		"vif":      v.ID,
	}))

	names, err := vif.NamesFor(v.ID, 0)
	if err != nil {
		portFailed, linkFailed = true, true
		log.G(ctx).WithError(err).Warn("unplug: cannot derive device names")
		return nil
	}

	d.locks.Lock(v.ID)
	defer d.locks.Unlock(v.ID) //nolint:errcheck

	if err := d.ports.DeletePort(ctx, v.ID); err != nil {
		if errdefs.IsNotFound(err) {
			log.G(ctx).Debug("unplug: port already deregistered")
		} else {
			portFailed = true
			log.G(ctx).WithError(err).Warn("unplug: failed to delete port")
		}
	}

	if err := d.links.Delete(ctx, names.Local); err != nil {
		if errdefs.IsNotFound(err) {
			log.G(ctx).WithField("local", names.Local).Debug("unplug: host device already gone")
		} else {
			linkFailed = true
			log.G(ctx).WithError(err).WithField("local", names.Local).Warn("unplug: failed to delete host device")
		}
	}

	if d.journal != nil {
		if err := d.journal.Delete(ctx, v.ID); err != nil {
			log.G(ctx).WithError(err).Warn("unplug: failed to remove attachment record")
		}
	}

	log.G(ctx).Info("vif unplugged")
	return nil
}

// Attachment returns the journal record for a VIF.
func (d *Driver) Attachment(ctx context.Context, vifID string) (*Attachment, error) {
	if d.journal == nil {
		return nil, fmt.Errorf("attachment %s: %w", vifID, errdefs.ErrNotFound)
	}
	return d.journal.Get(ctx, vifID)
}

// Attachments returns all journal records ordered by VIF id.
func (d *Driver) Attachments(ctx context.Context) ([]*Attachment, error) {
	out := []*Attachment{}
	if d.journal == nil {
		return out, nil
	}
	err := d.journal.Scan(ctx, "", func(_ string, a *Attachment) error {
		out = append(out, a)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// rollback undoes every committed step and returns cause unchanged.
// Compensations run even if ctx has been cancelled.
func (d *Driver) rollback(ctx context.Context, u *undo.Log, cause error) error {
	if u.Len() == 0 {
		return cause
	}
	log.G(ctx).WithError(cause).WithField("actions", u.Len()).Warn("rolling back")
	return u.RollbackAndWrap(context.WithoutCancel(ctx), cause, func(cause error, res *undo.Result) error {
		d.metrics.RecordRollback(len(res.Errors))
		return cause
	})
}

func (d *Driver) settle(ctx context.Context) error {
	if d.settleDelay <= 0 {
		return nil
	}
	t := time.NewTimer(d.settleDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (d *Driver) exec(ctx context.Context, containerID, format string, args ...any) error {
	return d.runtime.Exec(ctx, containerID, fmt.Sprintf(format, args...))
}

func (d *Driver) record(ctx context.Context, a *Attachment) {
	if d.journal == nil {
		return
	}
	if err := d.journal.Set(ctx, a.VIFID, a); err != nil {
		log.G(ctx).WithError(err).Warn("failed to record attachment")
	}
}
