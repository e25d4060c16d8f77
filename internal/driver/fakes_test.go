package driver

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/containerd/errdefs"
	"github.com/vishvananda/netns"

	"github.com/spin-stack/vrouter-vif/internal/host/namespace"
	"github.com/spin-stack/vrouter-vif/internal/vif"
)

// recorder is a shared, ordered call log across all fakes.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// fakeLinks models host and container links. Links moved into a namespace
// are tracked in inNS.
type fakeLinks struct {
	rec  *recorder
	mu   sync.Mutex
	host map[string]bool
	inNS map[string]bool
	up   map[string]bool
	macs map[string]string
	fail map[string]error // keyed by operation name
}

func newFakeLinks(rec *recorder) *fakeLinks {
	return &fakeLinks{
		rec:  rec,
		host: map[string]bool{},
		inNS: map[string]bool{},
		up:   map[string]bool{},
		macs: map[string]string{},
		fail: map[string]error{},
	}
}

func (f *fakeLinks) Exists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail["exists"]; err != nil {
		return false, err
	}
	return f.host[name], nil
}

func (f *fakeLinks) AddVethPair(ctx context.Context, name, peer string) error {
	f.rec.add("link add %s %s", name, peer)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail["add"]; err != nil {
		return err
	}
	if f.host[name] || f.host[peer] {
		return fmt.Errorf("link %s: %w", name, errdefs.ErrAlreadyExists)
	}
	f.host[name], f.host[peer] = true, true
	return nil
}

func (f *fakeLinks) SetHardwareAddr(ctx context.Context, name string, mac net.HardwareAddr) error {
	f.rec.add("link set %s address %s", name, mac)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail["address"]; err != nil {
		return err
	}
	if !f.host[name] {
		return fmt.Errorf("link %s: %w", name, errdefs.ErrNotFound)
	}
	f.macs[name] = mac.String()
	return nil
}

func (f *fakeLinks) SetUp(ctx context.Context, name string) error {
	f.rec.add("link set %s up", name)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail["up"]; err != nil {
		return err
	}
	f.up[name] = true
	return nil
}

func (f *fakeLinks) SetDown(ctx context.Context, name string) error {
	f.rec.add("link set %s down", name)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail["down"]; err != nil {
		return err
	}
	delete(f.up, name)
	return nil
}

// Delete removes a link and, as with a veth pair, its peer.
func (f *fakeLinks) Delete(ctx context.Context, name string) error {
	f.rec.add("link del %s", name)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail["delete"]; err != nil {
		return err
	}
	if !f.host[name] {
		return fmt.Errorf("link %s: %w", name, errdefs.ErrNotFound)
	}
	delete(f.host, name)
	if strings.HasPrefix(name, "veth") {
		peer := "ns" + strings.TrimPrefix(name, "veth")
		delete(f.host, peer)
		delete(f.inNS, peer)
	}
	return nil
}

func (f *fakeLinks) MoveToNamespace(ctx context.Context, name string, ns netns.NsHandle) error {
	f.rec.add("link set %s netns", name)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail["move"]; err != nil {
		return err
	}
	if !f.host[name] {
		return fmt.Errorf("link %s: %w", name, errdefs.ErrNotFound)
	}
	delete(f.host, name)
	f.inNS[name] = true
	return nil
}

func (f *fakeLinks) MoveToHost(ctx context.Context, ns netns.NsHandle, name string) error {
	f.rec.add("link set %s host", name)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail["move-host"]; err != nil {
		return err
	}
	if !f.inNS[name] {
		return fmt.Errorf("link %s: %w", name, errdefs.ErrNotFound)
	}
	delete(f.inNS, name)
	f.host[name] = true
	return nil
}

func (f *fakeLinks) hostHas(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.host[name]
}

func (f *fakeLinks) nsHas(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inNS[name]
}

type fakeNamespaces struct {
	path   string
	err    error
	opened []string
}

func (f *fakeNamespaces) Open(ctx context.Context, containerID string) (*namespace.Handle, error) {
	f.opened = append(f.opened, containerID)
	if f.err != nil {
		return nil, f.err
	}
	return &namespace.Handle{NsHandle: netns.None(), Path: f.path}, nil
}

// fakeRuntime applies in-container renames to the fake link table so
// rollback can be observed.
type fakeRuntime struct {
	rec   *recorder
	links *fakeLinks
	fail  map[string]error // keyed by command prefix
}

func (f *fakeRuntime) Exec(ctx context.Context, containerID, command string) error {
	f.rec.add("exec %s", command)
	for prefix, err := range f.fail {
		if strings.HasPrefix(command, prefix) {
			return err
		}
	}

	var from, to string
	if _, err := fmt.Sscanf(command, "ip link set dev %s name %s", &from, &to); err == nil && f.links != nil {
		f.links.mu.Lock()
		if f.links.inNS[from] {
			delete(f.links.inNS, from)
			f.links.inNS[to] = true
		}
		f.links.mu.Unlock()
	}
	return nil
}

func (f *fakeRuntime) Pid(ctx context.Context, containerID string) (int, error) {
	return 0, errdefs.ErrNotImplemented
}

type fakePorts struct {
	rec       *recorder
	addOK     bool
	addErr    error
	deleteErr error
	params    vif.AttachmentParameters
}

func (f *fakePorts) AddPort(ctx context.Context, instanceID, vifID, hostDevice, mac string, params vif.AttachmentParameters) (bool, error) {
	f.rec.add("port add %s %s", vifID, hostDevice)
	f.params = params
	return f.addOK, f.addErr
}

func (f *fakePorts) DeletePort(ctx context.Context, vifID string) error {
	f.rec.add("port del %s", vifID)
	return f.deleteErr
}
