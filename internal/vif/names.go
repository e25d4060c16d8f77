package vif

import (
	"fmt"
	"strconv"

	"github.com/containerd/errdefs"
	"golang.org/x/sys/unix"
)

const (
	// idPrefixLen is how many characters of the VIF id go into device names.
	idPrefixLen = 8

	localPrefix   = "veth"
	remotePrefix  = "ns"
	renamedPrefix = "eth"
)

// DeviceNames are the link names used for one VIF attachment.
type DeviceNames struct {
	// Local is the host-side end of the veth pair.
	Local string
	// Remote is the peer end before it is renamed inside the container.
	Remote string
	// Renamed is the name the peer takes inside the container.
	Renamed string
}

// NamesFor derives the device names for a VIF id and attachment index.
// The same inputs always produce the same names.
func NamesFor(vifID string, index int) (DeviceNames, error) {
	if vifID == "" {
		return DeviceNames{}, fmt.Errorf("vif id is empty: %w", errdefs.ErrInvalidArgument)
	}
	if index < 0 {
		return DeviceNames{}, fmt.Errorf("attachment index %d is negative: %w", index, errdefs.ErrInvalidArgument)
	}

	short := vifID
	if len(short) > idPrefixLen {
		short = short[:idPrefixLen]
	}

	names := DeviceNames{
		Local:   localPrefix + short,
		Remote:  remotePrefix + short,
		Renamed: renamedPrefix + strconv.Itoa(index),
	}
	for _, n := range []string{names.Local, names.Remote, names.Renamed} {
		if len(n) >= unix.IFNAMSIZ {
			return DeviceNames{}, fmt.Errorf("interface name %q exceeds %d bytes: %w", n, unix.IFNAMSIZ-1, errdefs.ErrInvalidArgument)
		}
	}
	return names, nil
}
