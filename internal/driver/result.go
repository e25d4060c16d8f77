package driver

import (
	"net"
	"strings"
	"time"

	current "github.com/containernetworking/cni/pkg/types/100"

	"github.com/spin-stack/vrouter-vif/internal/vif"
)

// Attachment is the journal record written after a successful Attach.
// It is informational only; the lifecycle never reads it back.
type Attachment struct {
	VIFID        string          `json:"vif_id"`
	InstanceUUID string          `json:"instance_uuid"`
	ContainerID  string          `json:"container_id"`
	Index        int             `json:"index"`
	Devices      vif.DeviceNames `json:"devices"`
	Result       *current.Result `json:"result"`
	AttachedAt   time.Time       `json:"attached_at"`
}

// buildResult describes an attachment in CNI 1.x result form: the host end
// first, then the container end, with resolved addresses pinned to the
// container interface.
func buildResult(names vif.DeviceNames, mac string, sandbox string, params vif.AttachmentParameters) *current.Result {
	result := &current.Result{
		CNIVersion: current.ImplementedSpecVersion,
		Interfaces: []*current.Interface{
			{Name: names.Local},
			{Name: names.Renamed, Mac: mac, Sandbox: sandbox},
		},
	}

	const containerIface = 1
	for _, addr := range []string{params.IPv4Address, params.IPv6Address} {
		ipnet := parseAddress(addr)
		if ipnet == nil {
			continue
		}
		result.IPs = append(result.IPs, &current.IPConfig{
			Interface: current.Int(containerIface),
			Address:   *ipnet,
		})
	}
	return result
}

// parseAddress accepts a bare address or CIDR. Unparseable, empty, and
// unspecified addresses yield nil.
func parseAddress(addr string) *net.IPNet {
	if addr == "" {
		return nil
	}
	if strings.Contains(addr, "/") {
		ip, ipnet, err := net.ParseCIDR(addr)
		if err != nil || ip.IsUnspecified() {
			return nil
		}
		ipnet.IP = ip
		return ipnet
	}

	ip := net.ParseIP(addr)
	if ip == nil || ip.IsUnspecified() {
		return nil
	}
	if v4 := ip.To4(); v4 != nil {
		return &net.IPNet{IP: v4, Mask: net.CIDRMask(32, 32)}
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(128, 128)}
}
