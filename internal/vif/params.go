package vif

// PortTypeNovaVM is the port type tag sent with every registration.
const PortTypeNovaVM = "NovaVMPort"

// DefaultIPv4 is reported when no subnet carries an IPv4 address.
const DefaultIPv4 = "0.0.0.0"

// AttachmentParameters are the registration parameters for one port.
type AttachmentParameters struct {
	IPv4Address string
	IPv6Address string // empty when unset
	NetworkID   string
	DisplayName string
	Hostname    string
	Host        string
	ProjectID   string
	PortType    string
}

// ResolveAddresses scans the first IP entry of every subnet and returns the
// first IPv4 and IPv6 addresses found. Further entries of a subnet are ignored.
// Addresses are passed through without syntax validation.
func ResolveAddresses(subnets []Subnet) (ipv4, ipv6 string) {
	ipv4 = DefaultIPv4
	var haveV4, haveV6 bool
	for _, s := range subnets {
		if len(s.IPs) == 0 {
			continue
		}
		ip := s.IPs[0]
		if ip.Address == nil {
			continue
		}
		switch ip.Version {
		case 4:
			if !haveV4 {
				ipv4, haveV4 = *ip.Address, true
			}
		case 6:
			if !haveV6 {
				ipv6, haveV6 = *ip.Address, true
			}
		}
	}
	return ipv4, ipv6
}

// ResolveParameters builds the registration parameters for a VIF on an instance.
func ResolveParameters(inst Instance, network Network) AttachmentParameters {
	v4, v6 := ResolveAddresses(network.Subnets)
	return AttachmentParameters{
		IPv4Address: v4,
		IPv6Address: v6,
		NetworkID:   network.ID,
		DisplayName: inst.DisplayName,
		Hostname:    inst.Hostname,
		Host:        inst.Host,
		ProjectID:   inst.ProjectID,
		PortType:    PortTypeNovaVM,
	}
}
