// Package vif describes the workload and virtual interface descriptors consumed
// by the attachment driver, and derives device names and port parameters from them.
package vif

// Instance is the identity of the workload being attached.
type Instance struct {
	UUID        string `json:"uuid"`
	DisplayName string `json:"display_name"`
	Hostname    string `json:"hostname"`
	Host        string `json:"host"`
	ProjectID   string `json:"project_id"`
}

// VIF is a virtual interface as assigned by the compute/network service.
type VIF struct {
	ID      string  `json:"id"`
	Address string  `json:"address"` // MAC
	Network Network `json:"network"`
}

// Network is the overlay network a VIF belongs to.
type Network struct {
	ID      string   `json:"id"`
	Subnets []Subnet `json:"subnets,omitempty"`
}

// Subnet holds the IP assignments of a VIF on one subnet, in assignment order.
type Subnet struct {
	IPs []IP `json:"ips"`
}

// IP is a single address assignment. Address is nil when the assignment
// carries no address yet.
type IP struct {
	Version int     `json:"version"`
	Address *string `json:"address"`
}
