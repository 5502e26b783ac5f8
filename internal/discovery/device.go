package discovery

import (
	"fmt"
	"time"
)

// Device represents an SSH-reachable device discovered on the network
type Device struct {
	// Name is the advertised service instance name (e.g., "MikroTik")
	Name string

	// Hostname is the mDNS hostname (e.g., "router.local.")
	Hostname string

	// IP is the IPv4 address (e.g., "192.168.88.1")
	IP string

	// Port is the SSH port (typically 22)
	Port int

	// Metadata contains additional mDNS TXT record data
	Metadata map[string]string

	// DiscoveredAt is when the device was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the device
func (d *Device) String() string {
	return fmt.Sprintf("%s (%s) at %s:%d", d.Name, d.Hostname, d.IP, d.Port)
}

// Addr returns the dialable host:port for the device
func (d *Device) Addr() string {
	return fmt.Sprintf("%s:%d", d.IP, d.Port)
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (d *Device) GetMetadata(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}
