package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func TestScanner_parseServiceEntry(t *testing.T) {
	scanner := NewScanner()

	tests := []struct {
		name     string
		entry    *zeroconf.ServiceEntry
		wantNil  bool
		wantName string
		wantIP   string
		wantPort int
	}{
		{
			name: "router with IPv4",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "MikroTik"},
				HostName:      "router.local.",
				Port:          22,
				AddrIPv4:      []net.IP{net.ParseIP("192.168.88.1")},
				Text:          []string{"board=RB4011", "version=7.14.2"},
			},
			wantNil:  false,
			wantName: "MikroTik",
			wantIP:   "192.168.88.1",
			wantPort: 22,
		},
		{
			name: "instance falls back to hostname",
			entry: &zeroconf.ServiceEntry{
				HostName: "edge-router.local.",
				Port:     22,
				AddrIPv4: []net.IP{net.ParseIP("10.0.0.5")},
			},
			wantNil:  false,
			wantName: "edge-router",
			wantIP:   "10.0.0.5",
			wantPort: 22,
		},
		{
			name: "custom port",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "lab"},
				HostName:      "lab.local.",
				Port:          2222,
				AddrIPv4:      []net.IP{net.ParseIP("192.168.1.100")},
			},
			wantNil:  false,
			wantName: "lab",
			wantIP:   "192.168.1.100",
			wantPort: 2222,
		},
		{
			name: "no port specified (should default to 22)",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "lab"},
				HostName:      "lab.local.",
				Port:          0,
				AddrIPv4:      []net.IP{net.ParseIP("172.16.0.1")},
			},
			wantNil:  false,
			wantName: "lab",
			wantIP:   "172.16.0.1",
			wantPort: 22,
		},
		{
			name: "no name at all",
			entry: &zeroconf.ServiceEntry{
				HostName: "",
				Port:     22,
				AddrIPv4: []net.IP{net.ParseIP("192.168.1.1")},
			},
			wantNil: true,
		},
		{
			name: "no IP address",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "ghost"},
				HostName:      "ghost.local.",
				Port:          22,
				AddrIPv4:      []net.IP{},
				AddrIPv6:      []net.IP{},
			},
			wantNil: true,
		},
		{
			name: "IPv6 only device",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "v6only"},
				HostName:      "v6only.local.",
				Port:          22,
				AddrIPv6:      []net.IP{net.ParseIP("fe80::1")},
			},
			wantNil:  false,
			wantName: "v6only",
			wantIP:   "fe80::1",
			wantPort: 22,
		},
		{
			name: "both IPv4 and IPv6 (should prefer IPv4)",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "dual"},
				HostName:      "dual.local.",
				Port:          22,
				AddrIPv4:      []net.IP{net.ParseIP("192.168.1.50")},
				AddrIPv6:      []net.IP{net.ParseIP("fe80::2")},
			},
			wantNil:  false,
			wantName: "dual",
			wantIP:   "192.168.1.50",
			wantPort: 22,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := scanner.parseServiceEntry(tt.entry)

			if tt.wantNil {
				if device != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", device)
				}
				return
			}

			if device == nil {
				t.Fatal("parseServiceEntry() = nil, want non-nil device")
			}

			if device.Name != tt.wantName {
				t.Errorf("device.Name = %v, want %v", device.Name, tt.wantName)
			}

			if device.IP != tt.wantIP {
				t.Errorf("device.IP = %v, want %v", device.IP, tt.wantIP)
			}

			if device.Port != tt.wantPort {
				t.Errorf("device.Port = %v, want %v", device.Port, tt.wantPort)
			}

			if device.Hostname != tt.entry.HostName {
				t.Errorf("device.Hostname = %v, want %v", device.Hostname, tt.entry.HostName)
			}

			// Check that DiscoveredAt is recent (within last second)
			if time.Since(device.DiscoveredAt) > time.Second {
				t.Errorf("device.DiscoveredAt is not recent: %v", device.DiscoveredAt)
			}
		})
	}
}

func TestScanner_parseServiceEntry_Metadata(t *testing.T) {
	scanner := NewScanner()

	entry := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: "MikroTik"},
		HostName:      "router.local.",
		Port:          22,
		AddrIPv4:      []net.IP{net.ParseIP("192.168.88.1")},
		Text:          []string{"board=RB4011", "version=7.14.2", "flag", "arch=arm64"},
	}

	device := scanner.parseServiceEntry(entry)
	if device == nil {
		t.Fatal("parseServiceEntry() = nil, want device")
	}

	// Check metadata parsing
	expectedMetadata := map[string]string{
		"board":   "RB4011",
		"version": "7.14.2",
		"flag":    "", // Key without value
		"arch":    "arm64",
	}

	if len(device.Metadata) != len(expectedMetadata) {
		t.Errorf("device.Metadata has %d entries, want %d", len(device.Metadata), len(expectedMetadata))
	}

	for key, expectedValue := range expectedMetadata {
		if actualValue, ok := device.Metadata[key]; !ok {
			t.Errorf("device.Metadata missing key %q", key)
		} else if actualValue != expectedValue {
			t.Errorf("device.Metadata[%q] = %q, want %q", key, actualValue, expectedValue)
		}
	}
}

func TestNewScanner(t *testing.T) {
	scanner := NewScanner()

	if scanner == nil {
		t.Fatal("NewScanner() = nil, want scanner")
	}

	if scanner.Timeout != DefaultScanTimeout {
		t.Errorf("scanner.Timeout = %v, want %v", scanner.Timeout, DefaultScanTimeout)
	}
}

// Note: Integration tests with live mDNS discovery require network access
// and are run manually.
