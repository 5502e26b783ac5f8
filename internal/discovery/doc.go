// Package discovery provides mDNS-based discovery of SSH-reachable devices.
//
// This package implements multicast DNS (mDNS) service discovery to
// automatically locate manageable devices on the local network. Devices
// are found through their advertised "_ssh._tcp" service.
//
// # Discovery Process
//
// The discovery process works as follows:
//  1. Broadcasts mDNS queries on the local network
//  2. Listens for SSH service advertisements
//  3. Collects device information (instance name, hostname, IP, port, TXT metadata)
//  4. Returns a list of discovered devices after the timeout period
//
// # Usage Example
//
//	// Discover devices with 10-second timeout
//	devices, err := discovery.ScanForDevices(10 * time.Second)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Print discovered devices
//	for _, device := range devices {
//	    fmt.Printf("Found: %s at %s\n", device.Name, device.Addr())
//	}
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Devices must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
//
// # Thread Safety
//
// This package is safe for concurrent use. Multiple discovery sessions can run
// simultaneously without interference.
package discovery
