// Package config provides user configuration management for rosguard.
//
// This package manages a YAML-based configuration file that stores
// connection settings for known devices (addresses, SSH usernames,
// timeouts, host key policy) and application preferences. The
// configuration follows OS-specific conventions for storage location.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/rosguard/config.yaml or $HOME/.config/rosguard/config.yaml
//   - macOS: $HOME/.config/rosguard/config.yaml
//   - Windows: %LOCALAPPDATA%\rosguard\config.yaml
//
// # Security
//
// IMPORTANT: This package NEVER stores device passwords. They are always
// prompted from the user when needed.
//
// # Usage Example
//
//	// Load the global registry
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Add or update a device entry
//	registry.Devices["edge-router"] = &config.Device{
//	    Nickname: "Edge Router",
//	    Address:  "10.0.0.1",
//	    Username: "admin",
//	}
//
//	// Save changes atomically
//	if err := registry.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// The global registry uses sync.Once for safe initialization across goroutines.
// File operations are protected by a mutex to ensure atomic writes.
package config
