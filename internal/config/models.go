package config

import "time"

// Registry represents the entire user configuration file.
// This stores connection settings for known devices and application
// preferences.
type Registry struct {
	Version     int                `yaml:"version"`
	Devices     map[string]*Device `yaml:"devices,omitempty"` // Keyed by device name
	Preferences *Preferences       `yaml:"preferences,omitempty"`
}

// Device represents the stored connection settings for a single device.
// This is keyed by a user-chosen device name in the Registry.
type Device struct {
	Nickname string    `yaml:"nickname,omitempty"`  // User-friendly display name
	Address  string    `yaml:"address"`             // Hostname or IP address
	Port     int       `yaml:"port,omitempty"`      // SSH port (default 22)
	Username string    `yaml:"username,omitempty"`  // SSH username
	LastSeen time.Time `yaml:"last_seen,omitempty"` // Last discovery/connection time

	// Timeouts in seconds; zero uses the built-in defaults
	ConnectTimeout int `yaml:"connect_timeout,omitempty"`
	CommandTimeout int `yaml:"command_timeout,omitempty"`

	// Read-cache lifetime in seconds; zero uses the built-in default
	CacheTTL int `yaml:"cache_ttl,omitempty"`

	// Host key verification. When strict, the key must appear in the
	// known-hosts file.
	StrictHostKey  bool   `yaml:"strict_host_key,omitempty"`
	KnownHostsFile string `yaml:"known_hosts_file,omitempty"`
}

// ConnectTimeoutDuration returns the configured connect timeout, or zero
// when unset
func (d *Device) ConnectTimeoutDuration() time.Duration {
	return time.Duration(d.ConnectTimeout) * time.Second
}

// CommandTimeoutDuration returns the configured command timeout, or zero
// when unset
func (d *Device) CommandTimeoutDuration() time.Duration {
	return time.Duration(d.CommandTimeout) * time.Second
}

// CacheTTLDuration returns the configured cache lifetime, or zero when
// unset
func (d *Device) CacheTTLDuration() time.Duration {
	return time.Duration(d.CacheTTL) * time.Second
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	DefaultDevice   string     `yaml:"default_device,omitempty"` // Device name used when none is given
	AutoDiscover    bool       `yaml:"auto_discover"`            // Enable automatic mDNS discovery on startup
	DiscoverTimeout int        `yaml:"discover_timeout"`         // mDNS discovery timeout in seconds
	DefaultAuth     *AuthPrefs `yaml:"default_auth,omitempty"`   // Default authentication preferences
}

// DiscoverTimeoutDuration returns the configured mDNS discovery timeout,
// falling back to 10 seconds when unset
func (p *Preferences) DiscoverTimeoutDuration() time.Duration {
	if p == nil || p.DiscoverTimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(p.DiscoverTimeout) * time.Second
}

// AuthPrefs represents default authentication preferences.
// Note: Passwords are NEVER stored - they are always prompted from the user.
type AuthPrefs struct {
	Username string `yaml:"username"` // Default username (e.g., "admin")
	// Password is NEVER stored in config file for security reasons
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version: 1,
		Devices: make(map[string]*Device),
		Preferences: &Preferences{
			AutoDiscover:    true,
			DiscoverTimeout: 10,
			DefaultAuth: &AuthPrefs{
				Username: "admin",
			},
		},
	}
}

// GetDevice retrieves a device entry by name.
// Returns nil if the device doesn't exist in the registry.
func (r *Registry) GetDevice(name string) *Device {
	return r.Devices[name]
}

// EnsureDevice ensures a device entry exists in the registry.
// If the device doesn't exist, creates a new entry with default values.
// Returns the device entry (existing or newly created).
func (r *Registry) EnsureDevice(name string) *Device {
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}

	if device, exists := r.Devices[name]; exists {
		return device
	}

	device := &Device{}
	r.Devices[name] = device
	return device
}

// UpdateDeviceLastSeen updates the last seen timestamp and address for a
// device.
func (r *Registry) UpdateDeviceLastSeen(name, address string) {
	device := r.EnsureDevice(name)
	device.LastSeen = time.Now()
	device.Address = address
}

// SetDeviceNickname sets a user-friendly nickname for a device.
func (r *Registry) SetDeviceNickname(name, nickname string) {
	device := r.EnsureDevice(name)
	device.Nickname = nickname
}

// DefaultDevice resolves the preferred device entry: the explicitly
// configured default, or the only registered device when there is exactly
// one. Returns the name and entry, or an empty name when unresolvable.
func (r *Registry) DefaultDevice() (string, *Device) {
	if r.Preferences != nil && r.Preferences.DefaultDevice != "" {
		if device := r.Devices[r.Preferences.DefaultDevice]; device != nil {
			return r.Preferences.DefaultDevice, device
		}
	}
	if len(r.Devices) == 1 {
		for name, device := range r.Devices {
			return name, device
		}
	}
	return "", nil
}
