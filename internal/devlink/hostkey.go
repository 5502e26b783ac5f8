package devlink

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// knownHostsCallback builds a host key verifier from an OpenSSH known_hosts
// file. An empty path falls back to ~/.ssh/known_hosts.
func knownHostsCallback(path string) (ssh.HostKeyCallback, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot determine home directory: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}

	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read known hosts file %s: %w", path, err)
	}
	return cb, nil
}
