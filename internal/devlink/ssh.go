package devlink

import (
	"bytes"
	"fmt"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/muurk/rosguard/internal/logging"
	"go.uber.org/zap"
)

const (
	// DefaultSSHPort is the default SSH port for managed devices
	DefaultSSHPort = 22

	// DefaultConnectTimeout bounds the SSH dial and handshake
	DefaultConnectTimeout = 10 * time.Second

	// DefaultCommandTimeout bounds a single command execution
	DefaultCommandTimeout = 30 * time.Second

	// keepaliveInterval is how often the transport sends a keepalive
	// request. Keepalives reduce false staleness positives on quiet links.
	keepaliveInterval = 30 * time.Second
)

// DeviceConfig holds the parameters needed to reach and authenticate with a
// device. It is injected at construction time; this package never reads
// configuration files itself.
type DeviceConfig struct {
	Address        string
	Port           int
	Username       string
	Password       string
	ConnectTimeout time.Duration
	CommandTimeout time.Duration

	// StrictHostKey enables host key verification against KnownHostsFile.
	// When false the host key is ignored, which matches how these devices
	// are typically provisioned on isolated management networks.
	StrictHostKey  bool
	KnownHostsFile string
}

// withDefaults fills in zero-valued fields
func (c DeviceConfig) withDefaults() DeviceConfig {
	if c.Port == 0 {
		c.Port = DefaultSSHPort
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	return c
}

// Transport is an authenticated connection to a device capable of running
// one shell command at a time. Implementations must be safe to close more
// than once.
type Transport interface {
	// Run executes a single command and returns captured stdout and stderr.
	// Run blocks up to the given timeout; on timeout the transport must be
	// considered unusable.
	Run(command string, timeout time.Duration) (stdout, stderr string, err error)

	// Alive reports whether the transport still appears connected
	Alive() bool

	// Close tears down the connection
	Close() error
}

// DialFunc creates a Transport for a device. The session manager uses it so
// tests can substitute a fake transport.
type DialFunc func(cfg DeviceConfig) (Transport, error)

// sshTransport is the production Transport over golang.org/x/crypto/ssh
type sshTransport struct {
	client *ssh.Client
	done   chan struct{}
}

// DialSSH establishes an authenticated SSH connection to the device.
// Authentication failures, connect timeouts and other connection errors are
// returned as distinguished DeviceError kinds.
func DialSSH(cfg DeviceConfig) (Transport, error) {
	cfg = cfg.withDefaults()

	if cfg.Username == "" {
		return nil, NewAuthError("SSH username cannot be empty", nil)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.StrictHostKey {
		cb, err := knownHostsCallback(cfg.KnownHostsFile)
		if err != nil {
			return nil, NewConnectionError("failed to load known hosts", err)
		}
		hostKeyCallback = cb
	}

	sshConfig := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(cfg.Password)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         cfg.ConnectTimeout,
	}

	addr := fmt.Sprintf("%s:%d", cfg.Address, cfg.Port)
	logging.Debug("Dialing device", zap.String("addr", addr), zap.String("user", cfg.Username))

	client, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return nil, ClassifyTransportError(err)
	}

	t := &sshTransport{
		client: client,
		done:   make(chan struct{}),
	}
	go t.keepaliveLoop()

	return t, nil
}

// keepaliveLoop sends periodic keepalive requests until the transport closes
func (t *sshTransport) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			if _, _, err := t.client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				logging.Debug("Keepalive failed", zap.Error(err))
				return
			}
		}
	}
}

// Run executes a single command over a fresh SSH channel. The command is
// bounded by the timeout; there is no way to signal mid-command cancellation
// to the device, so on timeout the whole transport is abandoned.
func (t *sshTransport) Run(command string, timeout time.Duration) (string, string, error) {
	session, err := t.client.NewSession()
	if err != nil {
		return "", "", ClassifyTransportError(err)
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	errCh := make(chan error, 1)
	go func() {
		errCh <- session.Run(command)
	}()

	select {
	case err = <-errCh:
	case <-time.After(timeout):
		// Closing the session unblocks the Run goroutine eventually;
		// the client connection is no longer trustworthy either way.
		_ = session.Close()
		return stdoutBuf.String(), stderrBuf.String(),
			NewTimeoutError(fmt.Sprintf("command exceeded %s timeout", timeout), nil)
	}

	stdout := stdoutBuf.String()
	stderr := stderrBuf.String()

	if err != nil {
		if _, ok := err.(*ssh.ExitError); ok {
			// Non-zero exit: the device ran the command and rejected it.
			// Surface the device's own error text for classification.
			return stdout, stderr, NewDeviceOutputError(command, stderr)
		}
		return stdout, stderr, ClassifyTransportError(err)
	}

	return stdout, stderr, nil
}

// Alive probes the connection with a keepalive request
func (t *sshTransport) Alive() bool {
	select {
	case <-t.done:
		return false
	default:
	}
	_, _, err := t.client.SendRequest("keepalive@openssh.com", true, nil)
	return err == nil
}

// Close tears down the connection. Safe to call more than once.
func (t *sshTransport) Close() error {
	select {
	case <-t.done:
		return nil
	default:
		close(t.done)
	}
	return t.client.Close()
}
