package devlink

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
)

// ErrorKind represents the category of error that occurred while talking to
// the device.
type ErrorKind int

const (
	// KindNone indicates no error
	KindNone ErrorKind = iota
	// KindAuth indicates an authentication failure (invalid credentials)
	KindAuth
	// KindTimeout indicates a transport timeout (connect or command)
	KindTimeout
	// KindConnection indicates a generic transport/connection failure
	KindConnection
	// KindSyntax indicates the device rejected the command as malformed
	KindSyntax
	// KindPermission indicates the device denied the command for the
	// authenticated user
	KindPermission
	// KindUnsupported indicates the device does not implement the command
	KindUnsupported
	// KindUnknown indicates an unclassified error
	KindUnknown
)

// String returns a human-readable name for the error kind
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindAuth:
		return "Authentication Error"
	case KindTimeout:
		return "Transport Timeout"
	case KindConnection:
		return "Connection Error"
	case KindSyntax:
		return "Device Syntax Error"
	case KindPermission:
		return "Permission Denied"
	case KindUnsupported:
		return "Unsupported Command"
	case KindUnknown:
		return "Unknown Error"
	default:
		return fmt.Sprintf("ErrorKind(%d)", k)
	}
}

// DeviceError represents an error that occurred during device communication.
// Transport-level kinds (timeout, connection) are recoverable by reconnecting;
// device-level kinds (syntax, permission, unsupported) are not retried because
// re-issuing the same command cannot succeed.
type DeviceError struct {
	Kind      ErrorKind // Category of error
	Message   string    // Human-readable error message
	RawOutput string    // Raw device error text, if any
	Command   string    // Command that triggered the error (for context)
	Err       error     // Underlying error (if any)
	Retryable bool      // Whether a reconnect-and-retry can succeed
}

// Error implements the error interface
func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// Device-level error sentinels emitted by RouterOS-style shells. Matching is
// on lowercased stderr/stdout text.
var deviceSentinels = []struct {
	substr string
	kind   ErrorKind
}{
	{"syntax error", KindSyntax},
	{"bad command name", KindSyntax},
	{"expected end of command", KindSyntax},
	{"input does not match any value", KindSyntax},
	{"not enough permissions", KindPermission},
	{"access denied", KindPermission},
	{"permission denied", KindPermission},
	{"unimplemented", KindUnsupported},
	{"unknown command", KindUnsupported},
	{"no such command", KindUnsupported},
}

// ClassifyDeviceOutput inspects device error text and maps known sentinel
// substrings to a specific error kind. Returns KindUnknown when the text does
// not match any sentinel.
func ClassifyDeviceOutput(text string) ErrorKind {
	lowered := strings.ToLower(text)
	for _, s := range deviceSentinels {
		if strings.Contains(lowered, s.substr) {
			return s.kind
		}
	}
	return KindUnknown
}

// NewDeviceOutputError builds a DeviceError from device-emitted error text.
// Device-level errors are never retryable.
func NewDeviceOutputError(command, raw string) *DeviceError {
	kind := ClassifyDeviceOutput(raw)
	if kind == KindUnknown {
		kind = KindSyntax
	}
	return &DeviceError{
		Kind:      kind,
		Message:   fmt.Sprintf("device rejected command: %s", strings.TrimSpace(raw)),
		RawOutput: raw,
		Command:   command,
		Retryable: false,
	}
}

// ClassifyTransportError analyzes a transport failure and returns a DeviceError
// with the most specific kind it can determine.
func ClassifyTransportError(err error) *DeviceError {
	if err == nil {
		return nil
	}

	// Already classified
	var devErr *DeviceError
	if errors.As(err, &devErr) {
		return devErr
	}

	if os.IsTimeout(err) {
		return &DeviceError{
			Kind:      KindTimeout,
			Message:   "transport timed out",
			Err:       err,
			Retryable: true,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &DeviceError{
			Kind:      KindTimeout,
			Message:   "transport timed out",
			Err:       err,
			Retryable: true,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		msg := "connection failed"
		if errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			msg = "device refused connection"
		} else if errors.Is(opErr.Err, syscall.EHOSTUNREACH) {
			msg = "host unreachable"
		} else if errors.Is(opErr.Err, syscall.ENETUNREACH) {
			msg = "network unreachable"
		}
		return &DeviceError{
			Kind:      KindConnection,
			Message:   msg,
			Err:       err,
			Retryable: true,
		}
	}

	// The ssh package reports handshake auth failures as plain errors; the
	// message text is the only discriminator available.
	lowered := strings.ToLower(err.Error())
	if strings.Contains(lowered, "unable to authenticate") ||
		strings.Contains(lowered, "auth") && strings.Contains(lowered, "fail") {
		return &DeviceError{
			Kind:      KindAuth,
			Message:   "authentication failed (check credentials)",
			Err:       err,
			Retryable: false,
		}
	}
	if strings.Contains(lowered, "timeout") || strings.Contains(lowered, "timed out") {
		return &DeviceError{
			Kind:      KindTimeout,
			Message:   "transport timed out",
			Err:       err,
			Retryable: true,
		}
	}

	return &DeviceError{
		Kind:      KindConnection,
		Message:   "connection error",
		Err:       err,
		Retryable: true,
	}
}

// NewAuthError creates an authentication error
func NewAuthError(message string, err error) *DeviceError {
	return &DeviceError{
		Kind:      KindAuth,
		Message:   message,
		Err:       err,
		Retryable: false,
	}
}

// NewTimeoutError creates a transport timeout error
func NewTimeoutError(message string, err error) *DeviceError {
	return &DeviceError{
		Kind:      KindTimeout,
		Message:   message,
		Err:       err,
		Retryable: true,
	}
}

// NewConnectionError creates a generic connection error
func NewConnectionError(message string, err error) *DeviceError {
	return &DeviceError{
		Kind:      KindConnection,
		Message:   message,
		Err:       err,
		Retryable: true,
	}
}

// IsAuthError checks if an error is an authentication error
func IsAuthError(err error) bool {
	var devErr *DeviceError
	return errors.As(err, &devErr) && devErr.Kind == KindAuth
}

// IsTransportError checks if an error is a transport-level error
// (timeout or connection), i.e. one that a reconnect may fix.
func IsTransportError(err error) bool {
	var devErr *DeviceError
	if !errors.As(err, &devErr) {
		return false
	}
	return devErr.Kind == KindTimeout || devErr.Kind == KindConnection
}

// IsDeviceError checks if an error was reported by the device itself
// (syntax, permission, unsupported). These are never retried.
func IsDeviceError(err error) bool {
	var devErr *DeviceError
	if !errors.As(err, &devErr) {
		return false
	}
	switch devErr.Kind {
	case KindSyntax, KindPermission, KindUnsupported:
		return true
	}
	return false
}

// IsRetryable checks if an error should be retried after a reconnect
func IsRetryable(err error) bool {
	var devErr *DeviceError
	if errors.As(err, &devErr) {
		return devErr.Retryable
	}
	return false
}

// GetTroubleshootingHint returns user-friendly troubleshooting advice for an
// error. Failure paths surface this alongside the raw device text so callers
// never have to interpret a bare stack trace.
func GetTroubleshootingHint(err error) string {
	var devErr *DeviceError
	if !errors.As(err, &devErr) {
		return "An unexpected error occurred. Please try again."
	}

	switch devErr.Kind {
	case KindAuth:
		return strings.Join([]string{
			"Authentication with the device failed.",
			"Troubleshooting:",
			"  • Verify the username and password",
			"  • Check that the user is not disabled on the device",
			"  • Confirm SSH login is permitted for this user group",
		}, "\n")

	case KindTimeout:
		return strings.Join([]string{
			"The device did not respond in time.",
			"Troubleshooting:",
			"  • Check that the device is powered on and reachable",
			"  • Try increasing the command timeout",
			"  • Long-running commands may need a dedicated timeout",
		}, "\n")

	case KindConnection:
		return strings.Join([]string{
			"Could not establish or keep a connection to the device.",
			"Troubleshooting:",
			"  • Verify the address and SSH port",
			"  • Check firewall rules between this host and the device",
			"  • Confirm the SSH service is enabled on the device",
		}, "\n")

	case KindSyntax:
		return "The device rejected the command as malformed. Check the command path and parameters; retrying will not help."

	case KindPermission:
		return "The device denied the command for this user. Check the user's group policy on the device."

	case KindUnsupported:
		return "The device does not implement this command. Check the device model and software version."

	default:
		return "An error occurred. Please check the error message for details."
	}
}
