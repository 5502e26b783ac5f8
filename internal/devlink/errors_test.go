package devlink

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"testing"
)

func TestClassifyDeviceOutput(t *testing.T) {
	tests := []struct {
		text string
		want ErrorKind
	}{
		{"syntax error (line 1 column 4)", KindSyntax},
		{"bad command name prnt (line 1 column 11)", KindSyntax},
		{"expected end of command (line 1 column 19)", KindSyntax},
		{"input does not match any value of interface", KindSyntax},
		{"not enough permissions (9)", KindPermission},
		{"Access denied", KindPermission},
		{"unknown command", KindUnsupported},
		{"no such command prefix", KindUnsupported},
		{"Restoring system configuration, please stand by", KindUnknown},
		{"", KindUnknown},
	}

	for _, tt := range tests {
		if got := ClassifyDeviceOutput(tt.text); got != tt.want {
			t.Errorf("ClassifyDeviceOutput(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestNewDeviceOutputError(t *testing.T) {
	err := NewDeviceOutputError("/user print", "not enough permissions (9)")
	if err.Kind != KindPermission {
		t.Errorf("Kind = %v, want %v", err.Kind, KindPermission)
	}
	if err.Retryable {
		t.Error("device-level error marked retryable")
	}
	if err.Command != "/user print" {
		t.Errorf("Command = %q, want the triggering command", err.Command)
	}

	// Unmatched device text still refuses retry, as a syntax-class error
	fallback := NewDeviceOutputError("/ip route print", "something nobody anticipated")
	if fallback.Kind != KindSyntax {
		t.Errorf("fallback Kind = %v, want %v", fallback.Kind, KindSyntax)
	}
	if fallback.RawOutput != "something nobody anticipated" {
		t.Errorf("RawOutput = %q, want the original text preserved", fallback.RawOutput)
	}
}

func TestClassifyTransportError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantKind  ErrorKind
		wantRetry bool
	}{
		{
			name:      "connection refused",
			err:       &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED},
			wantKind:  KindConnection,
			wantRetry: true,
		},
		{
			name:      "host unreachable",
			err:       &net.OpError{Op: "dial", Err: syscall.EHOSTUNREACH},
			wantKind:  KindConnection,
			wantRetry: true,
		},
		{
			name:      "ssh auth failure text",
			err:       errors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password]"),
			wantKind:  KindAuth,
			wantRetry: false,
		},
		{
			name:      "timeout text",
			err:       errors.New("dial tcp 192.168.88.1:22: i/o timeout"),
			wantKind:  KindTimeout,
			wantRetry: true,
		},
		{
			name:      "unrecognized error",
			err:       errors.New("something went sideways"),
			wantKind:  KindConnection,
			wantRetry: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyTransportError(tt.err)
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if got.Retryable != tt.wantRetry {
				t.Errorf("Retryable = %v, want %v", got.Retryable, tt.wantRetry)
			}
		})
	}
}

func TestClassifyTransportError_PassesThroughDeviceError(t *testing.T) {
	original := NewAuthError("authentication failed (check credentials)", nil)

	if got := ClassifyTransportError(original); got != original {
		t.Error("already-classified error was re-wrapped")
	}

	wrapped := fmt.Errorf("acquire session: %w", original)
	if got := ClassifyTransportError(wrapped); got != original {
		t.Error("wrapped DeviceError was not unwrapped to the original")
	}

	if ClassifyTransportError(nil) != nil {
		t.Error("ClassifyTransportError(nil) != nil")
	}
}

func TestErrorPredicates(t *testing.T) {
	timeout := NewTimeoutError("transport timed out", nil)
	conn := NewConnectionError("connection failed", nil)
	auth := NewAuthError("authentication failed", nil)
	syntax := NewDeviceOutputError("/bad", "syntax error")

	if !IsTransportError(timeout) || !IsTransportError(conn) {
		t.Error("timeout and connection errors must be transport errors")
	}
	if IsTransportError(auth) || IsTransportError(syntax) {
		t.Error("auth and device errors must not be transport errors")
	}
	if !IsDeviceError(syntax) {
		t.Error("syntax error must be a device error")
	}
	if IsDeviceError(timeout) {
		t.Error("timeout must not be a device error")
	}
	if !IsAuthError(auth) {
		t.Error("IsAuthError missed an auth error")
	}
	if !IsRetryable(timeout) || IsRetryable(syntax) {
		t.Error("retryability does not follow the error kind")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("plain errors must not be considered retryable")
	}

	// Predicates see through wrapping
	wrapped := fmt.Errorf("while probing: %w", timeout)
	if !IsTransportError(wrapped) {
		t.Error("IsTransportError missed a wrapped transport error")
	}
}

func TestDeviceError_Error(t *testing.T) {
	bare := NewAuthError("authentication failed", nil)
	if !strings.Contains(bare.Error(), "authentication failed") {
		t.Errorf("Error() = %q, want the message included", bare.Error())
	}

	cause := errors.New("root cause")
	chained := NewConnectionError("connection failed", cause)
	if !strings.Contains(chained.Error(), "root cause") {
		t.Errorf("Error() = %q, want the cause included", chained.Error())
	}
	if !errors.Is(chained, cause) {
		t.Error("Unwrap() does not expose the cause")
	}
}

func TestGetTroubleshootingHint(t *testing.T) {
	authHint := GetTroubleshootingHint(NewAuthError("authentication failed", nil))
	if !strings.Contains(authHint, "username") {
		t.Errorf("auth hint = %q, want credential advice", authHint)
	}

	timeoutHint := GetTroubleshootingHint(NewTimeoutError("transport timed out", nil))
	if !strings.Contains(timeoutHint, "timeout") {
		t.Errorf("timeout hint = %q, want timeout advice", timeoutHint)
	}

	if GetTroubleshootingHint(errors.New("plain")) == "" {
		t.Error("plain errors must still get a generic hint")
	}
}
