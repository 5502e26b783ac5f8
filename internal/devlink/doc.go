// Package devlink maintains the connection to a managed network device and
// executes shell commands over it.
//
// The device exposes no structured RPC; its only interface is an interactive
// SSH shell whose free-text output callers parse elsewhere. This package owns
// the two layers underneath that parsing:
//
//   - SessionManager keeps at most one authenticated SSH connection per
//     device, health-checks it on an interval, and recycles it when the
//     transport goes quiet or the session sits idle too long. Acquisition is
//     serialized, so two concurrent commands against one device queue rather
//     than interleave on the wire.
//
//   - Gateway executes a single command through a borrowed session with a
//     bounded timeout, classifies failures (transport vs. device-level),
//     caches read-only results under a TTL, and retries a read exactly once
//     on a fresh session after a transport failure. Mutating commands are
//     never retried: the device has no transactions, and re-issuing a
//     possibly-applied change is worse than surfacing the error.
//
// # Error Classification
//
// Errors are DeviceError values with a Kind. Authentication failures and
// device-level rejections (syntax, permission, unsupported command) are never
// retried; timeouts and connection failures are retryable for reads. Device
// rejections carry the device's raw error text so callers never lose the
// original message.
//
// # Usage
//
//	mgr := devlink.NewSessionManager(devlink.DeviceConfig{
//	    Address:  "192.0.2.1",
//	    Username: "admin",
//	    Password: password,
//	})
//	defer mgr.Shutdown()
//
//	gw := devlink.NewGateway(mgr, 0)
//	res, err := gw.Execute("/interface print")
//
// # Thread Safety
//
// SessionManager and Gateway are safe for concurrent use. Shared state (the
// session handle, the response cache, the metrics counters) sits behind
// coarse mutexes; command volume against a single device is low and strict
// ordering of mutations is desirable, so fine-grained locking would buy
// nothing.
package devlink
