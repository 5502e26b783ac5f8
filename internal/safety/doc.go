// Package safety wraps mutating device operations in a change-safety
// sequence: risk assessment, an idempotency short-circuit, pre-flight
// checks, approval gating, pre-change backup and export, rollback
// planning, execution, and post-change verification. Every change yields
// an audit record kept in bounded history and, optionally, a YAML journal
// that survives process restarts.
package safety
