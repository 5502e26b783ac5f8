// Package logging provides structured logging for rosguard using zap.
//
// Logging is silent by default so CLI output stays clean. Set the
// ROSGUARD_LOG_LEVEL environment variable to "debug", "info", "warn" or
// "error" to enable console logging on stderr.
//
// Besides the generic level helpers, the package offers domain helpers
// (LogSession, LogCommand, LogChange, LogRollback) so session lifecycle,
// command execution and change-safety events share consistent field names.
package logging
