// Package ui provides terminal UI components for the rosguard CLI.
//
// This package uses Lipgloss to render polished terminal output for
// device commands. The components follow a "run once and exit" pattern -
// they render output compellingly but don't require ongoing interaction.
//
// # Architecture
//
// The UI package provides three main component types:
//
//   - Header: Command banner showing operation name and parameters
//   - Result: Success/failure boxes with styled information
//   - Confirm: Risk-aware approval prompts for mutating commands
//
// ConfirmRiskyCommand renders the risk assessment for a command and
// gates execution on user approval: MEDIUM and HIGH tiers take a y/N
// answer, CRITICAL requires typing a confirmation phrase.
//
// # Logging Integration
//
// This package expects logging to be controlled via the ROSGUARD_LOG_LEVEL
// environment variable. When unset or empty, zap logging is silent, allowing
// the curated UI output to be displayed cleanly. Set ROSGUARD_LOG_LEVEL to
// "debug", "info", "warn", or "error" to enable logging output.
package ui
