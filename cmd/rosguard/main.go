// Rosguard is a change-safety utility for SSH-managed network devices.
//
// It provides risk-classified command execution, pre-flight checked
// changes with automatic backups and rollback plans, and declarative
// desired-state convergence for RouterOS-style devices reachable over an
// interactive SSH shell.
//
// Usage:
//
//	rosguard [command] [flags]
//
// See 'rosguard --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/rosguard/internal/logging"
	"github.com/muurk/rosguard/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rosguard",
	Short: "Device Change-Safety Utility",
	Long: `A utility for managing remote network devices over SSH with
change safety built in.

Every mutating command is risk-classified before it runs. Risky changes
get pre-flight checks, an on-device backup, and a rollback plan recorded
in a persistent change journal. Desired-state manifests converge the
device toward declarative configuration.`,
	Version: version.Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Silent by default; set ROSGUARD_LOG_LEVEL=debug for detail
		if err := logging.InitializeFromEnv(); err != nil {
			// GetLogger falls back to a nop logger
			_ = err
		}
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("rosguard %s (commit: %s)\n", version.Version, version.Commit)
	},
}
