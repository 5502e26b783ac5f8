package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/muurk/rosguard/internal/config"
	"github.com/muurk/rosguard/internal/devlink"
	"github.com/muurk/rosguard/internal/discovery"
	"github.com/muurk/rosguard/internal/reconcile"
	"github.com/muurk/rosguard/internal/risk"
	"github.com/muurk/rosguard/internal/safety"
	"github.com/muurk/rosguard/internal/ui"
)

// Command flags
var (
	deviceFlag  string
	portFlag    int
	userFlag    string
	scanTimeout int
	assumeYes   bool
	forceFlag   bool
	freshFlag   bool
	showStats   bool
	maxRetries  int
	historyAll  bool
)

func init() {
	// Common flags for device commands (persistent on root)
	rootCmd.PersistentFlags().StringVar(&deviceFlag, "device", "", "Device name from the registry, or a hostname/IP")
	rootCmd.PersistentFlags().IntVar(&portFlag, "port", 0, "SSH port (overrides the registry entry)")
	rootCmd.PersistentFlags().StringVar(&userFlag, "user", "", "SSH username (overrides the registry entry)")

	// Add subcommands directly to root
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(assessCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(devicesCmd)
}

// resolveDevice maps the --device flag (or the registry default) to a
// connection config, the device's cache TTL, and a display label
func resolveDevice() (string, devlink.DeviceConfig, time.Duration, error) {
	registry, err := config.LoadRegistry()
	if err != nil {
		return "", devlink.DeviceConfig{}, 0, err
	}

	name := deviceFlag
	var entry *config.Device

	switch {
	case name != "":
		entry = registry.GetDevice(name)
	default:
		name, entry = registry.DefaultDevice()
		if name == "" {
			name, entry = discoverFallback(registry)
		}
		if name == "" {
			return "", devlink.DeviceConfig{}, 0, fmt.Errorf(
				"no device specified; use --device or add one with 'rosguard devices add'")
		}
	}

	cfg := devlink.DeviceConfig{}
	cacheTTL := time.Duration(0)
	label := name
	if entry != nil {
		cfg.Address = entry.Address
		cfg.Port = entry.Port
		cfg.Username = entry.Username
		cfg.ConnectTimeout = entry.ConnectTimeoutDuration()
		cfg.CommandTimeout = entry.CommandTimeoutDuration()
		cfg.StrictHostKey = entry.StrictHostKey
		cfg.KnownHostsFile = entry.KnownHostsFile
		cacheTTL = entry.CacheTTLDuration()
		if entry.Nickname != "" {
			label = entry.Nickname
		}
	} else {
		// Unregistered name: treat it as a direct address
		cfg.Address = name
	}

	if portFlag != 0 {
		cfg.Port = portFlag
	}
	if userFlag != "" {
		cfg.Username = userFlag
	}
	if cfg.Username == "" {
		if prefs := registry.Preferences; prefs != nil && prefs.DefaultAuth != nil {
			cfg.Username = prefs.DefaultAuth.Username
		}
	}
	if cfg.Address == "" {
		return "", devlink.DeviceConfig{}, 0, fmt.Errorf("device %q has no address configured", name)
	}

	return label, cfg, cacheTTL, nil
}

// discoverFallback scans the network when the registry names no device and
// auto-discovery is enabled. Only an unambiguous single hit is used.
func discoverFallback(registry *config.Registry) (string, *config.Device) {
	prefs := registry.Preferences
	if prefs == nil || !prefs.AutoDiscover {
		return "", nil
	}

	found, err := discovery.ScanForDevices(prefs.DiscoverTimeoutDuration())
	if err != nil || len(found) != 1 {
		return "", nil
	}

	d := found[0]
	fmt.Fprintf(os.Stderr, "Discovered %s\n", d)
	return d.Name, &config.Device{Address: d.IP, Port: d.Port}
}

// promptPassword reads the device password without echo. The
// ROSGUARD_PASSWORD environment variable short-circuits the prompt for
// scripted use.
func promptPassword(username, address string) (string, error) {
	if pw := os.Getenv("ROSGUARD_PASSWORD"); pw != "" {
		return pw, nil
	}
	fmt.Printf("Password for %s@%s: ", username, address)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(raw), nil
}

// connect builds the session manager and gateway for the resolved device.
// A zero cache TTL from the registry selects the gateway's default.
func connect() (*devlink.Gateway, *devlink.SessionManager, string, error) {
	label, cfg, cacheTTL, err := resolveDevice()
	if err != nil {
		return nil, nil, "", err
	}

	password, err := promptPassword(cfg.Username, cfg.Address)
	if err != nil {
		return nil, nil, "", err
	}
	cfg.Password = password

	sessions := devlink.NewSessionManager(cfg)
	gateway := devlink.NewGateway(sessions, cacheTTL)
	return gateway, sessions, label, nil
}

// newOrchestrator wires the change-safety layer with the persistent
// journal
func newOrchestrator(gateway *devlink.Gateway) (*safety.Orchestrator, error) {
	o := safety.NewOrchestrator(gateway)

	journalPath, err := config.GetJournalPath()
	if err != nil {
		return nil, err
	}
	if err := o.WithJournal(safety.NewJournal(journalPath)); err != nil {
		return nil, fmt.Errorf("failed to open change journal: %w", err)
	}
	return o, nil
}

// categoryForCommand infers the change category from a command path
func categoryForCommand(command string) string {
	trimmed := strings.TrimSpace(command)
	switch {
	case strings.HasPrefix(trimmed, "/ip firewall"):
		return safety.CategoryFirewall
	case strings.HasPrefix(trimmed, "/ip route"), strings.HasPrefix(trimmed, "/routing"):
		return safety.CategoryRouting
	case strings.HasPrefix(trimmed, "/ip dhcp"):
		return safety.CategoryDHCP
	case strings.HasPrefix(trimmed, "/ip dns"):
		return safety.CategoryDNS
	case strings.HasPrefix(trimmed, "/interface"), strings.HasPrefix(trimmed, "/ip address"):
		return safety.CategoryInterface
	case strings.HasPrefix(trimmed, "/user"):
		return safety.CategoryUser
	case strings.HasPrefix(trimmed, "/system"):
		return safety.CategorySystem
	default:
		return safety.CategoryOther
	}
}

// categoryForResource maps a desired-state resource type to its change
// category
func categoryForResource(resourceType string) string {
	switch resourceType {
	case "firewall", "nat", "address-list":
		return safety.CategoryFirewall
	case "route":
		return safety.CategoryRouting
	case "address", "interface":
		return safety.CategoryInterface
	case "user":
		return safety.CategoryUser
	case "dhcp-server":
		return safety.CategoryDHCP
	case "dns-static":
		return safety.CategoryDNS
	default:
		return safety.CategoryOther
	}
}

// troubleshooting renders the per-error-kind hint as failure-box lines
func troubleshooting(err error) []string {
	if err == nil {
		return nil
	}
	return strings.Split(devlink.GetTroubleshootingHint(err), "\n")
}

// approveFunc builds the interactive approval gate, honoring --yes
func approveFunc() func(string, *risk.Assessment) bool {
	if assumeYes {
		return nil
	}
	return ui.ConfirmRiskyCommand
}

// execCmd runs a single device command through the safety layer
var execCmd = &cobra.Command{
	Use:   "exec <command>",
	Short: "Run a device command with risk gating",
	Long: `Run one device command. The command is risk-classified first:
read-only commands run immediately (and may be served from the response
cache), while mutating commands require approval and run through the
change-safety sequence with pre-flight checks, a backup for HIGH and
CRITICAL tiers, and a recorded rollback plan.`,
	Example: `  # Read-only command, cached
  rosguard exec '/ip route print detail'

  # Mutating command, runs the full safety sequence
  rosguard exec '/ip firewall filter add chain=input action=drop'

  # Skip the interactive approval prompt
  rosguard exec --yes '/system reboot'`,
	Args: cobra.ExactArgs(1),
	RunE: runExec,
}

func init() {
	execCmd.Flags().BoolVar(&assumeYes, "yes", false, "Skip the approval prompt")
	execCmd.Flags().BoolVar(&forceFlag, "force", false, "Proceed past failed pre-flight checks")
	execCmd.Flags().BoolVar(&freshFlag, "fresh", false, "Bypass the response cache")
	execCmd.Flags().BoolVar(&showStats, "stats", false, "Print gateway statistics afterwards")
}

func runExec(cmd *cobra.Command, args []string) error {
	command := strings.TrimSpace(args[0])

	gateway, sessions, label, err := connect()
	if err != nil {
		return err
	}
	defer sessions.Shutdown()

	if !devlink.IsMutating(command) {
		result, err := runRead(gateway, command)
		if err != nil {
			fmt.Println(ui.RenderFailure("Command failed", err, troubleshooting(err)))
			return err
		}
		if result.Stdout != "" {
			fmt.Println(result.Stdout)
		}
		if result.FromCache {
			fmt.Fprintln(os.Stderr, "(cached)")
		}
		printStats(gateway)
		return nil
	}

	orchestrator, err := newOrchestrator(gateway)
	if err != nil {
		return err
	}

	record := orchestrator.ExecuteSafe(context.Background(), safety.Request{
		Device:    label,
		Category:  categoryForCommand(command),
		Operation: command,
		Commands:  []string{command},
		Force:     forceFlag,
		Approve:   approveFunc(),
	})

	printStats(gateway)

	if record.Failed() {
		fmt.Println(ui.RenderFailure("Change failed", fmt.Errorf("%s", record.Error), troubleshooting(record.Cause)))
		return fmt.Errorf("change %s failed", record.ID)
	}

	details := map[string]string{
		"Change ID": record.ID,
		"Tier":      record.Tier.String(),
		"Status":    string(record.Status),
	}
	if record.BackupName != "" {
		details["Backup"] = record.BackupName
	}
	fmt.Println(ui.RenderSuccess("Change completed", details))
	return nil
}

// runRead executes a read-only command, honoring --fresh
func runRead(gateway *devlink.Gateway, command string) (*devlink.CommandResult, error) {
	if freshFlag {
		return gateway.ExecuteFresh(command)
	}
	return gateway.Execute(command)
}

// printStats dumps gateway metrics when --stats is set
func printStats(gateway *devlink.Gateway) {
	if !showStats {
		return
	}
	stats := gateway.Stats()
	fmt.Fprintf(os.Stderr, "\ncommands: %d (%d failed)  cache hit rate: %.0f%%  retries: %d\n",
		stats.Total, stats.Failed, stats.CacheHitRate()*100, stats.Retries)
}

// assessCmd classifies a command without running it
var assessCmd = &cobra.Command{
	Use:   "assess <command>",
	Short: "Classify the risk of a command without running it",
	Example: `  rosguard assess '/system reset-configuration'
  rosguard assess '/ip route print'`,
	Args: cobra.ExactArgs(1),
	RunE: runAssess,
}

func runAssess(cmd *cobra.Command, args []string) error {
	command := strings.TrimSpace(args[0])
	assessment := risk.NewClassifier().Assess(command)

	fmt.Printf("Command:  %s\n", command)
	fmt.Printf("Tier:     %s\n", ui.TierStyle(assessment.Tier).Render(assessment.Tier.String()))
	fmt.Printf("Reason:   %s\n", assessment.Reason)
	fmt.Printf("Impact:   %s\n", assessment.Impact)
	fmt.Printf("Approval: %v   Backup: %v\n", assessment.RequiresApproval, assessment.RequiresBackup)
	for _, warning := range assessment.Warnings {
		fmt.Printf("  • %s\n", warning)
	}
	return nil
}

// manifest is the YAML layout accepted by apply
type manifest struct {
	DesiredStates []reconcile.DesiredState `yaml:"desired_states"`
}

// applyCmd converges the device toward a desired-state manifest
var applyCmd = &cobra.Command{
	Use:   "apply <manifest.yaml>",
	Short: "Converge the device toward a desired-state manifest",
	Long: `Apply a YAML manifest of desired states. Each state is checked
against the live configuration first: states the device already satisfies
are skipped, the rest are converged with bounded retries and verified
afterwards. Every converged state runs through the change-safety sequence
and lands in the change journal.`,
	Example: `  rosguard apply routing.yaml

  # Manifest format:
  #   desired_states:
  #     - resource_type: route
  #       priority: 10
  #       properties:
  #         dst-address: 0.0.0.0/0
  #         gateway: 10.0.1.254`,
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&assumeYes, "yes", false, "Skip the approval prompt")
	applyCmd.Flags().BoolVar(&forceFlag, "force", false, "Proceed past failed pre-flight checks")
	applyCmd.Flags().IntVar(&maxRetries, "retries", reconcile.DefaultMaxRetries, "Convergence attempts per state")
}

func runApply(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("failed to parse manifest: %w", err)
	}
	if len(m.DesiredStates) == 0 {
		return fmt.Errorf("manifest declares no desired states")
	}

	gateway, sessions, label, err := connect()
	if err != nil {
		return err
	}
	defer sessions.Shutdown()

	orchestrator, err := newOrchestrator(gateway)
	if err != nil {
		return err
	}

	fmt.Println(ui.RenderCommandHeader(ui.HeaderConfig{
		Title:   "Apply Desired State",
		Command: "rosguard apply " + args[0],
		Params: map[string]string{
			"Device": label,
			"States": fmt.Sprintf("%d", len(m.DesiredStates)),
		},
	}))
	fmt.Println()

	// Highest priority first, matching the reconciler's own ordering
	states := make([]reconcile.DesiredState, len(m.DesiredStates))
	copy(states, m.DesiredStates)
	sort.SliceStable(states, func(i, j int) bool {
		return states[i].Priority > states[j].Priority
	})

	failures := 0
	for i := range states {
		state := states[i]
		name := state.ResourceType
		if state.ID != "" {
			name += ":" + state.ID
		}

		record := orchestrator.ExecuteSafe(context.Background(), safety.Request{
			Device:    label,
			Category:  categoryForResource(state.ResourceType),
			Operation: "converge " + name,
			Desired:   &state,
			Force:     forceFlag,
			Approve:   approveFunc(),
			Affected:  []string{name},
			Run: func(r safety.Runner) error {
				results := orchestrator.Reconciler().EnsureDesiredState(
					context.Background(), []reconcile.DesiredState{state}, maxRetries)
				for _, result := range results {
					if result.Outcome != reconcile.OutcomeMatches {
						return fmt.Errorf("convergence failed: %s", result.Err)
					}
				}
				return nil
			},
		})

		if record.Failed() {
			failures++
			fmt.Printf("%s %s  %s\n", ui.FailureMarker, name, record.Error)
		} else {
			fmt.Printf("%s %s  %s\n", ui.SuccessMarker, name, record.Status)
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d states failed to converge", failures, len(states))
	}
	fmt.Printf("\nAll %d states converged.\n", len(states))
	return nil
}

// historyCmd lists recorded changes from the journal
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded changes",
	Long: `List change records from the persistent journal: what ran, its
risk tier, the outcome, and whether a rollback plan is still available.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().BoolVar(&historyAll, "all", false, "Include changes without an open rollback plan")
}

func runHistory(cmd *cobra.Command, args []string) error {
	journalPath, err := config.GetJournalPath()
	if err != nil {
		return err
	}
	records, err := safety.NewJournal(journalPath).Load()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No recorded changes.")
		return nil
	}

	// Newest first
	for i := len(records) - 1; i >= 0; i-- {
		record := records[i]
		if !historyAll && !record.Rollbackable() {
			continue
		}
		printRecord(record)
	}
	if !historyAll {
		fmt.Println("Showing changes with an open rollback plan; use --all for everything.")
	}
	return nil
}

func printRecord(record *safety.ChangeRecord) {
	fmt.Printf("%s  %s  [%s/%s]  %s\n",
		record.Timestamp.Format(time.RFC3339),
		record.ID,
		record.Category,
		record.Tier,
		record.Status)
	fmt.Printf("    %s\n", record.Operation)
	if record.Error != "" {
		fmt.Printf("    error: %s\n", record.Error)
	}
	if record.Rollbackable() {
		fmt.Printf("    rollback: available (plan %s)\n", record.Plan.ID)
	}
	fmt.Println()
}

// rollbackCmd undoes a recorded change
var rollbackCmd = &cobra.Command{
	Use:   "rollback <change-id>",
	Short: "Undo a recorded change",
	Long: `Execute the rollback plan of a recorded change. Best-effort
plans replay inverse commands; backup plans restore the pre-change
configuration backup (which typically reboots the device).`,
	Args: cobra.ExactArgs(1),
	RunE: runRollback,
}

func runRollback(cmd *cobra.Command, args []string) error {
	gateway, sessions, _, err := connect()
	if err != nil {
		return err
	}
	defer sessions.Shutdown()

	orchestrator, err := newOrchestrator(gateway)
	if err != nil {
		return err
	}

	changeID := args[0]
	record := orchestrator.History().Get(changeID)
	if record == nil {
		return fmt.Errorf("no change record with id %s; see 'rosguard history'", changeID)
	}
	if record.Plan != nil && record.Plan.BestEffort && !assumeYes {
		ok := ui.ConfirmDangerousOperation(
			"BEST-EFFORT ROLLBACK",
			[]string{
				"This plan replays inverse commands and may not restore every setting",
				"Review the device state after it completes",
			},
			"")
		if !ok {
			return fmt.Errorf("rollback cancelled")
		}
	}

	if err := orchestrator.Rollback(changeID); err != nil {
		hints := append(troubleshooting(err),
			"Inspect the change journal with 'rosguard history --all'")
		fmt.Println(ui.RenderFailure("Rollback failed", err, hints))
		return err
	}

	fmt.Println(ui.RenderSuccess("Rollback completed", map[string]string{
		"Change ID": changeID,
		"Status":    string(safety.StatusRolledBack),
	}))
	return nil
}

func init() {
	rollbackCmd.Flags().BoolVar(&assumeYes, "yes", false, "Skip the confirmation prompt")
}

// scanCmd discovers devices on the network
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for SSH-reachable devices on the network",
	Long: `Scan for devices using mDNS/DNS-SD discovery.

This command listens for mDNS advertisements of SSH services and displays
all discovered devices with their addresses and metadata.`,
	Example: `  # Scan for 10 seconds (default)
  rosguard scan

  # Quick 3-second scan
  rosguard scan --timeout 3`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().IntVar(&scanTimeout, "timeout", 10, "Scan timeout in seconds")
}

func runScan(cmd *cobra.Command, args []string) error {
	timeout := time.Duration(scanTimeout) * time.Second
	if !cmd.Flags().Changed("timeout") {
		if registry, err := config.LoadRegistry(); err == nil {
			timeout = registry.Preferences.DiscoverTimeoutDuration()
		}
	}
	fmt.Printf("Scanning for devices (timeout: %s)...\n\n", timeout)

	devices, err := discovery.ScanForDevices(timeout)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if len(devices) == 0 {
		fmt.Println("No devices found.")
		fmt.Println("\nTroubleshooting:")
		fmt.Println("  - Ensure the device advertises its SSH service over mDNS")
		fmt.Println("  - Verify your computer is on the same network segment")
		fmt.Println("  - Try increasing --timeout for slower networks")
		fmt.Println("  - Use --device flag to specify an address manually")
		return nil
	}

	fmt.Printf("Found %d device(s):\n\n", len(devices))

	for i, device := range devices {
		fmt.Printf("%d. %s\n", i+1, device.Name)
		fmt.Printf("   Address: %s\n", device.Addr())
		if len(device.Metadata) > 0 {
			fmt.Printf("   Metadata: %v\n", device.Metadata)
		}
		fmt.Println()
	}

	fmt.Println("Use 'rosguard devices add <name> <address>' to register a device")
	return nil
}

// devicesCmd manages the device registry
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Manage the device registry",
	RunE:  runDevicesList,
}

var devicesAddCmd = &cobra.Command{
	Use:   "add <name> <address>",
	Short: "Add or update a device entry",
	Args:  cobra.ExactArgs(2),
	RunE:  runDevicesAdd,
}

var devicesDefaultCmd = &cobra.Command{
	Use:   "default <name>",
	Short: "Set the default device",
	Args:  cobra.ExactArgs(1),
	RunE:  runDevicesDefault,
}

func init() {
	devicesCmd.AddCommand(devicesAddCmd)
	devicesCmd.AddCommand(devicesDefaultCmd)
}

func runDevicesList(cmd *cobra.Command, args []string) error {
	registry, err := config.LoadRegistry()
	if err != nil {
		return err
	}
	if len(registry.Devices) == 0 {
		fmt.Println("No devices registered. Use 'rosguard devices add <name> <address>'.")
		return nil
	}

	names := make([]string, 0, len(registry.Devices))
	for name := range registry.Devices {
		names = append(names, name)
	}
	sort.Strings(names)

	defaultName := ""
	if registry.Preferences != nil {
		defaultName = registry.Preferences.DefaultDevice
	}

	for _, name := range names {
		device := registry.Devices[name]
		marker := " "
		if name == defaultName {
			marker = "*"
		}
		port := device.Port
		if port == 0 {
			port = devlink.DefaultSSHPort
		}
		fmt.Printf("%s %-20s %s:%d", marker, name, device.Address, port)
		if device.Nickname != "" {
			fmt.Printf("  (%s)", device.Nickname)
		}
		if !device.LastSeen.IsZero() {
			fmt.Printf("  last seen %s", device.LastSeen.Format("2006-01-02 15:04"))
		}
		fmt.Println()
	}
	return nil
}

func runDevicesAdd(cmd *cobra.Command, args []string) error {
	registry, err := config.LoadRegistry()
	if err != nil {
		return err
	}

	name, address := args[0], args[1]
	device := registry.EnsureDevice(name)
	device.Address = address
	if portFlag != 0 {
		device.Port = portFlag
	}
	if userFlag != "" {
		device.Username = userFlag
	}

	if err := registry.Save(); err != nil {
		return err
	}
	fmt.Printf("Registered %s (%s)\n", name, address)
	return nil
}

func runDevicesDefault(cmd *cobra.Command, args []string) error {
	registry, err := config.LoadRegistry()
	if err != nil {
		return err
	}

	name := args[0]
	if registry.GetDevice(name) == nil {
		return fmt.Errorf("unknown device %q; register it first with 'rosguard devices add'", name)
	}
	if registry.Preferences == nil {
		registry.Preferences = &config.Preferences{}
	}
	registry.Preferences.DefaultDevice = name

	if err := registry.Save(); err != nil {
		return err
	}
	fmt.Printf("Default device set to %s\n", name)
	return nil
}
