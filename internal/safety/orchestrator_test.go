package safety

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/muurk/rosguard/internal/devlink"
	"github.com/muurk/rosguard/internal/reconcile"
	"github.com/muurk/rosguard/internal/risk"
)

// fakeRunner serves canned stdout per command and records everything it
// was asked to run
type fakeRunner struct {
	commands []string
	outputs  map[string]string
	errs     map[string]error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		outputs: make(map[string]string),
		errs:    make(map[string]error),
	}
}

func (f *fakeRunner) Execute(command string) (*devlink.CommandResult, error) {
	return f.run(command)
}

func (f *fakeRunner) ExecuteFresh(command string) (*devlink.CommandResult, error) {
	return f.run(command)
}

func (f *fakeRunner) run(command string) (*devlink.CommandResult, error) {
	f.commands = append(f.commands, command)
	if err := f.errs[command]; err != nil {
		return nil, err
	}
	return &devlink.CommandResult{Stdout: f.outputs[command]}, nil
}

func (f *fakeRunner) ran(prefix string) bool {
	for _, c := range f.commands {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func TestExecuteSafeHappyPath(t *testing.T) {
	runner := newFakeRunner()
	runner.outputs["/export"] = "# config\n/ip firewall filter\nadd chain=input action=accept"

	o := NewOrchestrator(runner)
	record := o.ExecuteSafe(context.Background(), Request{
		Category:  CategoryFirewall,
		Operation: "allow established connections",
		Commands:  []string{"/ip firewall filter add chain=input connection-state=established action=accept"},
	})

	if record.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed (error: %s)", record.Status, record.Error)
	}
	if record.Tier != risk.TierHigh {
		t.Errorf("tier = %s, want HIGH for a firewall change", record.Tier)
	}
	if record.BackupName == "" {
		t.Error("HIGH tier change should have taken a backup")
	}
	if !runner.ran("/system backup save name=" + record.BackupName) {
		t.Error("backup command never reached the device")
	}
	if record.ConfigExport == "" {
		t.Error("configuration export was not captured")
	}
	if record.Plan == nil {
		t.Fatal("no rollback plan")
	}
	if record.Plan.BestEffort {
		t.Error("backup restore plan should not be best-effort")
	}
	if len(record.Checks) == 0 {
		t.Error("pre-flight check results missing from record")
	}
	if !runner.ran("/ip firewall filter add") {
		t.Error("the change itself never reached the device")
	}
}

func TestExecuteSafeFailedRequiredCheck(t *testing.T) {
	runner := newFakeRunner()
	runner.errs["/system identity print"] = devlink.NewTimeoutError("/system identity print", errors.New("timed out"))

	ran := false
	o := NewOrchestrator(runner)
	record := o.ExecuteSafe(context.Background(), Request{
		Category:  CategoryRouting,
		Operation: "replace default route",
		Run: func(r Runner) error {
			ran = true
			return nil
		},
	})

	if record.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", record.Status)
	}
	if ran {
		t.Error("operation ran despite a failed required check")
	}
	if runner.ran("/system backup save") {
		t.Error("backup taken despite a failed required check")
	}

	var sawFailure bool
	for _, c := range record.Checks {
		if c.Name == "device-reachable" && !c.Passed {
			sawFailure = true
		}
	}
	if !sawFailure {
		t.Error("record does not show the failed check")
	}
}

func TestExecuteSafeForceOverridesChecks(t *testing.T) {
	runner := newFakeRunner()
	runner.errs["/ip route print detail"] = devlink.NewTimeoutError("/ip route print detail", errors.New("timed out"))

	o := NewOrchestrator(runner)
	record := o.ExecuteSafe(context.Background(), Request{
		Category:  CategoryRouting,
		Operation: "replace default route",
		Commands:  []string{"/ip route add dst-address=0.0.0.0/0 gateway=10.0.1.254"},
		Force:     true,
	})

	if record.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed with force (error: %s)", record.Status, record.Error)
	}
}

func TestExecuteSafeIdempotentShortCircuit(t *testing.T) {
	runner := newFakeRunner()
	runner.outputs["/ip route print detail"] = "0  dst-address=0.0.0.0/0 gateway=10.0.1.1"

	o := NewOrchestrator(runner)
	record := o.ExecuteSafe(context.Background(), Request{
		Category:  CategoryRouting,
		Operation: "ensure default route",
		Commands:  []string{"/ip route add dst-address=0.0.0.0/0 gateway=10.0.1.1"},
		Desired: &reconcile.DesiredState{
			ResourceType: "route",
			Properties:   map[string]any{"dst-address": "0.0.0.0/0", "gateway": "10.0.1.1"},
		},
	})

	if record.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", record.Status)
	}
	if record.BackupName != "" {
		t.Error("no-op change should not take a backup")
	}
	if record.Plan != nil {
		t.Error("no-op change should not build a rollback plan")
	}
	if runner.ran("/ip route add") {
		t.Error("device mutated although the desired state already held")
	}
}

func TestExecuteSafeApprovalDenied(t *testing.T) {
	runner := newFakeRunner()

	o := NewOrchestrator(runner)
	record := o.ExecuteSafe(context.Background(), Request{
		Category:  CategoryFirewall,
		Operation: "drop all input",
		Commands:  []string{"/ip firewall filter add chain=input action=drop"},
		Approve: func(command string, a *risk.Assessment) bool {
			return false
		},
	})

	if record.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", record.Status)
	}
	if !strings.Contains(record.Error, "not approved") {
		t.Errorf("error = %q", record.Error)
	}
	if runner.ran("/ip firewall filter add") {
		t.Error("device mutated without approval")
	}
	if runner.ran("/system backup save") {
		t.Error("backup taken before approval")
	}
}

func TestExecuteSafePostCheckDivergence(t *testing.T) {
	runner := newFakeRunner()
	// Listing stays empty, so the post-change check reports MISSING
	o := NewOrchestrator(runner)
	record := o.ExecuteSafe(context.Background(), Request{
		Category:  CategoryRouting,
		Operation: "add default route",
		Commands:  []string{"/ip route add dst-address=0.0.0.0/0 gateway=10.0.1.1"},
		Desired: &reconcile.DesiredState{
			ResourceType: "route",
			Properties:   map[string]any{"dst-address": "0.0.0.0/0", "gateway": "10.0.1.1"},
		},
	})

	if record.Status != StatusFailed {
		t.Fatalf("status = %s, want failed when the device did not converge", record.Status)
	}
	if !strings.Contains(record.Error, "not converged") {
		t.Errorf("error = %q", record.Error)
	}
}

func TestAssessMergesWarningsAcrossCommands(t *testing.T) {
	o := NewOrchestrator(newFakeRunner())
	assessment := o.Assess(Request{
		Category: CategoryRouting,
		Commands: []string{
			"/ip route remove [find dst-address=10.9.0.0/16]",
			"/user remove admin",
		},
	})

	if assessment.Tier != risk.TierCritical {
		t.Fatalf("tier = %s, want CRITICAL from the user removal", assessment.Tier)
	}

	var sawRouteWarning bool
	for _, w := range assessment.Warnings {
		if strings.Contains(w, "black-hole") {
			sawRouteWarning = true
		}
	}
	if !sawRouteWarning {
		t.Error("route-removal warning was dropped when a later command raised the tier")
	}
}

func TestExecuteSafeFailureKeepsCause(t *testing.T) {
	runner := newFakeRunner()
	command := "/ip route add dst-address=0.0.0.0/0 gateway=10.0.1.254"
	runner.errs[command] = devlink.NewDeviceOutputError(command, "not enough permissions (9)")

	o := NewOrchestrator(runner)
	record := o.ExecuteSafe(context.Background(), Request{
		Category:  CategoryRouting,
		Operation: "replace default route",
		Commands:  []string{command},
	})

	if record.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", record.Status)
	}
	if record.Cause == nil {
		t.Fatal("failed record lost its underlying error")
	}
	var devErr *devlink.DeviceError
	if !errors.As(record.Cause, &devErr) {
		t.Fatalf("Cause = %v, want a classifiable device error", record.Cause)
	}
	if devErr.Kind != devlink.KindPermission {
		t.Errorf("Kind = %v, want permission denied", devErr.Kind)
	}
}

func TestExecuteSafeCriticalAutoRollback(t *testing.T) {
	runner := newFakeRunner()

	o := NewOrchestrator(runner)
	record := o.ExecuteSafe(context.Background(), Request{
		Category:  CategorySystem,
		Operation: "remove admin user",
		Commands:  []string{"/user remove admin"},
		Run: func(r Runner) error {
			return errors.New("device rebooted mid-change")
		},
		UndoCommands: []string{"/user add name=admin group=full"},
	})

	if record.Tier != risk.TierCritical {
		t.Fatalf("tier = %s, want CRITICAL", record.Tier)
	}
	if record.Plan == nil {
		t.Fatal("no rollback plan")
	}
	if record.Plan.Status != PlanCompleted {
		t.Errorf("plan status = %s, want completed after auto-rollback", record.Plan.Status)
	}
	if record.Status != StatusRolledBack {
		t.Errorf("record status = %s, want rolled-back", record.Status)
	}
	if !runner.ran("/user add name=admin") {
		t.Error("undo command never reached the device")
	}
}

func TestRollbackIdempotent(t *testing.T) {
	runner := newFakeRunner()

	o := NewOrchestrator(runner)
	record := o.ExecuteSafe(context.Background(), Request{
		Category:     CategoryFirewall,
		Operation:    "add drop rule",
		Commands:     []string{"/ip firewall filter add chain=input action=drop"},
		UndoCommands: []string{"/ip firewall filter remove [find chain=input action=drop]"},
	})
	if record.Status != StatusCompleted {
		t.Fatalf("setup change failed: %s", record.Error)
	}
	if !record.Plan.BestEffort {
		t.Error("caller-supplied undo commands should yield a best-effort plan")
	}

	if err := o.Rollback(record.ID); err != nil {
		t.Fatalf("first rollback: %v", err)
	}
	if record.Plan.Status != PlanCompleted {
		t.Fatalf("plan status = %s", record.Plan.Status)
	}
	if record.Status != StatusRolledBack {
		t.Fatalf("record status = %s", record.Status)
	}

	before := len(runner.commands)
	if err := o.Rollback(record.ID); err != nil {
		t.Fatalf("second rollback should be a no-op, got %v", err)
	}
	if len(runner.commands) != before {
		t.Error("second rollback re-ran device commands")
	}
	if record.Plan.Status != PlanCompleted {
		t.Errorf("plan status changed to %s", record.Plan.Status)
	}
}

func TestRollbackBenignStderrContinues(t *testing.T) {
	runner := newFakeRunner()
	undo := "/system backup load name=rosguard-pre-test"
	runner.errs[undo] = devlink.NewDeviceOutputError(undo, "Restoring system configuration, please stand by")

	o := NewOrchestrator(runner)
	record := o.ExecuteSafe(context.Background(), Request{
		Category:     CategoryFirewall,
		Operation:    "add drop rule",
		Commands:     []string{"/ip firewall filter add chain=input action=drop"},
		UndoCommands: []string{undo},
	})
	if record.Status != StatusCompleted {
		t.Fatalf("setup change failed: %s", record.Error)
	}

	if err := o.Rollback(record.ID); err != nil {
		t.Fatalf("unclassified device chatter should not abort rollback: %v", err)
	}
	if record.Plan.Status != PlanCompleted {
		t.Errorf("plan status = %s", record.Plan.Status)
	}
}

func TestRollbackClassifiedErrorFails(t *testing.T) {
	runner := newFakeRunner()
	undo := "/ip firewall filter remove [find chain=input]"
	runner.errs[undo] = devlink.NewDeviceOutputError(undo, "syntax error (line 1 column 25)")

	o := NewOrchestrator(runner)
	record := o.ExecuteSafe(context.Background(), Request{
		Category:     CategoryFirewall,
		Operation:    "add drop rule",
		Commands:     []string{"/ip firewall filter add chain=input action=drop"},
		UndoCommands: []string{undo},
	})
	if record.Status != StatusCompleted {
		t.Fatalf("setup change failed: %s", record.Error)
	}

	if err := o.Rollback(record.ID); err == nil {
		t.Fatal("classified device error should fail the rollback")
	}
	if record.Plan.Status != PlanFailed {
		t.Errorf("plan status = %s, want failed", record.Plan.Status)
	}
}

func TestRollbackUnknownChange(t *testing.T) {
	o := NewOrchestrator(newFakeRunner())
	if err := o.Rollback("no-such-id"); err == nil {
		t.Fatal("expected error for unknown change id")
	}
}
