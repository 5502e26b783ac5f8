package safety

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/muurk/rosguard/internal/devlink"
	"github.com/muurk/rosguard/internal/logging"
	"github.com/muurk/rosguard/internal/reconcile"
	"github.com/muurk/rosguard/internal/risk"
)

// Runner executes device commands. *devlink.Gateway satisfies it.
type Runner interface {
	Execute(command string) (*devlink.CommandResult, error)
	ExecuteFresh(command string) (*devlink.CommandResult, error)
}

// categoryFloor is the minimum risk tier per change category. A command
// assessment can raise the tier above the floor, never lower it.
var categoryFloor = map[string]risk.Tier{
	CategoryFirewall:  risk.TierHigh,
	CategoryRouting:   risk.TierHigh,
	CategoryInterface: risk.TierHigh,
	CategoryUser:      risk.TierHigh,
	CategorySystem:    risk.TierHigh,
	CategoryDHCP:      risk.TierMedium,
	CategoryDNS:       risk.TierMedium,
	CategoryOther:     risk.TierMedium,
}

// verifyCommandsFor maps a category to the read-only probes run after a
// rollback
var verifyCommandsFor = map[string][]string{
	CategoryFirewall:  {"/ip firewall filter print detail"},
	CategoryRouting:   {"/ip route print detail"},
	CategoryInterface: {"/interface print detail"},
	CategoryUser:      {"/user print detail"},
	CategorySystem:    {"/system resource print"},
	CategoryDHCP:      {"/ip dhcp-server print detail"},
	CategoryDNS:       {"/ip dns print"},
}

// rollbackEstimates are rough per-category durations shown to operators
// before they commit to a rollback
var rollbackEstimates = map[string]time.Duration{
	CategoryFirewall: 10 * time.Second,
	CategoryRouting:  10 * time.Second,
	CategorySystem:   2 * time.Minute,
}

// Request describes one guarded change
type Request struct {
	// Device labels the change record; purely informational
	Device string

	// Category selects pre-flight checks, the risk floor, and rollback
	// verification
	Category string

	// Operation is a human-readable description for the audit trail
	Operation string

	// Commands are the mutating commands to execute. They feed the risk
	// assessment and, when Run is nil, are executed in order.
	Commands []string

	// Run overrides command execution with an arbitrary thunk
	Run func(r Runner) error

	// Desired enables the idempotency short-circuit and post-change
	// verification
	Desired *reconcile.DesiredState

	// Force proceeds past failed required pre-flight checks
	Force bool

	// Approve gates tiers that require pre-approval. A nil Approve means
	// the caller approved out of band.
	Approve func(command string, a *risk.Assessment) bool

	// UndoCommands build a best-effort rollback plan. Without them a
	// backup restore plan is used when a backup was taken.
	UndoCommands []string

	// Affected lists the touched resources for the record
	Affected []string
}

// Orchestrator wraps mutating operations in the full change-safety
// sequence: risk assessment, idempotency short-circuit, pre-flight checks,
// approval, backup, rollback planning, execution, and verification.
type Orchestrator struct {
	runner     Runner
	classifier *risk.Classifier
	reconciler *reconcile.Reconciler
	history    *History
	journal    *Journal
}

// NewOrchestrator creates an orchestrator over the given runner
func NewOrchestrator(runner Runner) *Orchestrator {
	return &Orchestrator{
		runner:     runner,
		classifier: risk.NewClassifier(),
		reconciler: reconcile.NewReconciler(runner),
		history:    NewHistory(0),
	}
}

// WithJournal attaches persistent storage and loads any prior records
func (o *Orchestrator) WithJournal(j *Journal) error {
	records, err := j.Load()
	if err != nil {
		return err
	}
	o.history.Restore(records)
	o.journal = j
	return nil
}

// History exposes the change record log
func (o *Orchestrator) History() *History {
	return o.history
}

// Reconciler exposes the desired-state engine sharing this orchestrator's
// runner
func (o *Orchestrator) Reconciler() *reconcile.Reconciler {
	return o.reconciler
}

// Assess classifies the request's commands against its category floor
func (o *Orchestrator) Assess(req Request) *risk.Assessment {
	floor, ok := categoryFloor[req.Category]
	if !ok {
		floor = risk.TierMedium
	}

	assessment := &risk.Assessment{
		Tier:   floor,
		Reason: fmt.Sprintf("category %q change", req.Category),
	}
	for _, command := range req.Commands {
		a := o.classifier.Assess(command)
		if a.Tier > assessment.Tier {
			// Keep warnings already gathered from earlier commands
			a.Warnings = append(append([]string(nil), assessment.Warnings...), a.Warnings...)
			assessment = a
		} else {
			assessment.Warnings = append(assessment.Warnings, a.Warnings...)
		}
	}
	assessment.RequiresApproval = assessment.Tier >= risk.TierMedium
	assessment.RequiresBackup = assessment.Tier >= risk.TierHigh
	assessment.Impact = risk.ImpactForTier(assessment.Tier)
	return assessment
}

// ExecuteSafe runs one guarded change end to end. It always returns a
// change record; failures are recorded on it, never panicked. The record
// is appended to history (and the journal, if attached) whatever the
// outcome.
func (o *Orchestrator) ExecuteSafe(ctx context.Context, req Request) *ChangeRecord {
	record := &ChangeRecord{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Device:    req.Device,
		Category:  req.Category,
		Operation: req.Operation,
		Status:    StatusPending,
		Affected:  req.Affected,
	}
	o.history.Add(record)

	assessment := o.Assess(req)
	record.Tier = assessment.Tier
	logging.LogChange(record.ID, record.Category, record.Operation, string(record.Status))

	if err := ctx.Err(); err != nil {
		return o.fail(record, fmt.Sprintf("cancelled before start: %v", err))
	}

	// Idempotency short-circuit: a device already in the desired state
	// gets no mutation, no backup, no plan.
	if req.Desired != nil {
		check := o.reconciler.CheckIdempotency(req.Desired.ResourceType, req.Desired.Properties)
		if check.Outcome == reconcile.OutcomeMatches {
			record.Status = StatusCompleted
			record.Error = ""
			logging.LogChange(record.ID, record.Category, "no-op, already converged", string(record.Status))
			o.persist()
			return record
		}
	}

	checks, passed := runChecks(o.runner, req.Category)
	record.Checks = checks
	if !passed && !req.Force {
		return o.fail(record, ErrSafetyCheckFailed.Error())
	}
	if !passed {
		logging.Warn("Proceeding past failed pre-flight checks",
			zap.String("change_id", record.ID))
	}

	if assessment.RequiresApproval && req.Approve != nil {
		command := req.Operation
		if len(req.Commands) > 0 {
			command = req.Commands[0]
		}
		if !req.Approve(command, assessment) {
			return o.fail(record, "change was not approved")
		}
	}

	if err := ctx.Err(); err != nil {
		return o.fail(record, fmt.Sprintf("cancelled before execution: %v", err))
	}

	if assessment.RequiresBackup {
		if err := o.takeBackup(record); err != nil {
			record.Cause = err
			return o.fail(record, fmt.Sprintf("pre-change backup failed: %v", err))
		}
	}

	record.Plan = o.buildPlan(record, req)
	record.Status = StatusInProgress
	o.persist()

	if err := o.execute(req); err != nil {
		record.Cause = err
		o.fail(record, err.Error())
		o.maybeAutoRollback(record, assessment)
		return record
	}

	// Post-change verification: the change only counts as completed when
	// the device actually reached the desired state
	if req.Desired != nil {
		check := o.reconciler.CheckIdempotency(req.Desired.ResourceType, req.Desired.Properties)
		if check.Outcome != reconcile.OutcomeMatches {
			msg := fmt.Sprintf("post-change state is %s, not converged", check.Outcome)
			if check.Err != "" {
				msg += ": " + check.Err
			}
			o.fail(record, msg)
			o.maybeAutoRollback(record, assessment)
			return record
		}
	}

	record.Status = StatusCompleted
	logging.LogChange(record.ID, record.Category, record.Operation, string(record.Status))
	o.persist()
	return record
}

// execute runs the caller thunk, or the request commands in order
func (o *Orchestrator) execute(req Request) error {
	if req.Run != nil {
		return req.Run(o.runner)
	}
	for _, command := range req.Commands {
		if _, err := o.runner.ExecuteFresh(command); err != nil {
			return fmt.Errorf("command failed: %w", err)
		}
	}
	return nil
}

// takeBackup saves an on-device backup and captures a configuration
// export for diffing
func (o *Orchestrator) takeBackup(record *ChangeRecord) error {
	name := "rosguard-pre-" + record.ID[:8]
	if _, err := o.runner.ExecuteFresh("/system backup save name=" + name); err != nil {
		return err
	}
	record.BackupName = name

	// The export is nice-to-have; a failure only costs the diff
	if res, err := o.runner.ExecuteFresh("/export"); err == nil {
		record.ConfigExport = res.Stdout
	} else {
		logging.Warn("Configuration export failed",
			zap.String("change_id", record.ID),
			zap.Error(err))
	}
	return nil
}

// buildPlan constructs the rollback plan: caller-supplied inverse commands
// when available, otherwise a full backup restore
func (o *Orchestrator) buildPlan(record *ChangeRecord, req Request) *RollbackPlan {
	plan := &RollbackPlan{
		ID:                uuid.NewString(),
		ChangeID:          record.ID,
		VerifyCommands:    verifyCommandsFor[req.Category],
		EstimatedDuration: rollbackEstimates[req.Category],
		Status:            PlanPlanned,
	}

	switch {
	case len(req.UndoCommands) > 0:
		plan.Commands = req.UndoCommands
		plan.BestEffort = true
	case record.BackupName != "":
		plan.Commands = []string{"/system backup load name=" + record.BackupName}
		plan.EstimatedDuration = 2 * time.Minute
	default:
		return nil
	}
	return plan
}

// maybeAutoRollback triggers an automatic rollback for failed CRITICAL
// changes. Rollback errors are logged, never raised: the original failure
// is what the caller needs to see.
func (o *Orchestrator) maybeAutoRollback(record *ChangeRecord, assessment *risk.Assessment) {
	if assessment.Tier < risk.TierCritical || record.Plan == nil {
		return
	}
	if err := o.Rollback(record.ID); err != nil {
		logging.Error("Automatic rollback failed",
			zap.String("change_id", record.ID),
			zap.Error(err))
	}
}

// fail marks the record failed and persists it
func (o *Orchestrator) fail(record *ChangeRecord, msg string) *ChangeRecord {
	record.Status = StatusFailed
	record.Error = msg
	logging.LogChange(record.ID, record.Category, record.Operation, string(record.Status))
	o.persist()
	return record
}

// persist flushes history to the journal when one is attached
func (o *Orchestrator) persist() {
	if o.journal == nil {
		return
	}
	if err := o.journal.Save(o.history.All()); err != nil {
		logging.Warn("Failed to persist change journal", zap.Error(err))
	}
}
