package safety

import (
	"errors"
	"time"

	"github.com/muurk/rosguard/internal/risk"
)

// ErrSafetyCheckFailed marks a change refused because a required pre-flight
// check did not pass and Force was not set
var ErrSafetyCheckFailed = errors.New("required pre-flight check failed")

// Status tracks a change record through its lifecycle
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRolledBack Status = "rolled-back"
)

// PlanStatus tracks a rollback plan independently of its change record
type PlanStatus string

const (
	PlanPlanned    PlanStatus = "planned"
	PlanInProgress PlanStatus = "in-progress"
	PlanCompleted  PlanStatus = "completed"
	PlanFailed     PlanStatus = "failed"
)

// Change categories. They select pre-flight checks, rollback verification
// commands, and the category risk floor.
const (
	CategoryFirewall  = "firewall"
	CategoryRouting   = "routing"
	CategoryInterface = "interface"
	CategoryUser      = "user"
	CategorySystem    = "system"
	CategoryDHCP      = "dhcp"
	CategoryDNS       = "dns"
	CategoryOther     = "other"
)

// RollbackPlan describes how to undo one change. Plans built from a
// configuration backup restore the whole device; best-effort plans replay
// inverse commands and may leave residue.
type RollbackPlan struct {
	ID       string `yaml:"id"`
	ChangeID string `yaml:"change_id"`

	// Commands are executed in order to undo the change
	Commands []string `yaml:"commands"`

	// VerifyCommands are read-only probes run after the rollback
	VerifyCommands []string `yaml:"verify_commands,omitempty"`

	EstimatedDuration time.Duration `yaml:"estimated_duration,omitempty"`

	Status PlanStatus `yaml:"status"`

	// BestEffort marks plans that cannot guarantee full restoration
	BestEffort bool `yaml:"best_effort,omitempty"`
}

// CheckResult records one pre-flight probe
type CheckResult struct {
	Name     string        `yaml:"name"`
	Required bool          `yaml:"required"`
	Passed   bool          `yaml:"passed"`
	Duration time.Duration `yaml:"duration"`
	Detail   string        `yaml:"detail,omitempty"`
}

// ChangeRecord is the durable audit entry for one guarded change
type ChangeRecord struct {
	ID        string    `yaml:"id"`
	Timestamp time.Time `yaml:"timestamp"`
	Device    string    `yaml:"device,omitempty"`
	Category  string    `yaml:"category"`
	Operation string    `yaml:"operation"`

	Tier risk.Tier `yaml:"tier"`

	// BackupName is the on-device backup taken before the change, empty
	// when the tier did not require one
	BackupName string `yaml:"backup_name,omitempty"`

	// ConfigExport is the textual configuration captured before the
	// change, for diffing and forensics
	ConfigExport string `yaml:"config_export,omitempty"`

	Checks []CheckResult `yaml:"checks,omitempty"`

	Plan *RollbackPlan `yaml:"plan,omitempty"`

	Status Status `yaml:"status"`
	Error  string `yaml:"error,omitempty"`

	// Cause is the underlying typed error, kept for in-process rendering
	// (classification, troubleshooting hints). It does not survive the
	// journal round trip; Error carries the durable text.
	Cause error `yaml:"-"`

	// Affected lists the touched resources, e.g. "firewall:input"
	Affected []string `yaml:"affected,omitempty"`
}

// Failed reports whether the record ended in a failure state
func (r *ChangeRecord) Failed() bool {
	return r.Status == StatusFailed
}

// Rollbackable reports whether the record still has an unexecuted plan
func (r *ChangeRecord) Rollbackable() bool {
	return r.Plan != nil && r.Status != StatusRolledBack && r.Plan.Status != PlanCompleted
}
