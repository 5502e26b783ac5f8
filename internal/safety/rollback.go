package safety

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/muurk/rosguard/internal/devlink"
	"github.com/muurk/rosguard/internal/logging"
)

// Rollback executes the rollback plan attached to a change record. It is
// idempotent: invoking it on an already-completed plan does nothing and
// returns nil. Device warnings on stderr are logged without aborting; only
// transport failures and classified device errors stop the plan.
func (o *Orchestrator) Rollback(changeID string) error {
	record := o.history.Get(changeID)
	if record == nil {
		return fmt.Errorf("no change record with id %s", changeID)
	}
	plan := record.Plan
	if plan == nil {
		return fmt.Errorf("change %s has no rollback plan", changeID)
	}
	if plan.Status == PlanCompleted {
		return nil
	}

	plan.Status = PlanInProgress
	o.persist()

	for _, command := range plan.Commands {
		res, err := o.runner.ExecuteFresh(command)
		if err != nil {
			if benignDeviceWarning(err) {
				logging.Warn("Rollback step produced a warning",
					zap.String("change_id", changeID),
					zap.Error(err))
				logging.LogRollback(changeID, command, true)
				continue
			}
			plan.Status = PlanFailed
			logging.LogRollback(changeID, command, false)
			o.persist()
			return fmt.Errorf("rollback step failed: %w", err)
		}
		if res.Stderr != "" {
			logging.Warn("Rollback step wrote to stderr",
				zap.String("change_id", changeID),
				zap.String("stderr", res.Stderr))
		}
		logging.LogRollback(changeID, command, true)
	}

	for _, command := range plan.VerifyCommands {
		if _, err := o.runner.ExecuteFresh(command); err != nil {
			plan.Status = PlanFailed
			o.persist()
			return fmt.Errorf("rollback verification failed: %w", err)
		}
	}

	plan.Status = PlanCompleted
	record.Status = StatusRolledBack
	logging.LogChange(changeID, record.Category, record.Operation, string(record.Status))
	o.persist()
	return nil
}

// benignDeviceWarning reports whether an error carries device output that
// matched no known error sentinel. Restore commands chatter on stderr
// without failing; aborting on that chatter would strand half-applied
// rollbacks.
func benignDeviceWarning(err error) bool {
	var devErr *devlink.DeviceError
	if !errors.As(err, &devErr) {
		return false
	}
	if devErr.RawOutput == "" {
		return false
	}
	return devlink.ClassifyDeviceOutput(devErr.RawOutput) == devlink.KindUnknown
}
