package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuthzIntegrityScan verifies no persisted permission id is missing
	// from the catalog.
	TaskAuthzIntegrityScan = "authz:integrity-scan"
	// TaskAuditRetentionSweep archives ledger entries past the retention
	// horizon.
	TaskAuditRetentionSweep = "audit:retention-sweep"
)

// IntegrityScanPayload configures an integrity scan run.
type IntegrityScanPayload struct {
	// ReportOnly keeps violations in the log without failing the task.
	ReportOnly bool `json:"report_only"`
}

// RetentionSweepPayload configures a retention sweep run.
type RetentionSweepPayload struct {
	RetentionDays int `json:"retention_days"`
}

// NewIntegrityScanTask constructs an Asynq task.
func NewIntegrityScanTask(payload IntegrityScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuthzIntegrityScan, data), nil
}

// NewRetentionSweepTask constructs an Asynq task.
func NewRetentionSweepTask(payload RetentionSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRetentionSweep, data), nil
}
