package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBillingTick runs the daily invoice pass.
	TaskBillingTick = "billing:invoice_tick"
	// TaskGLIntegrity sweeps the journal for unbalanced events.
	TaskGLIntegrity = "billing:gl_integrity"
)

// BillingTickPayload carries scheduling metadata. A zero PropertyID bills every property.
type BillingTickPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
	PropertyID   int64     `json:"property_id,omitempty"`
}

// NewBillingTickTask constructs the invoice tick task.
func NewBillingTickTask(payload BillingTickPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBillingTick, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// GLIntegrityPayload carries scheduling metadata.
type GLIntegrityPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewGLIntegrityTask constructs the ledger integrity task.
func NewGLIntegrityTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(GLIntegrityPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGLIntegrity, body, asynq.Queue(QueueDefault)), nil
}
