package jobs

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOverdueSweep re-derives the status of unpaid documents whose due date passed.
	TaskOverdueSweep = "balances:overdue_sweep"
	// TaskReconcile recomputes every stored aggregate and counts drift.
	TaskReconcile = "balances:reconcile"
)

// SweepPayload carries scheduling metadata shared by the balance jobs.
type SweepPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewOverdueSweepTask constructs the overdue sweep task.
func NewOverdueSweepTask(at time.Time) (*asynq.Task, error) {
	return newSweepTask(TaskOverdueSweep, at)
}

// NewReconcileTask constructs the reconciliation task.
func NewReconcileTask(at time.Time) (*asynq.Task, error) {
	return newSweepTask(TaskReconcile, at)
}

var taskBuilders = map[string]func(time.Time) (*asynq.Task, error){
	TaskOverdueSweep: NewOverdueSweepTask,
	TaskReconcile:    NewReconcileTask,
}

// TaskNames lists the task types that can be triggered by name.
func TaskNames() []string {
	names := make([]string, 0, len(taskBuilders))
	for name := range taskBuilders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewTask builds the task registered under name.
func NewTask(name string, at time.Time) (*asynq.Task, error) {
	build, ok := taskBuilders[name]
	if !ok {
		return nil, fmt.Errorf("jobs: unknown task %q", name)
	}
	return build(at)
}

func newSweepTask(typ string, at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SweepPayload{ScheduledFor: at.UTC()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

func decodeSweep(t *asynq.Task) (SweepPayload, error) {
	var payload SweepPayload
	if len(t.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return payload, nil
}
