package api

// TaskStatusEvent is posted by an out-of-process task executor to report the
// progress of one task. The metrics payload is the executor's raw result
// shape, arbitrary nested JSON; the service flattens and converts it into
// the task's MetricResult mapping when the event is recorded.
type TaskStatusEvent struct {
	TaskName    string         `json:"task_name" validate:"required"`
	State       State          `json:"state" validate:"required,oneof=pending running completed failed cancelled"`
	Metrics     map[string]any `json:"metrics,omitempty"`
	Error       *MessageInfo   `json:"error,omitempty"`
	StartedAt   DateTime       `json:"started_at,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	CompletedAt DateTime       `json:"completed_at,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// StatusEvent is the envelope the events endpoint accepts.
type StatusEvent struct {
	TaskStatusEvent *TaskStatusEvent `json:"task_status_event" validate:"required"`
}
