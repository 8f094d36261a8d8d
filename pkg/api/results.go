package api

// Score is a single numeric measurement with an optional label. Immutable
// once produced.
type Score struct {
	Value float64 `json:"value"`
	Label string  `json:"label,omitempty"`
}

func (s Score) Equal(other Score) bool {
	return s == other
}

// MetricResult holds the scores one metric reported. A metric may report
// sub-scores (precision and recall under one f1 metric, say); a metric with
// a single value stores it under its own name.
type MetricResult struct {
	Scores map[string]Score `json:"scores"`
}

func (m MetricResult) Equal(other MetricResult) bool {
	if len(m.Scores) != len(other.Scores) {
		return false
	}
	for name, score := range m.Scores {
		otherScore, ok := other.Scores[name]
		if !ok || !score.Equal(otherScore) {
			return false
		}
	}
	return true
}

// TaskResult is the outcome of one task: metric name to MetricResult plus a
// lifecycle state. Launchers create it empty and populate it as metrics
// complete; only the final returned value must be complete, or carry an
// explicit failed state and error when it is not.
type TaskResult struct {
	State       State                   `json:"state"`
	Metrics     map[string]MetricResult `json:"metrics,omitempty"`
	Error       *MessageInfo            `json:"error,omitempty"`
	StartedAt   DateTime                `json:"started_at,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	CompletedAt DateTime                `json:"completed_at,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

func NewTaskResult() TaskResult {
	return TaskResult{State: StatePending}
}

func (t TaskResult) Equal(other TaskResult) bool {
	if t.State != other.State || t.StartedAt != other.StartedAt || t.CompletedAt != other.CompletedAt {
		return false
	}
	if (t.Error == nil) != (other.Error == nil) {
		return false
	}
	if t.Error != nil && *t.Error != *other.Error {
		return false
	}
	if len(t.Metrics) != len(other.Metrics) {
		return false
	}
	for name, metric := range t.Metrics {
		otherMetric, ok := other.Metrics[name]
		if !ok || !metric.Equal(otherMetric) {
			return false
		}
	}
	return true
}

// EvaluationResult is what a launcher returns: a reference to the originating
// job by identifier, an overall state, task counters and the per-task
// results. After a successful run the task keys correspond 1:1 with the
// job's configured task names. Terminal once returned to the caller.
type EvaluationResult struct {
	JobID          string                `json:"job_id"`
	State          OverallState          `json:"state"`
	TotalTasks     int                   `json:"total_tasks"`
	CompletedTasks int                   `json:"completed_tasks,omitempty"`
	FailedTasks    int                   `json:"failed_tasks,omitempty"`
	Tasks          map[string]TaskResult `json:"tasks,omitempty"`
}

// NewEvaluationResult creates the result shell for a job with its task slots
// not yet populated.
func NewEvaluationResult(job *EvaluationJob) *EvaluationResult {
	return &EvaluationResult{
		JobID:      job.ID,
		State:      OverallStateRunning,
		TotalTasks: job.Config.Tasks.Len(),
		Tasks:      map[string]TaskResult{},
	}
}

func (r *EvaluationResult) Equal(other *EvaluationResult) bool {
	if r == nil || other == nil {
		return r == other
	}
	if r.JobID != other.JobID || r.State != other.State {
		return false
	}
	if r.TotalTasks != other.TotalTasks || r.CompletedTasks != other.CompletedTasks || r.FailedTasks != other.FailedTasks {
		return false
	}
	if len(r.Tasks) != len(other.Tasks) {
		return false
	}
	for name, task := range r.Tasks {
		otherTask, ok := other.Tasks[name]
		if !ok || !task.Equal(otherTask) {
			return false
		}
	}
	return true
}

// Finalize sets the counters and overall state from the populated task slots.
func (r *EvaluationResult) Finalize() {
	states := make([]State, 0, len(r.Tasks))
	r.CompletedTasks = 0
	r.FailedTasks = 0
	for _, task := range r.Tasks {
		states = append(states, task.State)
		switch task.State {
		case StateCompleted:
			r.CompletedTasks++
		case StateFailed:
			r.FailedTasks++
		}
	}
	r.State = AggregateState(states)
}

// AggregateState folds task states into the overall state of a job.
// Cancellation dominates; any non-terminal task keeps the job running; a mix
// of completed and failed terminal tasks is a partial failure.
func AggregateState(states []State) OverallState {
	if len(states) == 0 {
		return OverallStatePending
	}
	completed := 0
	failed := 0
	for _, state := range states {
		if state == StateCancelled {
			return OverallStateCancelled
		}
		if !state.IsTerminal() {
			return OverallStateRunning
		}
		if state == StateCompleted {
			completed++
		} else {
			failed++
		}
	}
	switch {
	case failed == 0:
		return OverallStateCompleted
	case completed == 0:
		return OverallStateFailed
	default:
		return OverallStatePartiallyFailed
	}
}
