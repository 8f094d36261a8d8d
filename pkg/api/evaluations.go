package api

import (
	"fmt"
)

// State represents the task-level lifecycle state enum
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// IsTerminal reports whether no further transitions are expected from s.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

type OverallState string

const (
	OverallStatePending         OverallState = OverallState(StatePending)
	OverallStateRunning         OverallState = OverallState(StateRunning)
	OverallStateCompleted       OverallState = OverallState(StateCompleted)
	OverallStateFailed          OverallState = OverallState(StateFailed)
	OverallStateCancelled       OverallState = OverallState(StateCancelled)
	OverallStatePartiallyFailed OverallState = "partially_failed"
)

func (o OverallState) String() string {
	return string(o)
}

func (o OverallState) IsTerminal() bool {
	return o == OverallStateCompleted || o == OverallStateFailed ||
		o == OverallStateCancelled || o == OverallStatePartiallyFailed
}

func GetOverallState(s string) (OverallState, error) {
	switch s {
	case string(OverallStatePending):
		return OverallStatePending, nil
	case string(OverallStateRunning):
		return OverallStateRunning, nil
	case string(OverallStateCompleted):
		return OverallStateCompleted, nil
	case string(OverallStateFailed):
		return OverallStateFailed, nil
	case string(OverallStateCancelled):
		return OverallStateCancelled, nil
	case string(OverallStatePartiallyFailed):
		return OverallStatePartiallyFailed, nil
	default:
		return OverallState(s), fmt.Errorf("invalid overall state: %s", s)
	}
}

// The four domain enumerations below are open sets: deployments register new
// task and metric types at runtime, so launchers resolve them through
// registries instead of switching over a fixed list. The constants are the
// values the built-in backends ship with.

// EvaluationType classifies a whole evaluation run.
type EvaluationType string

const (
	EvaluationTypeBenchmark EvaluationType = "benchmark"
)

// TargetType identifies the kind of system under evaluation.
type TargetType string

const (
	TargetTypeModel TargetType = "model"
)

// TaskType identifies how a single task is executed.
type TaskType string

const (
	TaskTypeCustom TaskType = "custom"
)

// MetricType identifies a metric computation.
type MetricType string

const (
	MetricTypeAccuracy   MetricType = "accuracy"
	MetricTypeExactMatch MetricType = "exact_match"
	MetricTypeF1         MetricType = "f1"
)

// Model describes an API endpoint hosting the model under evaluation. The
// orchestration core only carries these fields; the network call is made by
// backend code through the model client.
type Model struct {
	URL   string `json:"url" validate:"required"`
	Name  string `json:"name" validate:"required"`
	Token string `json:"token,omitempty"`
}

func (m *Model) Equal(other *Model) bool {
	if m == nil || other == nil {
		return m == other
	}
	return m.URL == other.URL && m.Name == other.Name && m.Token == other.Token
}

// EvaluationTarget couples a target type with its payload. A "model" target
// requires the Model payload; consistency between type and payload is checked
// at validation time, not at construction.
type EvaluationTarget struct {
	Type  TargetType `json:"type" validate:"required"`
	Model *Model     `json:"model,omitempty"`
}

func (t *EvaluationTarget) Equal(other *EvaluationTarget) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.Type == other.Type && t.Model.Equal(other.Model)
}

// DatasetRef is an opaque dataset reference: a format identifier and a
// location string, resolved by a dataset loader and never interpreted by the
// orchestration core.
type DatasetRef struct {
	Format   string `json:"format" validate:"required"`
	Location string `json:"location" validate:"required"`
}

func (d DatasetRef) Equal(other DatasetRef) bool {
	return d == other
}

// MetricConfig selects a metric computation: the type says what to compute,
// the parameters say how. A launcher resolves the pair to a concrete scorer.
type MetricConfig struct {
	Type   MetricType `json:"type" validate:"required"`
	Params *Params    `json:"params,omitempty"`
}

func (m MetricConfig) Equal(other MetricConfig) bool {
	return m.Type == other.Type && m.Params.Equal(other.Params)
}

// TaskConfig describes one named unit of evaluation: a task type, a dataset
// reference, the metrics to compute (ordered, duplicate types allowed) and
// backend-specific parameters. Immutable once the owning job is submitted.
type TaskConfig struct {
	Type    TaskType       `json:"type" validate:"required"`
	Dataset DatasetRef     `json:"dataset"`
	Metrics []MetricConfig `json:"metrics" validate:"omitempty,dive"`
	Params  *Params        `json:"params,omitempty"`
}

func (t TaskConfig) Equal(other TaskConfig) bool {
	if t.Type != other.Type || !t.Dataset.Equal(other.Dataset) {
		return false
	}
	if len(t.Metrics) != len(other.Metrics) {
		return false
	}
	for i := range t.Metrics {
		if !t.Metrics[i].Equal(other.Metrics[i]) {
			return false
		}
	}
	return t.Params.Equal(other.Params)
}

// EvaluationConfig is the evaluation half of a job: an evaluation type plus
// the named tasks to run.
type EvaluationConfig struct {
	Type  EvaluationType `json:"type" validate:"required"`
	Tasks TaskMap        `json:"tasks"`
}

func (c *EvaluationConfig) Equal(other *EvaluationConfig) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.Type == other.Type && c.Tasks.Equal(other.Tasks)
}

// EvaluationJob is the unit of work handed to a launcher: an identifier, an
// evaluation configuration and a target. A launcher must treat the job as
// read-only; results reference the job, they never mutate it. A non-empty
// identifier is deliberately not enforced here, validation is the checkpoint.
type EvaluationJob struct {
	ID     string           `json:"id"`
	Config EvaluationConfig `json:"config"`
	Target EvaluationTarget `json:"target"`
}

func (j *EvaluationJob) Equal(other *EvaluationJob) bool {
	if j == nil || other == nil {
		return j == other
	}
	return j.ID == other.ID && j.Config.Equal(&other.Config) && j.Target.Equal(&other.Target)
}

// EvaluationJobSubmission represents the evaluation job request schema. The
// identifier is optional; when absent the service assigns one from its
// identifier source. A collection reference merges the collection's tasks
// under the submission's tasks (inline tasks win on name collision).
type EvaluationJobSubmission struct {
	ID         string           `json:"id,omitempty"`
	Config     EvaluationConfig `json:"config" validate:"required"`
	Target     EvaluationTarget `json:"target" validate:"required"`
	Collection *Ref             `json:"collection,omitempty" validate:"omitempty"`
}

// TaskStatus represents status of an individual task in an evaluation job
type TaskStatus struct {
	Name        string       `json:"name"`
	State       State        `json:"state,omitempty"`
	Error       *MessageInfo `json:"error,omitempty"`
	StartedAt   DateTime     `json:"started_at,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	CompletedAt DateTime     `json:"completed_at,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

type EvaluationJobState struct {
	State   OverallState `json:"state" validate:"required,oneof=pending running completed failed cancelled partially_failed"`
	Message *MessageInfo `json:"message,omitempty"`
}

type EvaluationJobStatus struct {
	EvaluationJobState
	Tasks []TaskStatus `json:"tasks,omitempty"`
}

// TaskStatusByName returns the entry for name, or nil when absent.
func (s *EvaluationJobStatus) TaskStatusByName(name string) *TaskStatus {
	if s == nil {
		return nil
	}
	for i := range s.Tasks {
		if s.Tasks[i].Name == name {
			return &s.Tasks[i]
		}
	}
	return nil
}

// EvaluationJobResource represents evaluation job resource response
type EvaluationJobResource struct {
	Resource Resource             `json:"resource"`
	Job      EvaluationJob        `json:"job"`
	Status   *EvaluationJobStatus `json:"status,omitempty"`
	Result   *EvaluationResult    `json:"result,omitempty"`
}

// EvaluationJobResourceList represents list of evaluation job resources with pagination
type EvaluationJobResourceList struct {
	Page
	Items []EvaluationJobResource `json:"items"`
}
