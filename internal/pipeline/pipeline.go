package pipeline

import (
	"context"

	"github.com/eval-forge/eval-forge/pkg/api"
)

// The five stages every launcher runs per task: environment setup, dataset
// acquisition, evaluator initialization, scoring, result conversion. The
// contracts here cover the first four; conversion lives in the results
// package. All stages treat the job, its config and its target as read-only.

// Record is one dataset item, decoded but not interpreted.
type Record map[string]any

// Dataset is a resolved dataset reference.
type Dataset struct {
	Ref     api.DatasetRef
	Records []Record
}

func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Records)
}

// Workspace is the external state prepared for one task.
type Workspace struct {
	Dir string
}

// Environment prepares and releases per-task external state. Prepare must be
// idempotent: running it twice for the same task must leave the same
// observable state as running it once. Callers release on every exit path.
type Environment interface {
	Prepare(ctx context.Context, jobID string, taskName string, task *api.TaskConfig) (*Workspace, error)
	Release(workspace *Workspace) error
}

// RawMetric is one entry of the raw, backend-specific scoring output: a
// metric name and its sub-score values. A single-valued metric reports one
// value keyed by its own name.
type RawMetric struct {
	Name   string
	Values map[string]float64
}

// RawResult is the ordered raw output of the scoring stage. Order matters:
// when two entries resolve to the same metric name, conversion lets the
// later entry overwrite the earlier one.
type RawResult struct {
	Entries []RawMetric
}

func (r *RawResult) Add(name string, values map[string]float64) {
	r.Entries = append(r.Entries, RawMetric{Name: name, Values: values})
}

// Evaluator runs the scoring stage for one task. An empty dataset is scored
// normally and yields zero entries, it is not an error.
type Evaluator interface {
	Score(ctx context.Context, dataset *Dataset) (*RawResult, error)
}

// EvaluatorBuilder constructs the evaluator for a task: whatever invokes the
// target, configured with the task's requested metrics.
type EvaluatorBuilder interface {
	NewEvaluator(target *api.EvaluationTarget, task *api.TaskConfig) (Evaluator, error)
}
