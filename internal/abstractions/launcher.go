package abstractions

import (
	"context"

	"github.com/eval-forge/eval-forge/pkg/api"
)

// FailurePolicy is the declared behavior of a launcher when one task's
// pipeline fails unrecoverably.
type FailurePolicy string

const (
	// FailurePolicyAbortOnFailure aborts the whole job on the first task
	// failure and propagates an error; no result is returned.
	FailurePolicyAbortOnFailure FailurePolicy = "abort_on_failure"
	// FailurePolicyIsolateTasks records the failure on that task's result
	// and continues with the remaining tasks, preserving partial results.
	FailurePolicyIsolateTasks FailurePolicy = "isolate_tasks"
)

// Launcher is the pluggable execution surface every evaluation backend
// implements. Implementations must treat the job as read-only: results
// reference the job, they never mutate it.
type Launcher interface {
	Name() string

	// FailurePolicy declares how the launcher handles an unrecoverable task
	// failure. The policy is a fixed property of the implementation.
	FailurePolicy() FailurePolicy

	// ValidateJobInput checks a job before execution. It covers at least the
	// base structural checks of validation.ValidateJob; backends add their
	// own rules on top but are never less strict.
	ValidateJobInput(job *api.EvaluationJob) *api.ValidationResult

	// LaunchEvaluationJob executes every task declared by the job, in the
	// task map's declared order, and returns the assembled result. The job
	// must have passed validation; launchers re-check and fail fast on an
	// invalid job rather than attempt partial work. Cancellation through ctx
	// is cooperative at task boundaries.
	//
	// Asynchronous backends return a result reflecting dispatch state, with
	// tasks still running; their terminal states arrive later through the
	// status events endpoint.
	LaunchEvaluationJob(ctx context.Context, job *api.EvaluationJob) (*api.EvaluationResult, error)
}

// ResourceReleaser is an optional launcher capability: backends that hold
// external resources per job (cluster objects, scratch volumes) implement it
// so deletion and cancellation can clean up. Callers type-assert.
type ResourceReleaser interface {
	ReleaseJobResources(ctx context.Context, job *api.EvaluationJob) error
}
