// Package entity holds the persisted shape of an evaluation job: the job as
// submitted plus the status and result views the service keeps current. Both
// storage backends store an Evaluation as one JSON document and fold task
// status events through it.
package entity

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/eval-forge/eval-forge/internal/results"
	"github.com/eval-forge/eval-forge/pkg/api"
)

var (
	// ErrUnknownTask reports a task event naming a task the job does not
	// configure.
	ErrUnknownTask = errors.New("task is not part of the job")
	// ErrJobTerminal reports a mutation attempted after the job reached a
	// terminal state.
	ErrJobTerminal = errors.New("job is in a terminal state")
)

// Evaluation is the entity column payload for one evaluation job.
type Evaluation struct {
	Job    api.EvaluationJob        `json:"job"`
	Status *api.EvaluationJobStatus `json:"status,omitempty"`
	Result *api.EvaluationResult    `json:"result,omitempty"`
}

// New wraps a submitted job with a pending status carrying one entry per
// configured task, in task order.
func New(job *api.EvaluationJob, message *api.MessageInfo) *Evaluation {
	status := &api.EvaluationJobStatus{
		EvaluationJobState: api.EvaluationJobState{
			State:   api.OverallStatePending,
			Message: message,
		},
	}
	for _, name := range job.Config.Tasks.Names() {
		status.Tasks = append(status.Tasks, api.TaskStatus{Name: name, State: api.StatePending})
	}
	return &Evaluation{Job: *job, Status: status}
}

// Decode unmarshals a stored entity document.
func Decode(entityJSON string) (*Evaluation, error) {
	var evaluation Evaluation
	if err := json.Unmarshal([]byte(entityJSON), &evaluation); err != nil {
		return nil, err
	}
	return &evaluation, nil
}

// Encode marshals the entity document for storage.
func (e *Evaluation) Encode() (string, error) {
	entityJSON, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(entityJSON), nil
}

// Clone deep-copies the evaluation through its JSON form. Backends that hand
// out or index the stored value apply changes to a clone.
func (e *Evaluation) Clone() (*Evaluation, error) {
	entityJSON, err := e.Encode()
	if err != nil {
		return nil, err
	}
	return Decode(entityJSON)
}

// OverallState returns the job's current overall state.
func (e *Evaluation) OverallState() api.OverallState {
	if e.Status == nil {
		return api.OverallStatePending
	}
	return e.Status.State
}

// Resource assembles the REST resource view of the evaluation.
func (e *Evaluation) Resource(resource api.Resource) *api.EvaluationJobResource {
	return &api.EvaluationJobResource{
		Resource: resource,
		Job:      e.Job,
		Status:   e.Status,
		Result:   e.Result,
	}
}

// ApplyTaskEvent folds one task status event into the status and result
// views and recomputes the overall state across all configured tasks. The
// event must name a configured task and the job must not be terminal yet.
func (e *Evaluation) ApplyTaskEvent(event *api.TaskStatusEvent) error {
	if _, ok := e.Job.Config.Tasks.Get(event.TaskName); !ok {
		return fmt.Errorf("task %q: %w", event.TaskName, ErrUnknownTask)
	}
	if e.Status == nil {
		e.Status = &api.EvaluationJobStatus{}
	}
	if e.Status.State.IsTerminal() {
		return fmt.Errorf("state '%s': %w", e.Status.State, ErrJobTerminal)
	}

	taskStatus := e.Status.TaskStatusByName(event.TaskName)
	if taskStatus == nil {
		// Entries are seeded at creation time; tolerate records written
		// before that by appending one for the configured task.
		e.Status.Tasks = append(e.Status.Tasks, api.TaskStatus{Name: event.TaskName})
		taskStatus = &e.Status.Tasks[len(e.Status.Tasks)-1]
	}
	taskStatus.State = event.State
	taskStatus.Error = event.Error
	if event.StartedAt != "" {
		taskStatus.StartedAt = event.StartedAt
	}
	if event.CompletedAt != "" {
		taskStatus.CompletedAt = event.CompletedAt
	}

	if e.Result == nil {
		e.Result = api.NewEvaluationResult(&e.Job)
	}
	taskResult := e.Result.Tasks[event.TaskName]
	taskResult.State = event.State
	taskResult.Error = event.Error
	taskResult.StartedAt = taskStatus.StartedAt
	taskResult.CompletedAt = taskStatus.CompletedAt
	if len(event.Metrics) > 0 {
		metrics, err := results.FromPayload(event.Metrics)
		if err != nil {
			return fmt.Errorf("metrics payload for task %q: %w", event.TaskName, err)
		}
		taskResult.Metrics = metrics
	}
	e.Result.Tasks[event.TaskName] = taskResult

	e.refreshOverallState()
	return nil
}

// SetResult overwrites the result view with what a launcher returned and
// syncs the status entries from its task results.
func (e *Evaluation) SetResult(result *api.EvaluationResult) {
	e.Result = result
	if e.Status == nil {
		e.Status = &api.EvaluationJobStatus{}
	}
	for name, taskResult := range result.Tasks {
		taskStatus := e.Status.TaskStatusByName(name)
		if taskStatus == nil {
			e.Status.Tasks = append(e.Status.Tasks, api.TaskStatus{Name: name})
			taskStatus = &e.Status.Tasks[len(e.Status.Tasks)-1]
		}
		taskStatus.State = taskResult.State
		taskStatus.Error = taskResult.Error
		taskStatus.StartedAt = taskResult.StartedAt
		taskStatus.CompletedAt = taskResult.CompletedAt
	}
	e.Status.State = result.State
}

// SetState moves the job to state. A move to cancelled cascades to every
// task that has not reached a terminal state.
func (e *Evaluation) SetState(state api.OverallState, message *api.MessageInfo) {
	if e.Status == nil {
		e.Status = &api.EvaluationJobStatus{}
	}
	e.Status.State = state
	e.Status.Message = message
	if state != api.OverallStateCancelled {
		return
	}
	for i := range e.Status.Tasks {
		if !e.Status.Tasks[i].State.IsTerminal() {
			e.Status.Tasks[i].State = api.StateCancelled
		}
	}
	if e.Result != nil {
		for name, taskResult := range e.Result.Tasks {
			if !taskResult.State.IsTerminal() {
				taskResult.State = api.StateCancelled
				e.Result.Tasks[name] = taskResult
			}
		}
		e.Result.State = api.OverallStateCancelled
	}
}

// refreshOverallState recomputes the overall state and the result counters
// from the per-task statuses. Tasks that have not reported yet count as
// pending, keeping the job non-terminal until every task is heard from.
func (e *Evaluation) refreshOverallState() {
	states := make([]api.State, 0, len(e.Status.Tasks))
	completed := 0
	failed := 0
	for _, taskStatus := range e.Status.Tasks {
		states = append(states, taskStatus.State)
		switch taskStatus.State {
		case api.StateCompleted:
			completed++
		case api.StateFailed:
			failed++
		}
	}
	overall := api.AggregateState(states)
	e.Status.State = overall
	if e.Result != nil {
		e.Result.State = overall
		e.Result.CompletedTasks = completed
		e.Result.FailedTasks = failed
	}
}
