package abstractions

import (
	"context"
	"log/slog"
	"time"

	"github.com/eval-forge/eval-forge/pkg/api"
)

type QueryResults[T any] struct {
	Items       []T
	TotalStored int
}

type Storage interface {
	WithLogger(logger *slog.Logger) Storage
	WithContext(ctx context.Context) Storage

	// This is used to identify the storage implementation in the logs and error messages
	GetDatasourceName() string

	Ping(timeout time.Duration) error

	// Evaluation job operations. The job arrives with its identifier already
	// assigned; storage wraps it in a resource envelope and never generates
	// identifiers itself.
	CreateEvaluationJob(job *api.EvaluationJob) (*api.EvaluationJobResource, error)
	GetEvaluationJob(id string) (*api.EvaluationJobResource, error)
	GetEvaluationJobs(limit int, offset int, stateFilter string) (*QueryResults[api.EvaluationJobResource], error)
	DeleteEvaluationJob(id string, hardDelete bool) error
	UpdateEvaluationJobStatus(id string, state api.OverallState, message *api.MessageInfo) error

	// RecordTaskStatus folds one task status event into the job's status,
	// converting any raw metric payload into the task's result entry and
	// recomputing the overall state.
	RecordTaskStatus(id string, event *api.TaskStatusEvent) error

	// SetEvaluationJobResult stores the final result a launcher returned and
	// moves the job status to the result's overall state.
	SetEvaluationJobResult(id string, result *api.EvaluationResult) error

	// Collection operations
	CreateCollection(collection *api.CollectionResource) error
	GetCollection(id string) (*api.CollectionResource, error)
	GetCollections(limit int, offset int) (*QueryResults[api.CollectionResource], error)
	UpdateCollection(collection *api.CollectionResource) error
	DeleteCollection(id string) error

	// Close the storage connection
	Close() error
}

// This interface must be decoupled from the service HTTP layer.
// Do not pass ExecutionContext, Request or Response wrappers either.
