// Package local runs evaluation jobs in-process. Every task walks the full
// pipeline (environment, dataset, evaluator, scoring, conversion) inside this
// service, with a bounded number of tasks in flight.
package local

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eval-forge/eval-forge/internal/abstractions"
	"github.com/eval-forge/eval-forge/internal/constants"
	"github.com/eval-forge/eval-forge/internal/datasets"
	"github.com/eval-forge/eval-forge/internal/metrics"
	"github.com/eval-forge/eval-forge/internal/pipeline"
	"github.com/eval-forge/eval-forge/internal/results"
	"github.com/eval-forge/eval-forge/internal/scorers"
	"github.com/eval-forge/eval-forge/internal/validation"
	"github.com/eval-forge/eval-forge/pkg/api"
)

const defaultMaxTaskWorkers = 5

// Settings tunes a local launcher. Zero values pick defaults.
type Settings struct {
	// WorkDir is the base directory for per-task workspaces. Defaults to a
	// directory under the OS temp dir.
	WorkDir string
	// MaxTaskWorkers bounds the number of tasks in flight for one job.
	MaxTaskWorkers int
	// Invoker overrides how the builtin evaluator calls the target model.
	Invoker Invoker
}

type LocalLauncher struct {
	logger      *slog.Logger
	environment pipeline.Environment
	builders    map[api.TaskType]pipeline.EvaluatorBuilder
	maxWorkers  int
}

// NewLocalLauncher creates a local launcher with the builtin evaluator
// registered for the custom task type.
func NewLocalLauncher(logger *slog.Logger, settings *Settings) (abstractions.Launcher, error) {
	if settings == nil {
		settings = &Settings{}
	}
	workDir := settings.WorkDir
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "eval-forge")
	}
	maxWorkers := settings.MaxTaskWorkers
	if maxWorkers <= 0 {
		maxWorkers = defaultMaxTaskWorkers
	}
	invoker := settings.Invoker
	if invoker == nil {
		invoker = &modelInvoker{}
	}
	launcher := &LocalLauncher{
		logger:      logger,
		environment: pipeline.NewWorkspaceManager(workDir),
		builders: map[api.TaskType]pipeline.EvaluatorBuilder{
			api.TaskTypeCustom: &builtinEvaluatorBuilder{logger: logger, invoker: invoker},
		},
		maxWorkers: maxWorkers,
	}
	return launcher, nil
}

// RegisterEvaluatorBuilder installs a builder for a task type, replacing any
// existing one. Task types are an open set.
func (l *LocalLauncher) RegisterEvaluatorBuilder(taskType api.TaskType, builder pipeline.EvaluatorBuilder) {
	l.builders[taskType] = builder
}

func (l *LocalLauncher) Name() string {
	return "local"
}

func (l *LocalLauncher) FailurePolicy() abstractions.FailurePolicy {
	return abstractions.FailurePolicyIsolateTasks
}

// ValidateJobInput applies the base job checks plus the local launcher's own
// rules: every task type needs a registered evaluator builder and every
// metric type a registered scorer.
func (l *LocalLauncher) ValidateJobInput(job *api.EvaluationJob) *api.ValidationResult {
	result := validation.ValidateJob(job)
	if job == nil {
		return result
	}
	for _, name := range job.Config.Tasks.Names() {
		task, _ := job.Config.Tasks.Get(name)
		if _, ok := l.builders[task.Type]; !ok {
			result.AddError("task %q: no evaluator is registered for task type %q", name, task.Type)
		}
		for _, metric := range task.Metrics {
			if !scorers.Known(metric.Type) {
				result.AddError("task %q: no scorer is registered for metric type %q", name, metric.Type)
			}
		}
	}
	return result
}

type taskOutcome struct {
	name   string
	result api.TaskResult
}

func (l *LocalLauncher) LaunchEvaluationJob(ctx context.Context, job *api.EvaluationJob) (*api.EvaluationResult, error) {
	if validationResult := l.ValidateJobInput(job); !validationResult.Valid {
		return nil, fmt.Errorf("job failed validation: %s", strings.Join(validationResult.Errors, "; "))
	}

	result := api.NewEvaluationResult(job)
	names := job.Config.Tasks.Names()

	tasks := make(chan string, len(names))
	for _, name := range names {
		tasks <- name
	}
	close(tasks)

	workerCount := l.maxWorkers
	if len(names) < workerCount {
		workerCount = len(names)
	}

	outcomes := make(chan taskOutcome, len(names))
	for i := 0; i < workerCount; i++ {
		go func() {
			for name := range tasks {
				select {
				case <-ctx.Done():
					l.logger.Warn(
						"task evaluation canceled",
						constants.LOG_JOB_ID, job.ID,
						constants.LOG_TASK_NAME, name,
					)
					metrics.TaskOutcomes.WithLabelValues(l.Name(), string(api.StateCancelled)).Inc()
					outcomes <- taskOutcome{name: name, result: cancelledTaskResult()}
					continue
				default:
				}
				started := time.Now()
				taskResult := l.runTask(ctx, job, name)
				metrics.TaskDuration.WithLabelValues(l.Name()).Observe(time.Since(started).Seconds())
				metrics.TaskOutcomes.WithLabelValues(l.Name(), string(taskResult.State)).Inc()
				outcomes <- taskOutcome{name: name, result: taskResult}
			}
		}()
	}

	for range names {
		outcome := <-outcomes
		result.Tasks[outcome.name] = outcome.result
	}
	result.Finalize()

	l.logger.Info(
		"evaluation job finished",
		constants.LOG_JOB_ID, job.ID,
		constants.LOG_LAUNCHER, l.Name(),
		"state", result.State,
		"completed_tasks", result.CompletedTasks,
		"failed_tasks", result.FailedTasks,
	)
	return result, nil
}

// runTask walks one task through the pipeline stages. A stage error fails
// this task only; the returned result records which stage failed.
func (l *LocalLauncher) runTask(ctx context.Context, job *api.EvaluationJob, name string) api.TaskResult {
	logger := l.logger.With(constants.LOG_JOB_ID, job.ID, constants.LOG_TASK_NAME, name)
	logger.Info("task evaluation started")

	taskResult := api.NewTaskResult()
	taskResult.StartedAt = api.DateTimeToString(time.Now().UTC())

	task, ok := job.Config.Tasks.Get(name)
	if !ok {
		return failTaskResult(taskResult, constants.MESSAGE_CODE_TASK_SETUP_FAILED, fmt.Errorf("task %q is not part of the job", name))
	}

	workspace, err := l.environment.Prepare(ctx, job.ID, name, &task)
	if err != nil {
		logger.Error("task environment setup failed", "error", err)
		return failTaskResult(taskResult, constants.MESSAGE_CODE_TASK_SETUP_FAILED, err)
	}
	defer func() {
		if releaseErr := l.environment.Release(workspace); releaseErr != nil {
			logger.Warn("task workspace release failed", "error", releaseErr)
		}
	}()

	dataset, err := datasets.Resolve(ctx, task.Dataset)
	if err != nil {
		logger.Error("task dataset acquisition failed", "error", err)
		return failTaskResult(taskResult, constants.MESSAGE_CODE_TASK_DATASET_FAILED, err)
	}

	builder, ok := l.builders[task.Type]
	if !ok {
		return failTaskResult(taskResult, constants.MESSAGE_CODE_TASK_EVALUATOR_FAILED, fmt.Errorf("no evaluator is registered for task type %q", task.Type))
	}
	evaluator, err := builder.NewEvaluator(&job.Target, &task)
	if err != nil {
		logger.Error("task evaluator initialization failed", "error", err)
		return failTaskResult(taskResult, constants.MESSAGE_CODE_TASK_EVALUATOR_FAILED, err)
	}

	raw, err := evaluator.Score(ctx, dataset)
	if err != nil {
		if ctx.Err() != nil {
			logger.Warn("task evaluation canceled during scoring")
			return cancelledTaskResult()
		}
		logger.Error("task scoring failed", "error", err)
		return failTaskResult(taskResult, constants.MESSAGE_CODE_TASK_SCORING_FAILED, err)
	}

	converted, err := results.Convert(raw)
	if err != nil {
		logger.Error("task result conversion failed", "error", err)
		return failTaskResult(taskResult, constants.MESSAGE_CODE_TASK_CONVERSION_FAILED, err)
	}

	taskResult.State = api.StateCompleted
	taskResult.Metrics = converted
	taskResult.CompletedAt = api.DateTimeToString(time.Now().UTC())
	logger.Info("task evaluation completed", "metric_count", len(converted), "record_count", dataset.Len())
	return taskResult
}

func failTaskResult(taskResult api.TaskResult, messageCode string, err error) api.TaskResult {
	taskResult.State = api.StateFailed
	taskResult.Error = &api.MessageInfo{Message: err.Error(), MessageCode: messageCode}
	taskResult.CompletedAt = api.DateTimeToString(time.Now().UTC())
	return taskResult
}

func cancelledTaskResult() api.TaskResult {
	taskResult := api.NewTaskResult()
	taskResult.State = api.StateCancelled
	taskResult.Error = &api.MessageInfo{Message: "task canceled before completion", MessageCode: constants.MESSAGE_CODE_TASK_CANCELLED}
	return taskResult
}
