// Package k8s dispatches evaluation tasks as Kubernetes Jobs. Each task gets
// a ConfigMap carrying its spec and a batch Job running the provider's runner
// image; runners report results back through the status events endpoint.
package k8s

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/eval-forge/eval-forge/internal/abstractions"
	"github.com/eval-forge/eval-forge/internal/constants"
	"github.com/eval-forge/eval-forge/internal/validation"
	"github.com/eval-forge/eval-forge/pkg/api"
)

const maxTaskWorkers = 5

type K8sLauncher struct {
	logger    *slog.Logger
	helper    *KubernetesHelper
	providers map[string]api.ProviderResource
	// providerOrder fixes provider resolution order; map iteration is not
	// deterministic and two providers may declare the same task type.
	providerOrder []string
}

// NewK8sLauncher creates a Kubernetes launcher over the given providers.
func NewK8sLauncher(logger *slog.Logger, providerConfigs map[string]api.ProviderResource) (abstractions.Launcher, error) {
	helper, err := NewKubernetesHelper()
	if err != nil {
		return nil, err
	}
	return newK8sLauncher(logger, helper, providerConfigs), nil
}

func newK8sLauncher(logger *slog.Logger, helper *KubernetesHelper, providerConfigs map[string]api.ProviderResource) *K8sLauncher {
	order := make([]string, 0, len(providerConfigs))
	for id := range providerConfigs {
		order = append(order, id)
	}
	sort.Strings(order)
	return &K8sLauncher{logger: logger, helper: helper, providers: providerConfigs, providerOrder: order}
}

func (l *K8sLauncher) Name() string {
	return "kubernetes"
}

func (l *K8sLauncher) FailurePolicy() abstractions.FailurePolicy {
	return abstractions.FailurePolicyIsolateTasks
}

// resolveProvider returns the first provider, in fixed order, declaring the
// task type.
func (l *K8sLauncher) resolveProvider(taskType api.TaskType) (*api.ProviderResource, *api.ProviderTaskType) {
	for _, id := range l.providerOrder {
		provider := l.providers[id]
		if spec := provider.TaskTypeSpec(taskType); spec != nil {
			return &provider, spec
		}
	}
	return nil, nil
}

// ValidateJobInput applies the base job checks plus the kubernetes
// launcher's own rules: every task type needs a provider, the provider needs
// runtime configuration, and task parameters must satisfy the provider's
// declared schema.
func (l *K8sLauncher) ValidateJobInput(job *api.EvaluationJob) *api.ValidationResult {
	result := validation.ValidateJob(job)
	if job == nil {
		return result
	}
	for _, name := range job.Config.Tasks.Names() {
		task, _ := job.Config.Tasks.Get(name)
		provider, spec := l.resolveProvider(task.Type)
		if provider == nil {
			result.AddError("task %q: no provider declares task type %q", name, task.Type)
			continue
		}
		if provider.Runtime == nil || provider.Runtime.K8s == nil || provider.Runtime.K8s.Image == "" {
			result.AddError("task %q: provider %q has no kubernetes runtime configuration", name, provider.ProviderID)
		}
		if len(spec.ParamsSchema) > 0 {
			l.validateTaskParams(result, name, &task, spec)
		}
	}
	return result
}

func (l *K8sLauncher) validateTaskParams(result *api.ValidationResult, name string, task *api.TaskConfig, spec *api.ProviderTaskType) {
	schemaLoader := gojsonschema.NewGoLoader(spec.ParamsSchema)
	documentLoader := gojsonschema.NewGoLoader(task.Params.Interface())
	schemaResult, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		result.AddError("task %q: parameter schema check failed: %v", name, err)
		return
	}
	for _, schemaError := range schemaResult.Errors() {
		result.AddError("task %q: parameters: %s", name, schemaError.String())
	}
}

type dispatchOutcome struct {
	name   string
	result api.TaskResult
}

// LaunchEvaluationJob creates the cluster resources for every task and
// returns a result reflecting dispatch state: dispatched tasks are running,
// tasks whose resources could not be created are failed. Terminal states
// arrive through the status events endpoint as runners report back.
func (l *K8sLauncher) LaunchEvaluationJob(ctx context.Context, job *api.EvaluationJob) (*api.EvaluationResult, error) {
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

	workerCount := maxTaskWorkers
	if len(names) < workerCount {
		workerCount = len(names)
	}

	outcomes := make(chan dispatchOutcome, len(names))
	for i := 0; i < workerCount; i++ {
		go func() {
			for name := range tasks {
				select {
				case <-ctx.Done():
					l.logger.Warn(
						"task dispatch canceled",
						constants.LOG_JOB_ID, job.ID,
						constants.LOG_TASK_NAME, name,
					)
					outcomes <- dispatchOutcome{name: name, result: cancelledTaskResult()}
					continue
				default:
				}
				outcomes <- dispatchOutcome{name: name, result: l.dispatchTask(ctx, job, name)}
			}
		}()
	}

	for range names {
		outcome := <-outcomes
		result.Tasks[outcome.name] = outcome.result
	}
	result.Finalize()

	l.logger.Info(
		"evaluation job dispatched",
		constants.LOG_JOB_ID, job.ID,
		constants.LOG_LAUNCHER, l.Name(),
		"state", result.State,
		"failed_tasks", result.FailedTasks,
	)
	return result, nil
}

// dispatchTask creates the ConfigMap and Job for one task. The ConfigMap is
// removed again if the Job cannot be created, and ownership is transferred to
// the Job afterwards so deletion cascades.
func (l *K8sLauncher) dispatchTask(ctx context.Context, job *api.EvaluationJob, name string) api.TaskResult {
	logger := l.logger.With(constants.LOG_JOB_ID, job.ID, constants.LOG_TASK_NAME, name)

	taskResult := api.NewTaskResult()
	taskResult.StartedAt = api.DateTimeToString(time.Now().UTC())

	task, ok := job.Config.Tasks.Get(name)
	if !ok {
		return failDispatch(taskResult, fmt.Errorf("task %q is not part of the job", name))
	}
	provider, _ := l.resolveProvider(task.Type)
	if provider == nil {
		return failDispatch(taskResult, fmt.Errorf("no provider declares task type %q", task.Type))
	}

	jobConfig, err := buildJobConfig(job, provider, name)
	if err != nil {
		logger.Error("kubernetes job config error", "error", err)
		return failDispatch(taskResult, err)
	}

	configMap := buildConfigMap(jobConfig)
	batchJob, err := buildJob(jobConfig)
	if err != nil {
		logger.Error("kubernetes job build error", "error", err)
		return failDispatch(taskResult, err)
	}

	_, err = l.helper.CreateConfigMap(ctx, configMap.Namespace, configMap.Name, configMap.Data, &CreateConfigMapOptions{
		Labels:      configMap.Labels,
		Annotations: configMap.Annotations,
	})
	if err != nil {
		logger.Error("kubernetes configmap create error", "namespace", configMap.Namespace, "name", configMap.Name, "error", err)
		return failDispatch(taskResult, err)
	}

	createdJob, err := l.helper.CreateJob(ctx, batchJob)
	if err != nil {
		logger.Error("kubernetes job create error", "namespace", batchJob.Namespace, "name", batchJob.Name, "error", err)
		cleanupErr := l.helper.DeleteConfigMap(ctx, configMap.Namespace, configMap.Name)
		if cleanupErr != nil && !apierrors.IsNotFound(cleanupErr) {
			logger.Error("failed to delete configmap after job creation error", "error", cleanupErr)
		}
		return failDispatch(taskResult, err)
	}

	ownerRef := metav1.OwnerReference{
		APIVersion: "batch/v1",
		Kind:       "Job",
		Name:       createdJob.Name,
		UID:        createdJob.UID,
		Controller: boolPtr(true),
	}
	if err := l.helper.SetConfigMapOwner(ctx, configMap.Namespace, configMap.Name, ownerRef); err != nil {
		logger.Error("failed to set configmap owner reference", "namespace", configMap.Namespace, "name", configMap.Name, "error", err)
	}

	logger.Info("kubernetes task dispatched", "job_name", createdJob.Name, "namespace", createdJob.Namespace)
	taskResult.State = api.StateRunning
	return taskResult
}

// ReleaseJobResources deletes every cluster object created for the job.
// Missing objects are not an error, deletion is idempotent.
func (l *K8sLauncher) ReleaseJobResources(ctx context.Context, job *api.EvaluationJob) error {
	namespace := resolveNamespace("")
	propagationPolicy := metav1.DeletePropagationBackground
	deleteOptions := metav1.DeleteOptions{PropagationPolicy: &propagationPolicy}

	names := job.Config.Tasks.Names()
	l.logger.Info(
		"deleting evaluation job cluster resources",
		constants.LOG_JOB_ID, job.ID,
		"task_count", len(names),
		"namespace", namespace,
	)

	var deleteErr error
	for _, name := range names {
		jobName := jobName(job.ID, name)
		configMapName := configMapName(job.ID, name)
		l.logger.Info(
			"deleting cluster resources for task",
			constants.LOG_JOB_ID, job.ID,
			constants.LOG_TASK_NAME, name,
			"job_name", jobName,
			"configmap_name", configMapName,
			"namespace", namespace,
		)
		if err := l.helper.DeleteJob(ctx, namespace, jobName, deleteOptions); err != nil && !apierrors.IsNotFound(err) {
			deleteErr = errors.Join(deleteErr, err)
		}
		// OwnerReferences should GC ConfigMaps when Jobs are deleted, but we delete explicitly
		// to avoid orphans if the owner ref was never set or the job delete is delayed.
		if err := l.helper.DeleteConfigMap(ctx, namespace, configMapName); err != nil && !apierrors.IsNotFound(err) {
			deleteErr = errors.Join(deleteErr, err)
		}
	}
	return deleteErr
}

func failDispatch(taskResult api.TaskResult, err error) api.TaskResult {
	taskResult.State = api.StateFailed
	taskResult.Error = &api.MessageInfo{Message: err.Error(), MessageCode: constants.MESSAGE_CODE_TASK_DISPATCH_FAILED}
	taskResult.CompletedAt = api.DateTimeToString(time.Now().UTC())
	return taskResult
}

func cancelledTaskResult() api.TaskResult {
	taskResult := api.NewTaskResult()
	taskResult.State = api.StateCancelled
	taskResult.Error = &api.MessageInfo{Message: "task canceled before dispatch", MessageCode: constants.MESSAGE_CODE_TASK_CANCELLED}
	return taskResult
}
