package k8s

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	batchv1 "k8s.io/api/batch/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8sruntime "k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/eval-forge/eval-forge/internal/abstractions"
	"github.com/eval-forge/eval-forge/internal/constants"
	"github.com/eval-forge/eval-forge/pkg/api"
)

func launcherTestJob() *api.EvaluationJob {
	tasks := api.NewTaskMap()
	tasks.Set("main_task", api.TaskConfig{
		Type:    api.TaskTypeCustom,
		Dataset: api.DatasetRef{Format: "jsonl", Location: "data/questions.jsonl"},
		Metrics: []api.MetricConfig{{Type: api.MetricTypeAccuracy}},
	})
	return &api.EvaluationJob{
		ID:     "job-1",
		Config: api.EvaluationConfig{Type: api.EvaluationTypeBenchmark, Tasks: tasks},
		Target: api.EvaluationTarget{
			Type:  api.TargetTypeModel,
			Model: &api.Model{URL: "http://model.example", Name: "model-1"},
		},
	}
}

func launcherTestProviders() map[string]api.ProviderResource {
	return map[string]api.ProviderResource{
		"provider-1": {
			ProviderID: "provider-1",
			TaskTypes:  []api.ProviderTaskType{{Type: api.TaskTypeCustom}},
			Runtime: &api.ProviderRuntime{
				K8s: &api.K8sRuntimeConfig{
					Image: "quay.io/eval-forge/runner:latest",
				},
			},
		},
	}
}

func newFakeLauncher(clientset *fake.Clientset) *K8sLauncher {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newK8sLauncher(logger, &KubernetesHelper{clientset: clientset}, launcherTestProviders())
}

func TestK8sLauncherIdentity(t *testing.T) {
	launcher := newFakeLauncher(fake.NewSimpleClientset())
	if launcher.Name() != "kubernetes" {
		t.Fatalf("expected Name to be kubernetes")
	}
	if launcher.FailurePolicy() != abstractions.FailurePolicyIsolateTasks {
		t.Fatalf("expected isolate_tasks policy, got %s", launcher.FailurePolicy())
	}
}

func TestLaunchEvaluationJobSetsConfigMapOwner(t *testing.T) {
	t.Setenv(constants.EnvVarServiceURL, "http://service.example")
	job := launcherTestJob()

	clientset := fake.NewSimpleClientset()
	launcher := newFakeLauncher(clientset)

	result, err := launcher.LaunchEvaluationJob(context.Background(), job)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Tasks["main_task"].State != api.StateRunning {
		t.Fatalf("expected dispatched task to be running, got %s", result.Tasks["main_task"].State)
	}
	if result.State != api.OverallStateRunning {
		t.Fatalf("expected overall state running, got %s", result.State)
	}

	cmName := configMapName(job.ID, "main_task")
	cm, err := clientset.CoreV1().ConfigMaps(defaultNamespace).Get(context.Background(), cmName, metav1.GetOptions{})
	if err != nil {
		t.Fatalf("expected configmap to exist, got %v", err)
	}
	if len(cm.OwnerReferences) != 1 {
		t.Fatalf("expected 1 owner reference, got %d", len(cm.OwnerReferences))
	}
	owner := cm.OwnerReferences[0]
	if owner.Kind != "Job" || owner.APIVersion != "batch/v1" {
		t.Fatalf("expected owner to be batch/v1 Job, got %s %s", owner.APIVersion, owner.Kind)
	}
	if owner.Name != jobName(job.ID, "main_task") {
		t.Fatalf("expected owner name to match job name, got %q", owner.Name)
	}
	if owner.Controller == nil || !*owner.Controller {
		t.Fatalf("expected owner reference to be controller")
	}
}

func TestLaunchEvaluationJobDeletesConfigMapOnJobFailure(t *testing.T) {
	t.Setenv(constants.EnvVarServiceURL, "http://service.example")
	job := launcherTestJob()

	clientset := fake.NewSimpleClientset()
	clientset.PrependReactor("create", "jobs", func(action k8stesting.Action) (bool, k8sruntime.Object, error) {
		return true, nil, fmt.Errorf("job create failed")
	})
	launcher := newFakeLauncher(clientset)

	result, err := launcher.LaunchEvaluationJob(context.Background(), job)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	taskResult := result.Tasks["main_task"]
	if taskResult.State != api.StateFailed {
		t.Fatalf("expected task state failed, got %s", taskResult.State)
	}
	if taskResult.Error == nil || taskResult.Error.MessageCode != constants.MESSAGE_CODE_TASK_DISPATCH_FAILED {
		t.Fatalf("expected a dispatch failure code, got %+v", taskResult.Error)
	}
	if result.State != api.OverallStateFailed {
		t.Fatalf("expected overall state failed, got %s", result.State)
	}

	cmName := configMapName(job.ID, "main_task")
	_, err = clientset.CoreV1().ConfigMaps(defaultNamespace).Get(context.Background(), cmName, metav1.GetOptions{})
	if err == nil || !apierrors.IsNotFound(err) {
		t.Fatalf("expected configmap to be deleted, got %v", err)
	}
}

func TestLaunchEvaluationJobIsolatesDispatchFailures(t *testing.T) {
	t.Setenv(constants.EnvVarServiceURL, "http://service.example")
	job := launcherTestJob()
	job.Config.Tasks.Set("second_task", api.TaskConfig{
		Type:    api.TaskTypeCustom,
		Dataset: api.DatasetRef{Format: "jsonl", Location: "data/other.jsonl"},
		Metrics: []api.MetricConfig{{Type: api.MetricTypeAccuracy}},
	})

	clientset := fake.NewSimpleClientset()
	failName := jobName(job.ID, "main_task")
	clientset.PrependReactor("create", "jobs", func(action k8stesting.Action) (bool, k8sruntime.Object, error) {
		createAction, ok := action.(k8stesting.CreateAction)
		if !ok {
			return false, nil, nil
		}
		batchJob, ok := createAction.GetObject().(*batchv1.Job)
		if !ok {
			return false, nil, nil
		}
		if batchJob.Name == failName {
			return true, nil, fmt.Errorf("job create failed")
		}
		return false, nil, nil
	})
	launcher := newFakeLauncher(clientset)

	result, err := launcher.LaunchEvaluationJob(context.Background(), job)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Tasks["main_task"].State != api.StateFailed {
		t.Fatalf("expected main_task to fail, got %s", result.Tasks["main_task"].State)
	}
	if result.Tasks["second_task"].State != api.StateRunning {
		t.Fatalf("expected second_task to be running, got %s", result.Tasks["second_task"].State)
	}
	if result.State != api.OverallStateRunning {
		t.Fatalf("expected overall state running while a task is in flight, got %s", result.State)
	}
}

func TestLaunchEvaluationJobRejectsInvalidJob(t *testing.T) {
	launcher := newFakeLauncher(fake.NewSimpleClientset())
	job := &api.EvaluationJob{Config: api.EvaluationConfig{Type: api.EvaluationTypeBenchmark}}
	if _, err := launcher.LaunchEvaluationJob(context.Background(), job); err == nil {
		t.Fatalf("expected an invalid job to be rejected")
	}
}

func TestLaunchEvaluationJobCancellation(t *testing.T) {
	t.Setenv(constants.EnvVarServiceURL, "http://service.example")
	job := launcherTestJob()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	launcher := newFakeLauncher(fake.NewSimpleClientset())
	result, err := launcher.LaunchEvaluationJob(ctx, job)
	if err != nil {
		t.Fatalf("expected a canceled launch to still return a result, got %v", err)
	}
	if result.Tasks["main_task"].State != api.StateCancelled {
		t.Fatalf("expected task state cancelled, got %s", result.Tasks["main_task"].State)
	}
	if result.State != api.OverallStateCancelled {
		t.Fatalf("expected overall state cancelled, got %s", result.State)
	}
}

func TestValidateJobInputProviderRules(t *testing.T) {
	launcher := newFakeLauncher(fake.NewSimpleClientset())

	t.Run("unknown task type", func(t *testing.T) {
		job := launcherTestJob()
		job.Config.Tasks.Set("odd_task", api.TaskConfig{
			Type:    api.TaskType("notebook"),
			Metrics: []api.MetricConfig{{Type: api.MetricTypeAccuracy}},
		})
		result := launcher.ValidateJobInput(job)
		if result.Valid {
			t.Fatalf("expected validation to fail")
		}
		found := false
		for _, message := range result.Errors {
			if strings.Contains(message, "no provider declares task type") {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected a provider error, got %v", result.Errors)
		}
	})

	t.Run("params schema violation", func(t *testing.T) {
		providers := launcherTestProviders()
		provider := providers["provider-1"]
		provider.TaskTypes = []api.ProviderTaskType{{
			Type: api.TaskTypeCustom,
			ParamsSchema: map[string]any{
				"type":     "object",
				"required": []any{"limit"},
				"properties": map[string]any{
					"limit": map[string]any{"type": "number"},
				},
			},
		}}
		providers["provider-1"] = provider
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		launcher := newK8sLauncher(logger, &KubernetesHelper{clientset: fake.NewSimpleClientset()}, providers)

		job := launcherTestJob()
		result := launcher.ValidateJobInput(job)
		if result.Valid {
			t.Fatalf("expected validation to fail without the required limit parameter")
		}

		tasks := api.NewTaskMap()
		tasks.Set("main_task", api.TaskConfig{
			Type:    api.TaskTypeCustom,
			Dataset: api.DatasetRef{Format: "jsonl", Location: "data/questions.jsonl"},
			Metrics: []api.MetricConfig{{Type: api.MetricTypeAccuracy}},
			Params:  api.NewParams().Set("limit", api.IntValue(100)),
		})
		job.Config.Tasks = tasks
		result = launcher.ValidateJobInput(job)
		if !result.Valid {
			t.Fatalf("expected validation to pass with the limit parameter, got %v", result.Errors)
		}
	})
}

func TestReleaseJobResources(t *testing.T) {
	t.Setenv(constants.EnvVarServiceURL, "http://service.example")
	job := launcherTestJob()

	clientset := fake.NewSimpleClientset()
	launcher := newFakeLauncher(clientset)
	if _, err := launcher.LaunchEvaluationJob(context.Background(), job); err != nil {
		t.Fatalf("expected launch to succeed, got %v", err)
	}

	if err := launcher.ReleaseJobResources(context.Background(), job); err != nil {
		t.Fatalf("expected release to succeed, got %v", err)
	}

	cmName := configMapName(job.ID, "main_task")
	_, err := clientset.CoreV1().ConfigMaps(defaultNamespace).Get(context.Background(), cmName, metav1.GetOptions{})
	if err == nil || !apierrors.IsNotFound(err) {
		t.Fatalf("expected configmap to be deleted, got %v", err)
	}

	// Releasing again must tolerate the already-missing objects.
	if err := launcher.ReleaseJobResources(context.Background(), job); err != nil {
		t.Fatalf("expected repeated release to succeed, got %v", err)
	}
}
