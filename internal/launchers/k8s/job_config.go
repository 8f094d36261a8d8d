package k8s

// Contains the configuration logic that prepares the data needed by the builders
import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/eval-forge/eval-forge/internal/constants"
	"github.com/eval-forge/eval-forge/pkg/api"
)

const (
	defaultCPURequest      = "250m"
	defaultMemoryRequest   = "512Mi"
	defaultCPULimit        = "1"
	defaultMemoryLimit     = "2Gi"
	defaultNamespace       = "default"
	inClusterNamespaceFile = "/var/run/secrets/kubernetes.io/serviceaccount/namespace"
)

// taskSpec is the document mounted into the runner container. The runner
// reports per-task results by POSTing status events to EventsURL.
type taskSpec struct {
	JobID     string                `json:"job_id"`
	TaskName  string                `json:"task_name"`
	Task      *api.TaskConfig       `json:"task"`
	Target    *api.EvaluationTarget `json:"target"`
	EventsURL string                `json:"events_url"`
}

type jobConfig struct {
	jobID         string
	namespace     string
	providerID    string
	taskName      string
	runnerImage   string
	entrypoint    []string
	serviceURL    string
	defaultEnv    []api.EnvVar
	cpuRequest    string
	memoryRequest string
	cpuLimit      string
	memoryLimit   string
	taskSpecJSON  string
}

func buildJobConfig(job *api.EvaluationJob, provider *api.ProviderResource, taskName string) (*jobConfig, error) {
	task, ok := job.Config.Tasks.Get(taskName)
	if !ok {
		return nil, fmt.Errorf("task %q is not part of the job", taskName)
	}

	runtime := provider.Runtime
	if runtime == nil || runtime.K8s == nil {
		return nil, fmt.Errorf("provider %q missing runtime configuration", provider.ProviderID)
	}
	if runtime.K8s.Image == "" {
		return nil, fmt.Errorf("runner image is required")
	}

	serviceURL := os.Getenv(constants.EnvVarServiceURL)
	if serviceURL == "" {
		return nil, fmt.Errorf("%s is required", constants.EnvVarServiceURL)
	}

	spec := taskSpec{
		JobID:     job.ID,
		TaskName:  taskName,
		Task:      &task,
		Target:    &job.Target,
		EventsURL: strings.TrimRight(serviceURL, "/") + "/api/v1/evaluations/jobs/" + job.ID + "/events",
	}
	specJSON, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal task spec: %w", err)
	}

	cpuRequest := defaultIfEmpty(runtime.K8s.CPURequest, defaultCPURequest)
	memoryRequest := defaultIfEmpty(runtime.K8s.MemoryRequest, defaultMemoryRequest)
	cpuLimit := defaultIfEmpty(runtime.K8s.CPULimit, defaultCPULimit)
	memoryLimit := defaultIfEmpty(runtime.K8s.MemoryLimit, defaultMemoryLimit)

	namespace := resolveNamespace("")

	return &jobConfig{
		jobID:         job.ID,
		namespace:     namespace,
		providerID:    provider.ProviderID,
		taskName:      taskName,
		runnerImage:   runtime.K8s.Image,
		entrypoint:    runtime.K8s.Entrypoint,
		serviceURL:    serviceURL,
		defaultEnv:    runtime.K8s.Env,
		cpuRequest:    cpuRequest,
		memoryRequest: memoryRequest,
		cpuLimit:      cpuLimit,
		memoryLimit:   memoryLimit,
		taskSpecJSON:  string(specJSON),
	}, nil
}

func defaultIfEmpty(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func resolveNamespace(configured string) string {
	if configured != "" {
		return configured
	}
	inClusterNamespace := readInClusterNamespace()
	if inClusterNamespace != "" {
		return inClusterNamespace
	}
	return defaultNamespace
}

func readInClusterNamespace() string {
	content, err := os.ReadFile(inClusterNamespaceFile)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(content))
}
