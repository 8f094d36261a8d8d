package api

// ProviderResource contains the configuration details for an evaluation
// backend provider. Providers are declared in YAML under config/providers
// and consumed by the kubernetes launcher to dispatch tasks.
type ProviderResource struct {
	ProviderID   string             `mapstructure:"provider_id" yaml:"provider_id" json:"provider_id"`
	ProviderName string             `mapstructure:"provider_name" yaml:"provider_name" json:"provider_name"`
	Description  string             `mapstructure:"description" yaml:"description" json:"description"`
	TaskTypes    []ProviderTaskType `mapstructure:"task_types" yaml:"task_types" json:"task_types"`
	Runtime      *ProviderRuntime   `mapstructure:"runtime" yaml:"runtime" json:"-"`
}

// ProviderTaskType declares one task type a provider can execute, optionally
// with a JSON schema its task parameters must satisfy.
type ProviderTaskType struct {
	Type         TaskType       `mapstructure:"type" yaml:"type" json:"type"`
	Description  string         `mapstructure:"description" yaml:"description" json:"description,omitempty"`
	ParamsSchema map[string]any `mapstructure:"params_schema" yaml:"params_schema" json:"params_schema,omitempty"`
}

// TaskTypeSpec returns the declaration for taskType, or nil when the
// provider does not support it.
func (p *ProviderResource) TaskTypeSpec(taskType TaskType) *ProviderTaskType {
	for i := range p.TaskTypes {
		if p.TaskTypes[i].Type == taskType {
			return &p.TaskTypes[i]
		}
	}
	return nil
}

type ProviderRuntime struct {
	K8s *K8sRuntimeConfig `mapstructure:"k8s" yaml:"k8s" json:"k8s,omitempty"`
}

// K8sRuntimeConfig contains runtime configuration for Kubernetes jobs.
//
// Example YAML for provider configs:
//
//	runtime:
//	  k8s:
//	    image: "quay.io/eval-forge/adapter:latest"
//	    entrypoint:
//	      - "/path/to/program"
//	    cpu_request: "250m"
//	    memory_request: "512Mi"
//	    cpu_limit: "1"
//	    memory_limit: "2Gi"
//	    env:
//	      - name: FOO
//	        value: "bar"
type K8sRuntimeConfig struct {
	Image         string   `mapstructure:"image" yaml:"image"`
	Entrypoint    []string `mapstructure:"entrypoint" yaml:"entrypoint"`
	CPURequest    string   `mapstructure:"cpu_request" yaml:"cpu_request"`
	MemoryRequest string   `mapstructure:"memory_request" yaml:"memory_request"`
	CPULimit      string   `mapstructure:"cpu_limit" yaml:"cpu_limit"`
	MemoryLimit   string   `mapstructure:"memory_limit" yaml:"memory_limit"`
	Env           []EnvVar `mapstructure:"env" yaml:"env"`
}

// ProviderResourceList represents response for listing providers
type ProviderResourceList struct {
	TotalCount int                `json:"total_count"`
	Items      []ProviderResource `json:"items,omitempty"`
}
