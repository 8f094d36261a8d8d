package k8s

// Contains the builder functions that construct Kubernetes objects
import (
	"fmt"
	"regexp"
	"strings"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	maxK8sNameLength                = 63
	defaultJobTTLSeconds            = int32(3600)
	runnerContainerName             = "runner"
	taskSpecVolumeName              = "task-spec"
	dataVolumeName                  = "data"
	taskSpecFileName                = "task.json"
	taskSpecMountPath               = "/meta/task.json"
	dataMountPath                   = "/data"
	jobPrefix                       = "eval-task-"
	specSuffix                      = "-spec"
	envJobIDName                    = "JOB_ID"
	envTaskNameName                 = "TASK_NAME"
	defaultAllowPrivilegeEscalation = false
	defaultRunAsUser                = int64(1000)
	defaultRunAsGroup               = int64(1000)
	labelAppKey                     = "app"
	labelComponentKey               = "component"
	labelJobIDKey                   = "job_id"
	labelProviderIDKey              = "provider_id"
	labelTaskNameKey                = "task_name"
	labelAppValue                   = "evalforge"
	labelComponentValue             = "evaluation-task"
	capabilityDropAll               = "ALL"
)

var dnsLabelSanitizer = regexp.MustCompile(`[^a-z0-9-]+`)

func sanitizeDNS1123Label(value string) string {
	safe := strings.ToLower(value)
	safe = dnsLabelSanitizer.ReplaceAllString(safe, "-")
	safe = strings.Trim(safe, "-")
	if safe == "" {
		return "x"
	}
	return safe
}

func buildK8sName(jobID, taskName, suffix string) string {
	base := jobPrefix + sanitizeDNS1123Label(jobID) + "-" + sanitizeDNS1123Label(taskName)
	maxBase := maxK8sNameLength - len(suffix)
	if maxBase < 1 {
		maxBase = 1
	}
	if len(base) > maxBase {
		base = strings.Trim(base[:maxBase], "-")
	}
	name := base + suffix
	if len(name) > maxK8sNameLength {
		name = strings.Trim(name[:maxK8sNameLength], "-")
	}
	return name
}

func buildConfigMap(cfg *jobConfig) *corev1.ConfigMap {
	labels := jobLabels(cfg.jobID, cfg.providerID, cfg.taskName)
	name := configMapName(cfg.jobID, cfg.taskName)
	return &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: cfg.namespace,
			Labels:    labels,
		},
		Data: map[string]string{
			taskSpecFileName: cfg.taskSpecJSON,
		},
	}
}

func buildJob(cfg *jobConfig) (*batchv1.Job, error) {
	if cfg.runnerImage == "" {
		return nil, fmt.Errorf("runner image is required")
	}
	labels := jobLabels(cfg.jobID, cfg.providerID, cfg.taskName)
	jobName := jobName(cfg.jobID, cfg.taskName)
	configMap := configMapName(cfg.jobID, cfg.taskName)

	ttl := defaultJobTTLSeconds
	backoff := int32(0)

	envVars := buildEnvVars(cfg)
	resources, err := buildResources(cfg)
	if err != nil {
		return nil, err
	}

	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      jobName,
			Namespace: cfg.namespace,
			Labels:    labels,
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:            &backoff,
			TTLSecondsAfterFinished: &ttl,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: labels,
				},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{
						{
							Name:            runnerContainerName,
							Image:           cfg.runnerImage,
							ImagePullPolicy: corev1.PullIfNotPresent,
							Command:         buildContainerCommand(cfg.entrypoint),
							Env:             envVars,
							Resources:       resources,
							SecurityContext: defaultSecurityContext(),
							VolumeMounts: []corev1.VolumeMount{
								{
									Name:      taskSpecVolumeName,
									MountPath: taskSpecMountPath,
									SubPath:   taskSpecFileName,
									ReadOnly:  true,
								},
								{
									Name:      dataVolumeName,
									MountPath: dataMountPath,
								},
							},
						},
					},
					Volumes: []corev1.Volume{
						{
							Name: taskSpecVolumeName,
							VolumeSource: corev1.VolumeSource{
								ConfigMap: &corev1.ConfigMapVolumeSource{
									LocalObjectReference: corev1.LocalObjectReference{Name: configMap},
								},
							},
						},
						{
							Name: dataVolumeName,
							VolumeSource: corev1.VolumeSource{
								EmptyDir: &corev1.EmptyDirVolumeSource{},
							},
						},
					},
				},
			},
		},
	}, nil
}

func buildContainerCommand(entrypoint []string) []string {
	if len(entrypoint) == 0 {
		return nil
	}
	var command []string
	for _, part := range entrypoint {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		command = append(command, item)
	}
	if len(command) == 0 {
		return nil
	}
	return command
}

func defaultSecurityContext() *corev1.SecurityContext {
	return &corev1.SecurityContext{
		AllowPrivilegeEscalation: boolPtr(defaultAllowPrivilegeEscalation),
		RunAsNonRoot:             boolPtr(true),
		RunAsUser:                int64Ptr(defaultRunAsUser),
		RunAsGroup:               int64Ptr(defaultRunAsGroup),
		Capabilities: &corev1.Capabilities{
			Drop: []corev1.Capability{
				capabilityDropAll,
			},
		},
		SeccompProfile: &corev1.SeccompProfile{
			Type: corev1.SeccompProfileTypeRuntimeDefault,
		},
	}
}

func boolPtr(value bool) *bool {
	return &value
}

func int64Ptr(value int64) *int64 {
	return &value
}

func buildEnvVars(cfg *jobConfig) []corev1.EnvVar {
	var env []corev1.EnvVar
	seen := map[string]bool{}
	env = append(env, corev1.EnvVar{
		Name:  envJobIDName,
		Value: cfg.jobID,
	})
	seen[envJobIDName] = true
	env = append(env, corev1.EnvVar{
		Name:  envTaskNameName,
		Value: cfg.taskName,
	})
	seen[envTaskNameName] = true
	for _, item := range cfg.defaultEnv {
		if item.Name == "" || seen[item.Name] {
			continue
		}
		seen[item.Name] = true
		env = append(env, corev1.EnvVar{
			Name:  item.Name,
			Value: item.Value,
		})
	}
	return env
}

func buildResources(cfg *jobConfig) (corev1.ResourceRequirements, error) {
	resources := corev1.ResourceRequirements{
		Requests: corev1.ResourceList{},
		Limits:   corev1.ResourceList{},
	}
	if cfg.cpuRequest != "" {
		quantity, err := resource.ParseQuantity(cfg.cpuRequest)
		if err != nil {
			return corev1.ResourceRequirements{}, fmt.Errorf("parse cpu request: %w", err)
		}
		resources.Requests[corev1.ResourceCPU] = quantity
	}
	if cfg.memoryRequest != "" {
		quantity, err := resource.ParseQuantity(cfg.memoryRequest)
		if err != nil {
			return corev1.ResourceRequirements{}, fmt.Errorf("parse memory request: %w", err)
		}
		resources.Requests[corev1.ResourceMemory] = quantity
	}
	if cfg.cpuLimit != "" {
		quantity, err := resource.ParseQuantity(cfg.cpuLimit)
		if err != nil {
			return corev1.ResourceRequirements{}, fmt.Errorf("parse cpu limit: %w", err)
		}
		resources.Limits[corev1.ResourceCPU] = quantity
	}
	if cfg.memoryLimit != "" {
		quantity, err := resource.ParseQuantity(cfg.memoryLimit)
		if err != nil {
			return corev1.ResourceRequirements{}, fmt.Errorf("parse memory limit: %w", err)
		}
		resources.Limits[corev1.ResourceMemory] = quantity
	}
	if len(resources.Requests) == 0 {
		resources.Requests = nil
	}
	if len(resources.Limits) == 0 {
		resources.Limits = nil
	}
	return resources, nil
}

func jobName(jobID, taskName string) string {
	return buildK8sName(jobID, taskName, "")
}

func configMapName(jobID, taskName string) string {
	return buildK8sName(jobID, taskName, specSuffix)
}

func jobLabels(jobID, providerID, taskName string) map[string]string {
	return map[string]string{
		labelAppKey:        labelAppValue,
		labelComponentKey:  labelComponentValue,
		labelJobIDKey:      jobID,
		labelProviderIDKey: providerID,
		labelTaskNameKey:   sanitizeDNS1123Label(taskName),
	}
}
