package config

// Config is the root of the service configuration, loaded from config.yaml
// with environment and secret overlays applied.
type Config struct {
	Service   *ServiceConfig   `mapstructure:"service,omitempty"`
	Database  *DatabaseConfig  `mapstructure:"database,omitempty"`
	Launcher  *LauncherConfig  `mapstructure:"launcher,omitempty"`
	Telemetry *TelemetryConfig `mapstructure:"telemetry,omitempty"`
}

type ServiceConfig struct {
	Version         string `mapstructure:"version,omitempty"`
	Build           string `mapstructure:"build,omitempty"`
	BuildDate       string `mapstructure:"build_date,omitempty"`
	Port            int    `mapstructure:"port,omitempty"`
	ReadyFile       string `mapstructure:"ready_file"`
	TerminationFile string `mapstructure:"termination_file"`
	LocalMode       bool   `mapstructure:"local_mode,omitempty"`
}

// DatabaseConfig carries driver-specific keys (driver, url, password, ...)
// without committing to one driver's shape.
type DatabaseConfig map[string]any

// LauncherConfig selects and tunes the evaluation backend.
type LauncherConfig struct {
	// Type selects the backend: "local" or "kubernetes". The -local flag
	// forces "local" regardless.
	Type           string `mapstructure:"type,omitempty"`
	MaxTaskWorkers int    `mapstructure:"max_task_workers,omitempty"`
	WorkDir        string `mapstructure:"work_dir,omitempty"`
}

// TelemetryConfig tunes the OpenTelemetry bootstrap.
type TelemetryConfig struct {
	// TracesExporter is one of "none", "stdout", "otlp-grpc", "otlp-http".
	TracesExporter string `mapstructure:"traces_exporter,omitempty"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint,omitempty"`
	OTLPInsecure   bool   `mapstructure:"otlp_insecure,omitempty"`
	// AuditLog enables job lifecycle records on the OpenTelemetry log API.
	AuditLog bool `mapstructure:"audit_log,omitempty"`
}
