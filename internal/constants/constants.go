package constants

// Path parameter names used in route patterns and looked up by handlers.
const (
	PATH_PARAMETER_JOB_ID        = "job_id"
	PATH_PARAMETER_COLLECTION_ID = "collection_id"
	PATH_PARAMETER_PROVIDER_ID   = "provider_id"
)

// Structured logging field names. Keep these stable, dashboards key on them.
const (
	LOG_REQUEST_ID = "request_id"
	LOG_METHOD     = "method"
	LOG_URI        = "uri"
	LOG_USER_AGENT = "user_agent"
	LOG_REMOTE_ADR = "remote_addr"
	LOG_USER       = "remote_user"
	LOG_REFERER    = "referer"
	LOG_JOB_ID     = "job_id"
	LOG_TASK_NAME  = "task_name"
	LOG_LAUNCHER   = "launcher"
)

// Environment variables consumed by the server process.
const (
	EnvVarTerminationFile = "TERMINATION_FILE"
	EnvVarReadyFile       = "READY_FILE"
	EnvVarServiceURL      = "SERVICE_URL"
	EnvVarConfigPath      = "CONFIG_PATH"
	EnvVarLogLevel        = "LOG_LEVEL"
)

// Message codes recorded in MessageInfo entries on job and task lifecycle
// records. These are identifiers, not user-facing text.
const (
	MESSAGE_CODE_EVALUATION_JOB_CREATED   = "evaluation_job_created"
	MESSAGE_CODE_EVALUATION_JOB_RUNNING   = "evaluation_job_running"
	MESSAGE_CODE_EVALUATION_JOB_RETRIEVED = "evaluation_job_retrieved"
	MESSAGE_CODE_EVALUATION_JOB_COMPLETED = "evaluation_job_completed"
	MESSAGE_CODE_EVALUATION_JOB_FAILED    = "evaluation_job_failed"
	MESSAGE_CODE_EVALUATION_JOB_CANCELLED = "evaluation_job_cancelled"
	MESSAGE_CODE_TASK_SETUP_FAILED        = "task_setup_failed"
	MESSAGE_CODE_TASK_DATASET_FAILED      = "task_dataset_failed"
	MESSAGE_CODE_TASK_EVALUATOR_FAILED    = "task_evaluator_failed"
	MESSAGE_CODE_TASK_SCORING_FAILED      = "task_scoring_failed"
	MESSAGE_CODE_TASK_CONVERSION_FAILED   = "task_conversion_failed"
	MESSAGE_CODE_TASK_DISPATCH_FAILED     = "task_dispatch_failed"
	MESSAGE_CODE_TASK_CANCELLED           = "task_cancelled"
)
