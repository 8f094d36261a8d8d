package messages

import (
	"fmt"
	"net/http"
	"strings"
)

// This package provides all the error messages that should be reported to the user.
// Note that we add a comment with the message parameters so that it is possible
// to see the parameters in the IDE when creating an error message.
var (
	// API errors that are not storage specific

	// MissingPathParameter The path parameter '{{.ParameterName}}' is required.
	MissingPathParameter = createMessage(
		http.StatusNotFound,
		"missing_path_parameter",
		"The path parameter '{{.ParameterName}}' is required.",
	)

	// ResourceNotFound The {{.Type}} resource {{.ResourceId}} was not found.
	ResourceNotFound = createMessage(
		http.StatusNotFound,
		"resource_not_found",
		"The {{.Type}} resource {{.ResourceId}} was not found.",
	)

	// QueryParameterRequired The query parameter '{{.ParameterName}}' is required.
	QueryParameterRequired = createMessage(
		http.StatusBadRequest,
		"query_parameter_required",
		"The query parameter '{{.ParameterName}}' is required.",
	)
	// QueryParameterInvalid The query parameter '{{.ParameterName}}' is not a valid {{.Type}}: '{{.Value}}'.
	QueryParameterInvalid = createMessage(
		http.StatusBadRequest,
		"query_parameter_invalid",
		"The query parameter '{{.ParameterName}}' is not a valid {{.Type}}: '{{.Value}}'.",
	)

	// Evaluation job errors

	// ValidationFailed The evaluation job is not valid: {{.Errors}}.
	ValidationFailed = createMessage(
		http.StatusBadRequest,
		"validation_failed",
		"The evaluation job is not valid: {{.Errors}}.",
	)

	// JobNotCancellable The evaluation job {{.ResourceId}} is already in terminal state '{{.State}}'.
	JobNotCancellable = createMessage(
		http.StatusConflict,
		"job_not_cancellable",
		"The evaluation job {{.ResourceId}} is already in terminal state '{{.State}}'.",
	)

	// TaskNotFound The task '{{.TaskName}}' is not part of evaluation job {{.ResourceId}}.
	TaskNotFound = createMessage(
		http.StatusBadRequest,
		"task_not_found",
		"The task '{{.TaskName}}' is not part of evaluation job {{.ResourceId}}.",
	)

	// StatusEventInvalid The status event for evaluation job {{.ResourceId}} is not valid: '{{.Error}}'.
	StatusEventInvalid = createMessage(
		http.StatusBadRequest,
		"status_event_invalid",
		"The status event for evaluation job {{.ResourceId}} is not valid: '{{.Error}}'.",
	)

	// PatchFailed The patch for the {{.Type}} resource {{.ResourceId}} could not be applied: '{{.Error}}'.
	PatchFailed = createMessage(
		http.StatusBadRequest,
		"patch_failed",
		"The patch for the {{.Type}} resource {{.ResourceId}} could not be applied: '{{.Error}}'.",
	)

	// LaunchFailed The evaluation job {{.ResourceId}} could not be launched: '{{.Error}}'.
	LaunchFailed = createMessage(
		http.StatusInternalServerError,
		"launch_failed",
		"The evaluation job {{.ResourceId}} could not be launched: '{{.Error}}'.",
	)

	// Configuration related errors

	// ConfigurationFailed The service startup failed: '{{.Error}}'.
	ConfigurationFailed = createMessage(
		http.StatusInternalServerError,
		"configuration_failed",
		"The service startup failed: '{{.Error}}'.",
	)

	// JSON errors that are not coming from user input

	// JSONUnmarshalFailed The JSON unmarshalling failed for the {{.Type}}: '{{.Error}}'.
	JSONUnmarshalFailed = createMessage(
		http.StatusInternalServerError,
		"json_unmarshal_failed",
		"The JSON unmarshalling failed for the {{.Type}}: '{{.Error}}'.",
	)

	// Storage related errors

	// DatabaseOperationFailed The request for the {{.Type}} resource {{.ResourceId}} failed: '{{.Error}}'.
	DatabaseOperationFailed = createMessage(
		http.StatusInternalServerError,
		"database_operation_failed",
		"The request for the {{.Type}} resource {{.ResourceId}} failed: '{{.Error}}'.",
	)
	// QueryFailed The request for the {{.Type}} failed: '{{.Error}}'.
	QueryFailed = createMessage(
		http.StatusInternalServerError,
		"query_failed",
		"The request for the {{.Type}} failed: '{{.Error}}'.",
	)

	// InternalServerError An internal server error occurred: '{{.Error}}'.
	InternalServerError = createMessage(
		http.StatusInternalServerError,
		"internal_server_error",
		"An internal server error occurred: '{{.Error}}'.",
	)

	// MethodNotAllowed The HTTP method {{.Method}} is not allowed for the API {{.Api}}.
	MethodNotAllowed = createMessage(
		http.StatusMethodNotAllowed,
		"method_not_allowed",
		"The HTTP method {{.Method}} is not allowed for the API {{.Api}}.",
	)

	// NotImplemented The API {{.Api}} is not yet implemented.
	NotImplemented = createMessage(
		http.StatusNotImplemented,
		"not_implemented",
		"The API {{.Api}} is not yet implemented.",
	)

	// UnknownError An unknown error occurred: '{{.Error}}'. This is a fallback error if the error is not a service error.
	UnknownError = createMessage(
		http.StatusInternalServerError,
		"unknown_error",
		"An unknown error occurred: {{.Error}}.",
	)
)

type MessageCode struct {
	status int
	code   string
	one    string
}

func (m *MessageCode) GetStatus() int {
	return m.status
}

func (m *MessageCode) GetCode() string {
	return m.code
}

func (m *MessageCode) GetMessage() string {
	return m.one
}

func createMessage(status int, code string, one string) *MessageCode {
	return &MessageCode{
		status,
		code,
		one,
	}
}

func GetErrorMessage(messageCode *MessageCode, messageParams ...any) string {
	msg := messageCode.GetMessage()
	for i := 0; i < len(messageParams); i += 2 {
		param := messageParams[i]
		var paramValue any
		if i+1 < len(messageParams) {
			paramValue = messageParams[i+1]
		} else {
			paramValue = "NOT_DEFINED" // this is a placeholder for a missing parameter value - if you see this value then the code needs to be fixed
		}
		msg = strings.ReplaceAll(msg, fmt.Sprintf("{{.%v}}", param), fmt.Sprintf("%v", paramValue))
	}
	return msg
}
