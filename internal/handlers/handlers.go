package handlers

import (
	"errors"
	"strconv"

	"github.com/eval-forge/eval-forge/internal/abstractions"
	"github.com/eval-forge/eval-forge/internal/config"
	"github.com/eval-forge/eval-forge/internal/executioncontext"
	"github.com/eval-forge/eval-forge/internal/http_wrappers"
	"github.com/eval-forge/eval-forge/internal/identity"
	"github.com/eval-forge/eval-forge/internal/messages"
	"github.com/eval-forge/eval-forge/internal/serviceerrors"
	"github.com/eval-forge/eval-forge/internal/telemetry"
	"github.com/eval-forge/eval-forge/pkg/api"
	"github.com/go-playground/validator/v10"
)

const (
	DEFAULT_PAGE_LIMIT = 50
	MAX_PAGE_LIMIT     = 200
)

type Handlers struct {
	storage       abstractions.Storage
	validate      *validator.Validate
	launcher      abstractions.Launcher
	providers     map[string]api.ProviderResource
	serviceConfig *config.Config
	ids           identity.Source
	audit         *telemetry.Audit
}

func New(storage abstractions.Storage,
	validate *validator.Validate,
	launcher abstractions.Launcher,
	providers map[string]api.ProviderResource,
	serviceConfig *config.Config,
	ids identity.Source,
	audit *telemetry.Audit) *Handlers {

	if ids == nil {
		ids = identity.UUIDSource{}
	}
	return &Handlers{
		storage:       storage,
		validate:      validate,
		launcher:      launcher,
		providers:     providers,
		serviceConfig: serviceConfig,
		ids:           ids,
		audit:         audit,
	}
}

// writeError maps an error from a lower layer onto the response. Service
// errors carry their own message code and parameters; anything else becomes
// an unknown error so no internal detail shape leaks unreviewed.
func (h *Handlers) writeError(ctx *executioncontext.ExecutionContext, w http_wrappers.ResponseWrapper, err error) {
	var serviceError abstractions.ServiceError
	if errors.As(err, &serviceError) {
		w.ErrorWithMessageCode(ctx.RequestID, serviceError.MessageCode(), serviceError.MessageParams()...)
		return
	}
	w.ErrorWithMessageCode(ctx.RequestID, messages.UnknownError, "Error", err.Error())
}

// storageFor returns the storage handle scoped to this request's context and
// logger.
func (h *Handlers) storageFor(ctx *executioncontext.ExecutionContext) abstractions.Storage {
	return h.storage.WithContext(ctx.Ctx).WithLogger(ctx.Logger)
}

func intQueryParam(r http_wrappers.RequestWrapper, name string, fallback int) (int, *serviceerrors.ServiceError) {
	values := r.Query(name)
	if len(values) == 0 || values[0] == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(values[0])
	if err != nil || parsed < 0 {
		return 0, serviceerrors.NewServiceError(messages.QueryParameterInvalid, "ParameterName", name, "Type", "integer", "Value", values[0])
	}
	return parsed, nil
}

func boolQueryParam(r http_wrappers.RequestWrapper, name string) (bool, *serviceerrors.ServiceError) {
	values := r.Query(name)
	if len(values) == 0 || values[0] == "" {
		return false, nil
	}
	parsed, err := strconv.ParseBool(values[0])
	if err != nil {
		return false, serviceerrors.NewServiceError(messages.QueryParameterInvalid, "ParameterName", name, "Type", "boolean", "Value", values[0])
	}
	return parsed, nil
}

// pageParams reads limit and offset with the service defaults applied.
func pageParams(r http_wrappers.RequestWrapper) (limit int, offset int, err *serviceerrors.ServiceError) {
	limit, err = intQueryParam(r, "limit", DEFAULT_PAGE_LIMIT)
	if err != nil {
		return 0, 0, err
	}
	if limit == 0 || limit > MAX_PAGE_LIMIT {
		limit = MAX_PAGE_LIMIT
	}
	offset, err = intQueryParam(r, "offset", 0)
	if err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}
