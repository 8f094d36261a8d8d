package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/eval-forge/eval-forge/internal/abstractions"
	"github.com/eval-forge/eval-forge/internal/constants"
	"github.com/eval-forge/eval-forge/internal/executioncontext"
	"github.com/eval-forge/eval-forge/internal/http_wrappers"
	"github.com/eval-forge/eval-forge/internal/messages"
	"github.com/eval-forge/eval-forge/internal/metrics"
	"github.com/eval-forge/eval-forge/internal/serialization"
	"github.com/eval-forge/eval-forge/pkg/api"
)

// HandleCreateEvaluation handles POST /api/v1/evaluations/jobs. The job is
// validated and stored synchronously; execution is dispatched in the
// background and the caller polls for status, so the response is a 202 with
// the stored resource.
func (h *Handlers) HandleCreateEvaluation(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	bodyBytes, err := r.BodyAsBytes()
	if err != nil {
		w.ErrorWithMessageCode(ctx.RequestID, messages.InternalServerError, "Error", err.Error())
		return
	}

	submission := &api.EvaluationJobSubmission{}
	if err := serialization.Unmarshal(h.validate, ctx, bodyBytes, submission); err != nil {
		w.ErrorWithMessageCode(ctx.RequestID, messages.ValidationFailed, "Errors", err.Error())
		return
	}

	job, err := h.buildJob(ctx, submission)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	if result := h.launcher.ValidateJobInput(job); !result.Valid {
		w.ErrorWithMessageCode(ctx.RequestID, messages.ValidationFailed, "Errors", strings.Join(result.Errors, "; "))
		return
	}

	resource, err := h.storageFor(ctx).CreateEvaluationJob(job)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	metrics.JobsSubmitted.Inc()
	h.audit.JobSubmitted(ctx.Ctx, job.ID)

	// the request context dies with this response; the dispatch runs on its
	// own background context
	go h.dispatchEvaluationJob(ctx.Logger, job)

	w.WriteJSON(resource, http.StatusAccepted)
}

// buildJob turns a submission into the job handed to validation and the
// launcher: the identifier is assigned here when the caller did not choose
// one, and a referenced collection's tasks are merged in underneath the
// submission's own tasks (inline tasks win on name collision).
func (h *Handlers) buildJob(ctx *executioncontext.ExecutionContext, submission *api.EvaluationJobSubmission) (*api.EvaluationJob, error) {
	job := &api.EvaluationJob{
		ID:     submission.ID,
		Config: submission.Config,
		Target: submission.Target,
	}
	if job.ID == "" {
		job.ID = h.ids.NewID()
	}

	if submission.Collection != nil {
		collection, err := h.storageFor(ctx).GetCollection(submission.Collection.ID)
		if err != nil {
			return nil, err
		}
		merged := api.NewTaskMap()
		for _, name := range collection.Tasks.Names() {
			taskConfig, _ := collection.Tasks.Get(name)
			merged.Set(name, taskConfig)
		}
		for _, name := range job.Config.Tasks.Names() {
			taskConfig, _ := job.Config.Tasks.Get(name)
			merged.Set(name, taskConfig)
		}
		job.Config.Tasks = merged
	}
	return job, nil
}

// dispatchEvaluationJob hands the stored job to the launcher and records the
// outcome. Launch errors mark the job failed; a returned result is stored as
// is, which for asynchronous backends reflects dispatch state only.
func (h *Handlers) dispatchEvaluationJob(logger *slog.Logger, job *api.EvaluationJob) {
	ctx := context.Background()
	store := h.storage.WithContext(ctx).WithLogger(logger)

	h.audit.JobDispatched(ctx, job.ID, h.launcher.Name())
	logger.Info("Dispatching evaluation job", constants.LOG_JOB_ID, job.ID, constants.LOG_LAUNCHER, h.launcher.Name())

	result, err := h.launcher.LaunchEvaluationJob(ctx, job)
	if err != nil {
		logger.Error("Evaluation job launch failed", constants.LOG_JOB_ID, job.ID, "error", err)
		statusErr := store.UpdateEvaluationJobStatus(job.ID, api.OverallStateFailed, &api.MessageInfo{
			Message:     err.Error(),
			MessageCode: constants.MESSAGE_CODE_EVALUATION_JOB_FAILED,
		})
		if statusErr != nil {
			logger.Error("Failed to record launch failure", constants.LOG_JOB_ID, job.ID, "error", statusErr)
		}
		return
	}
	if result == nil {
		return
	}

	if err := store.SetEvaluationJobResult(job.ID, result); err != nil {
		logger.Error("Failed to store evaluation result", constants.LOG_JOB_ID, job.ID, "error", err)
		return
	}
	if result.State.IsTerminal() {
		h.audit.JobCompleted(ctx, job.ID, result.State.String())
	}
}

// HandleListEvaluations handles GET /api/v1/evaluations/jobs
func (h *Handlers) HandleListEvaluations(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	limit, offset, paramErr := pageParams(r)
	if paramErr != nil {
		h.writeError(ctx, w, paramErr)
		return
	}

	stateFilter := ""
	if values := r.Query("state"); len(values) > 0 && values[0] != "" {
		state, err := api.GetOverallState(values[0])
		if err != nil {
			w.ErrorWithMessageCode(ctx.RequestID, messages.QueryParameterInvalid, "ParameterName", "state", "Type", "state", "Value", values[0])
			return
		}
		stateFilter = string(state)
	}

	results, err := h.storageFor(ctx).GetEvaluationJobs(limit, offset, stateFilter)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	page, err := CreatePage(results.TotalStored, offset, limit, ctx, r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	w.WriteJSON(api.EvaluationJobResourceList{
		Page:  *page,
		Items: results.Items,
	}, http.StatusOK)
}

// HandleGetEvaluation handles GET /api/v1/evaluations/jobs/{job_id}
func (h *Handlers) HandleGetEvaluation(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	id := r.PathValue(constants.PATH_PARAMETER_JOB_ID)
	if id == "" {
		w.ErrorWithMessageCode(ctx.RequestID, messages.MissingPathParameter, "ParameterName", constants.PATH_PARAMETER_JOB_ID)
		return
	}

	resource, err := h.storageFor(ctx).GetEvaluationJob(id)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	w.WriteJSON(resource, http.StatusOK)
}

// HandleCancelEvaluation handles DELETE /api/v1/evaluations/jobs/{job_id}.
// The default is a soft cancel that keeps the record; ?hard=true releases
// the launcher's resources and removes the record entirely.
func (h *Handlers) HandleCancelEvaluation(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	id := r.PathValue(constants.PATH_PARAMETER_JOB_ID)
	if id == "" {
		w.ErrorWithMessageCode(ctx.RequestID, messages.MissingPathParameter, "ParameterName", constants.PATH_PARAMETER_JOB_ID)
		return
	}
	hardDelete, paramErr := boolQueryParam(r, "hard")
	if paramErr != nil {
		h.writeError(ctx, w, paramErr)
		return
	}

	store := h.storageFor(ctx)
	resource, err := store.GetEvaluationJob(id)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	if !hardDelete && resource.Status != nil && resource.Status.State.IsTerminal() {
		w.ErrorWithMessageCode(ctx.RequestID, messages.JobNotCancellable, "ResourceId", id, "State", resource.Status.State)
		return
	}

	if hardDelete {
		if releaser, ok := h.launcher.(abstractions.ResourceReleaser); ok {
			if err := releaser.ReleaseJobResources(ctx.Ctx, &resource.Job); err != nil {
				// owner references garbage collect whatever release missed
				ctx.Logger.Error("Failed to release job resources", constants.LOG_JOB_ID, id, "error", err)
			}
		}
	}

	if err := store.DeleteEvaluationJob(id, hardDelete); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.audit.JobCancelled(ctx.Ctx, id)
	w.SetStatusCode(http.StatusNoContent)
}

// HandleEvaluationJobEvents handles POST /api/v1/evaluations/jobs/{job_id}/events.
// Out-of-process task executors report progress here; the event is folded
// into the stored job by the storage layer.
func (h *Handlers) HandleEvaluationJobEvents(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	id := r.PathValue(constants.PATH_PARAMETER_JOB_ID)
	if id == "" {
		w.ErrorWithMessageCode(ctx.RequestID, messages.MissingPathParameter, "ParameterName", constants.PATH_PARAMETER_JOB_ID)
		return
	}

	bodyBytes, err := r.BodyAsBytes()
	if err != nil {
		w.ErrorWithMessageCode(ctx.RequestID, messages.InternalServerError, "Error", err.Error())
		return
	}
	event := &api.StatusEvent{}
	if err := serialization.Unmarshal(h.validate, ctx, bodyBytes, event); err != nil {
		w.ErrorWithMessageCode(ctx.RequestID, messages.StatusEventInvalid, "ResourceId", id, "Error", err.Error())
		return
	}

	if err := h.storageFor(ctx).RecordTaskStatus(id, event.TaskStatusEvent); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	if event.TaskStatusEvent.State.IsTerminal() {
		metrics.TaskOutcomes.WithLabelValues(h.launcher.Name(), string(event.TaskStatusEvent.State)).Inc()
		if duration, ok := eventDuration(event.TaskStatusEvent); ok {
			metrics.TaskDuration.WithLabelValues(h.launcher.Name()).Observe(duration.Seconds())
		}
	}
	w.SetStatusCode(http.StatusNoContent)
}

// eventDuration derives the task duration from the event timestamps, when
// the executor reported both.
func eventDuration(event *api.TaskStatusEvent) (time.Duration, bool) {
	if event.StartedAt == "" || event.CompletedAt == "" {
		return 0, false
	}
	started, err := api.DateTimeFromString(event.StartedAt)
	if err != nil {
		return 0, false
	}
	completed, err := api.DateTimeFromString(event.CompletedAt)
	if err != nil {
		return 0, false
	}
	if completed.Before(started) {
		return 0, false
	}
	return completed.Sub(started), true
}
