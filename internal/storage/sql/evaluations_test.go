package sql_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/eval-forge/eval-forge/internal/abstractions"
	"github.com/eval-forge/eval-forge/internal/logging"
	"github.com/eval-forge/eval-forge/internal/serviceerrors"
	"github.com/eval-forge/eval-forge/internal/storage"
	"github.com/eval-forge/eval-forge/pkg/api"
)

func newSQLiteStorage(t *testing.T, name string) abstractions.Storage {
	t.Helper()
	logger := logging.FallbackLogger()
	databaseConfig := map[string]any{
		"driver":        "sqlite",
		"url":           fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		"database_name": "eval_forge",
	}
	store, err := storage.NewStorage(&databaseConfig, logger)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testJob(id string) *api.EvaluationJob {
	tasks := api.NewTaskMap()
	tasks.Set("qa_accuracy", api.TaskConfig{
		Type:    api.TaskTypeCustom,
		Dataset: api.DatasetRef{Format: "jsonl", Location: "/data/qa.jsonl"},
		Metrics: []api.MetricConfig{{Type: api.MetricTypeAccuracy}},
	})
	tasks.Set("summarize_f1", api.TaskConfig{
		Type:    api.TaskTypeCustom,
		Dataset: api.DatasetRef{Format: "jsonl", Location: "/data/sum.jsonl"},
		Metrics: []api.MetricConfig{{Type: api.MetricTypeF1}},
	})
	return &api.EvaluationJob{
		ID: id,
		Config: api.EvaluationConfig{
			Type:  api.EvaluationTypeBenchmark,
			Tasks: tasks,
		},
		Target: api.EvaluationTarget{
			Type:  api.TargetTypeModel,
			Model: &api.Model{URL: "http://test-model:8000", Name: "test-model"},
		},
	}
}

// TestRecordTaskStatusFoldsMetrics verifies that task status events are
// folded into the stored document: state transitions aggregate into the
// overall state and reported metrics survive the round trip.
func TestRecordTaskStatusFoldsMetrics(t *testing.T) {
	store := newSQLiteStorage(t, "fold_test")

	created, err := store.CreateEvaluationJob(testJob("job-fold-1"))
	if err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}
	if created.Status.State != api.OverallStatePending {
		t.Fatalf("Expected pending state after create, got %s", created.Status.State)
	}

	err = store.RecordTaskStatus("job-fold-1", &api.TaskStatusEvent{
		TaskName:  "qa_accuracy",
		State:     api.StateRunning,
		StartedAt: "2026-03-01T10:00:00Z",
	})
	if err != nil {
		t.Fatalf("Failed to record running event: %v", err)
	}

	err = store.RecordTaskStatus("job-fold-1", &api.TaskStatusEvent{
		TaskName: "qa_accuracy",
		State:    api.StateCompleted,
		Metrics: map[string]any{
			"accuracy": map[string]any{"accuracy": 0.92},
		},
		CompletedAt: "2026-03-01T10:05:00Z",
	})
	if err != nil {
		t.Fatalf("Failed to record completed event: %v", err)
	}

	resource, err := store.GetEvaluationJob("job-fold-1")
	if err != nil {
		t.Fatalf("Failed to get job: %v", err)
	}
	// one task has not reported yet, so the job must still be running
	if resource.Status.State != api.OverallStateRunning {
		t.Fatalf("Expected running overall state, got %s", resource.Status.State)
	}
	taskResult, ok := resource.Result.Tasks["qa_accuracy"]
	if !ok {
		t.Fatalf("Expected a task result for qa_accuracy, got %v", resource.Result.Tasks)
	}
	if taskResult.StartedAt != "2026-03-01T10:00:00Z" {
		t.Errorf("Expected started_at from the running event, got %q", taskResult.StartedAt)
	}
	score, ok := taskResult.Metrics["accuracy"].Scores["accuracy"]
	if !ok || score.Value != 0.92 {
		t.Errorf("Expected accuracy score 0.92, got %v", taskResult.Metrics)
	}

	err = store.RecordTaskStatus("job-fold-1", &api.TaskStatusEvent{
		TaskName: "summarize_f1",
		State:    api.StateCompleted,
		Metrics: map[string]any{
			"f1": map[string]any{"f1": 0.81},
		},
	})
	if err != nil {
		t.Fatalf("Failed to record second completion: %v", err)
	}

	resource, err = store.GetEvaluationJob("job-fold-1")
	if err != nil {
		t.Fatalf("Failed to get job after completion: %v", err)
	}
	if resource.Status.State != api.OverallStateCompleted {
		t.Fatalf("Expected completed overall state, got %s", resource.Status.State)
	}
	if resource.Result.CompletedTasks != 2 {
		t.Errorf("Expected 2 completed tasks, got %d", resource.Result.CompletedTasks)
	}
}

func TestRecordTaskStatusRejections(t *testing.T) {
	store := newSQLiteStorage(t, "reject_test")

	if _, err := store.CreateEvaluationJob(testJob("job-reject-1")); err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}

	err := store.RecordTaskStatus("job-reject-1", &api.TaskStatusEvent{
		TaskName: "no_such_task",
		State:    api.StateRunning,
	})
	assertServiceError(t, err, http.StatusBadRequest)

	err = store.UpdateEvaluationJobStatus("job-reject-1", api.OverallStateCancelled, &api.MessageInfo{Message: "cancelled"})
	if err != nil {
		t.Fatalf("Failed to cancel job: %v", err)
	}

	// the job is terminal now, late events must be refused
	err = store.RecordTaskStatus("job-reject-1", &api.TaskStatusEvent{
		TaskName: "qa_accuracy",
		State:    api.StateCompleted,
	})
	assertServiceError(t, err, http.StatusBadRequest)

	err = store.RecordTaskStatus("job-missing", &api.TaskStatusEvent{
		TaskName: "qa_accuracy",
		State:    api.StateRunning,
	})
	assertServiceError(t, err, http.StatusNotFound)
}

func TestDeleteEvaluationJob(t *testing.T) {
	store := newSQLiteStorage(t, "delete_test")

	if _, err := store.CreateEvaluationJob(testJob("job-delete-1")); err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}

	// soft delete keeps the record and cancels it
	if err := store.DeleteEvaluationJob("job-delete-1", false); err != nil {
		t.Fatalf("Failed to soft delete job: %v", err)
	}
	resource, err := store.GetEvaluationJob("job-delete-1")
	if err != nil {
		t.Fatalf("Expected soft deleted job to remain readable: %v", err)
	}
	if resource.Status.State != api.OverallStateCancelled {
		t.Fatalf("Expected cancelled state after soft delete, got %s", resource.Status.State)
	}

	if err := store.DeleteEvaluationJob("job-delete-1", true); err != nil {
		t.Fatalf("Failed to hard delete job: %v", err)
	}
	_, err = store.GetEvaluationJob("job-delete-1")
	assertServiceError(t, err, http.StatusNotFound)

	err = store.DeleteEvaluationJob("job-delete-1", true)
	assertServiceError(t, err, http.StatusNotFound)
}

func TestGetEvaluationJobsFilterAndPaging(t *testing.T) {
	store := newSQLiteStorage(t, "list_test")

	for i := 1; i <= 3; i++ {
		if _, err := store.CreateEvaluationJob(testJob(fmt.Sprintf("job-list-%d", i))); err != nil {
			t.Fatalf("Failed to create job %d: %v", i, err)
		}
	}
	err := store.UpdateEvaluationJobStatus("job-list-2", api.OverallStateCancelled, &api.MessageInfo{Message: "cancelled"})
	if err != nil {
		t.Fatalf("Failed to cancel job: %v", err)
	}

	results, err := store.GetEvaluationJobs(2, 0, "")
	if err != nil {
		t.Fatalf("Failed to list jobs: %v", err)
	}
	if results.TotalStored != 3 {
		t.Fatalf("Expected 3 stored jobs, got %d", results.TotalStored)
	}
	if len(results.Items) != 2 {
		t.Fatalf("Expected a page of 2 jobs, got %d", len(results.Items))
	}
	// newest identifiers come back first
	if results.Items[0].Resource.ID != "job-list-3" || results.Items[1].Resource.ID != "job-list-2" {
		t.Errorf("Unexpected page ordering: %s, %s", results.Items[0].Resource.ID, results.Items[1].Resource.ID)
	}

	results, err = store.GetEvaluationJobs(10, 0, string(api.OverallStateCancelled))
	if err != nil {
		t.Fatalf("Failed to list cancelled jobs: %v", err)
	}
	if results.TotalStored != 1 || len(results.Items) != 1 {
		t.Fatalf("Expected exactly one cancelled job, got %d of %d", len(results.Items), results.TotalStored)
	}
	if results.Items[0].Resource.ID != "job-list-2" {
		t.Errorf("Expected job-list-2, got %s", results.Items[0].Resource.ID)
	}
}

func assertServiceError(t *testing.T, err error, wantStatus int) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected a service error with status %d, got nil", wantStatus)
	}
	var serviceError *serviceerrors.ServiceError
	if !errors.As(err, &serviceError) {
		t.Fatalf("Expected a service error, got %T: %v", err, err)
	}
	if serviceError.Status() != wantStatus {
		t.Fatalf("Expected status %d, got %d: %v", wantStatus, serviceError.Status(), err)
	}
}
