package handlers_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/eval-forge/eval-forge/internal/abstractions"
	"github.com/eval-forge/eval-forge/internal/messages"
	"github.com/eval-forge/eval-forge/internal/serviceerrors"
	"github.com/eval-forge/eval-forge/pkg/api"
)

// MockRequest implements http_wrappers.RequestWrapper with canned values.
type MockRequest struct {
	method      string
	uri         string
	headers     map[string]string
	body        []byte
	bodyErr     error
	queryValues map[string][]string
	pathValues  map[string]string
}

func createMockRequest(method string, uri string) *MockRequest {
	return &MockRequest{
		method:      method,
		uri:         uri,
		headers:     map[string]string{},
		queryValues: map[string][]string{},
		pathValues:  map[string]string{},
	}
}

func (r *MockRequest) Method() string                     { return r.method }
func (r *MockRequest) URI() string                        { return r.uri }
func (r *MockRequest) Header(key string) string           { return r.headers[key] }
func (r *MockRequest) SetHeader(key string, value string) { r.headers[key] = value }
func (r *MockRequest) Path() string                       { return r.uri }

func (r *MockRequest) Query(key string) []string {
	if values, ok := r.queryValues[key]; ok {
		return values
	}
	return []string{}
}

func (r *MockRequest) BodyAsBytes() ([]byte, error) {
	if r.bodyErr != nil {
		return nil, r.bodyErr
	}
	return r.body, nil
}

func (r *MockRequest) PathValue(name string) string { return r.pathValues[name] }

// MockResponseWrapper implements http_wrappers.ResponseWrapper on top of an
// httptest recorder so tests can inspect status codes and bodies.
type MockResponseWrapper struct {
	recorder *httptest.ResponseRecorder
}

func (w MockResponseWrapper) ErrorWithMessageCode(requestId string, messageCode *messages.MessageCode, messageParams ...any) {
	w.WriteJSON(api.Error{
		MessageCode: messageCode.GetCode(),
		Message:     messages.GetErrorMessage(messageCode, messageParams...),
		Trace:       requestId,
	}, messageCode.GetStatus())
}

func (w MockResponseWrapper) SetHeader(key string, value string) {
	w.recorder.Header().Set(key, value)
}

func (w MockResponseWrapper) SetStatusCode(code int) {
	w.recorder.WriteHeader(code)
}

func (w MockResponseWrapper) Write(buf []byte) (n int, err error) {
	return w.recorder.Write(buf)
}

func (w MockResponseWrapper) WriteJSON(v any, code int) {
	w.recorder.Header().Set("Content-Type", "application/json")
	w.recorder.WriteHeader(code)
	_ = json.NewEncoder(w.recorder).Encode(v)
}

// fakeStorage implements only the storage functions the handler tests use;
// anything else panics through the embedded nil interface.
type fakeStorage struct {
	abstractions.Storage

	mu         sync.Mutex
	jobs       map[string]*api.EvaluationJobResource
	collection *api.CollectionResource

	createdJob   *api.EvaluationJob
	lastStatusID string
	lastStatus   api.OverallState
	lastMessage  *api.MessageInfo
	lastResult   *api.EvaluationResult
	lastEvent    *api.TaskStatusEvent
	deleteID     string
	deleteHard   bool

	createErr error
	pingErr   error

	statusRecorded chan struct{}
	resultRecorded chan struct{}
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		jobs:           map[string]*api.EvaluationJobResource{},
		statusRecorded: make(chan struct{}, 4),
		resultRecorded: make(chan struct{}, 4),
	}
}

func (f *fakeStorage) WithLogger(_ *slog.Logger) abstractions.Storage     { return f }
func (f *fakeStorage) WithContext(_ context.Context) abstractions.Storage { return f }
func (f *fakeStorage) GetDatasourceName() string                          { return "fake" }
func (f *fakeStorage) Ping(_ time.Duration) error                         { return f.pingErr }

func (f *fakeStorage) CreateEvaluationJob(job *api.EvaluationJob) (*api.EvaluationJobResource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.createdJob = job
	resource := &api.EvaluationJobResource{
		Resource: api.Resource{ID: job.ID},
		Job:      *job,
		Status: &api.EvaluationJobStatus{
			EvaluationJobState: api.EvaluationJobState{State: api.OverallStatePending},
		},
	}
	f.jobs[job.ID] = resource
	return resource, nil
}

func (f *fakeStorage) GetEvaluationJob(id string) (*api.EvaluationJobResource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resource, ok := f.jobs[id]
	if !ok {
		return nil, serviceerrors.NewServiceError(messages.ResourceNotFound, "Type", "evaluation job", "ResourceId", id)
	}
	return resource, nil
}

func (f *fakeStorage) GetEvaluationJobs(limit int, offset int, stateFilter string) (*abstractions.QueryResults[api.EvaluationJobResource], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	results := &abstractions.QueryResults[api.EvaluationJobResource]{}
	for _, resource := range f.jobs {
		results.Items = append(results.Items, *resource)
	}
	results.TotalStored = len(results.Items)
	return results, nil
}

func (f *fakeStorage) UpdateEvaluationJobStatus(id string, state api.OverallState, message *api.MessageInfo) error {
	f.mu.Lock()
	f.lastStatusID = id
	f.lastStatus = state
	f.lastMessage = message
	f.mu.Unlock()
	f.statusRecorded <- struct{}{}
	return nil
}

func (f *fakeStorage) SetEvaluationJobResult(id string, result *api.EvaluationResult) error {
	f.mu.Lock()
	f.lastResult = result
	f.mu.Unlock()
	f.resultRecorded <- struct{}{}
	return nil
}

func (f *fakeStorage) RecordTaskStatus(id string, event *api.TaskStatusEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[id]; !ok {
		return serviceerrors.NewServiceError(messages.ResourceNotFound, "Type", "evaluation job", "ResourceId", id)
	}
	f.lastEvent = event
	return nil
}

func (f *fakeStorage) DeleteEvaluationJob(id string, hardDelete bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[id]; !ok {
		return serviceerrors.NewServiceError(messages.ResourceNotFound, "Type", "evaluation job", "ResourceId", id)
	}
	f.deleteID = id
	f.deleteHard = hardDelete
	return nil
}

func (f *fakeStorage) CreateCollection(collection *api.CollectionResource) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collection = collection
	return nil
}

func (f *fakeStorage) GetCollection(id string) (*api.CollectionResource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.collection == nil || f.collection.Resource.ID != id {
		return nil, serviceerrors.NewServiceError(messages.ResourceNotFound, "Type", "collection", "ResourceId", id)
	}
	return f.collection, nil
}

func (f *fakeStorage) GetCollections(limit int, offset int) (*abstractions.QueryResults[api.CollectionResource], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	results := &abstractions.QueryResults[api.CollectionResource]{}
	if f.collection != nil {
		results.Items = []api.CollectionResource{*f.collection}
		results.TotalStored = 1
	}
	return results, nil
}

func (f *fakeStorage) UpdateCollection(collection *api.CollectionResource) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collection = collection
	return nil
}

func (f *fakeStorage) DeleteCollection(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.collection == nil || f.collection.Resource.ID != id {
		return serviceerrors.NewServiceError(messages.ResourceNotFound, "Type", "collection", "ResourceId", id)
	}
	f.collection = nil
	return nil
}

// fakeLauncher records launches on a channel so tests can wait for the
// background dispatch to run.
type fakeLauncher struct {
	name           string
	validationErrs []string
	result         *api.EvaluationResult
	err            error
	launched       chan *api.EvaluationJob
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{launched: make(chan *api.EvaluationJob, 1)}
}

func (l *fakeLauncher) Name() string {
	if l.name == "" {
		return "fake"
	}
	return l.name
}

func (l *fakeLauncher) FailurePolicy() abstractions.FailurePolicy {
	return abstractions.FailurePolicyIsolateTasks
}

func (l *fakeLauncher) ValidateJobInput(_ *api.EvaluationJob) *api.ValidationResult {
	if len(l.validationErrs) > 0 {
		return &api.ValidationResult{Valid: false, Errors: l.validationErrs}
	}
	return &api.ValidationResult{Valid: true}
}

func (l *fakeLauncher) LaunchEvaluationJob(_ context.Context, job *api.EvaluationJob) (*api.EvaluationResult, error) {
	l.launched <- job
	return l.result, l.err
}

// releasingLauncher additionally implements abstractions.ResourceReleaser.
type releasingLauncher struct {
	*fakeLauncher
	releasedID string
	releaseErr error
}

func (l *releasingLauncher) ReleaseJobResources(_ context.Context, job *api.EvaluationJob) error {
	l.releasedID = job.ID
	return l.releaseErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitForSignal(t *testing.T, ch chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response body %q: %v", recorder.Body.String(), err)
	}
}
