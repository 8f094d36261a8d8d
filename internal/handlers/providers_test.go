package handlers_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/eval-forge/eval-forge/internal/constants"
	"github.com/eval-forge/eval-forge/internal/handlers"
	"github.com/eval-forge/eval-forge/pkg/api"
	"github.com/go-playground/validator/v10"
)

func testProviders() map[string]api.ProviderResource {
	return map[string]api.ProviderResource{
		"lm-harness": {
			ProviderID:   "lm-harness",
			ProviderName: "LM Evaluation Harness",
			TaskTypes:    []api.ProviderTaskType{{Type: api.TaskTypeCustom}},
			Runtime: &api.ProviderRuntime{
				K8s: &api.K8sRuntimeConfig{Image: "quay.io/eval-forge/lm-harness:latest"},
			},
		},
		"garak": {
			ProviderID:   "garak",
			ProviderName: "Garak Security Probes",
		},
	}
}

func TestHandleListProviders(t *testing.T) {
	storage := newFakeStorage()
	h := handlers.New(storage, validator.New(), newFakeLauncher(), testProviders(), nil, nil, nil)
	ctx := newExecutionContext("req-pr1")

	req := createMockRequest("GET", "/api/v1/providers")
	recorder := httptest.NewRecorder()
	resp := MockResponseWrapper{recorder: recorder}

	h.HandleListProviders(ctx, req, resp)

	if recorder.Code != 200 {
		t.Fatalf("expected status 200, got %d", recorder.Code)
	}
	var list api.ProviderResourceList
	decodeBody(t, recorder, &list)
	if list.TotalCount != 2 || len(list.Items) != 2 {
		t.Fatalf("expected 2 providers, got %+v", list)
	}
	// map iteration is randomized, the response order must not be
	if list.Items[0].ProviderID != "garak" || list.Items[1].ProviderID != "lm-harness" {
		t.Fatalf("expected providers sorted by id, got %q, %q", list.Items[0].ProviderID, list.Items[1].ProviderID)
	}
	if strings.Contains(recorder.Body.String(), "quay.io") {
		t.Fatalf("expected the runtime configuration to stay out of the response: %s", recorder.Body.String())
	}
}

func TestHandleGetProvider(t *testing.T) {
	storage := newFakeStorage()
	h := handlers.New(storage, validator.New(), newFakeLauncher(), testProviders(), nil, nil, nil)
	ctx := newExecutionContext("req-pr2")

	req := createMockRequest("GET", "/api/v1/providers/garak")
	req.pathValues[constants.PATH_PARAMETER_PROVIDER_ID] = "garak"
	recorder := httptest.NewRecorder()
	resp := MockResponseWrapper{recorder: recorder}

	h.HandleGetProvider(ctx, req, resp)

	if recorder.Code != 200 {
		t.Fatalf("expected status 200, got %d", recorder.Code)
	}
	var provider api.ProviderResource
	decodeBody(t, recorder, &provider)
	if provider.ProviderID != "garak" {
		t.Fatalf("expected garak, got %q", provider.ProviderID)
	}

	req = createMockRequest("GET", "/api/v1/providers/missing")
	req.pathValues[constants.PATH_PARAMETER_PROVIDER_ID] = "missing"
	recorder = httptest.NewRecorder()
	resp = MockResponseWrapper{recorder: recorder}

	h.HandleGetProvider(ctx, req, resp)

	if recorder.Code != 404 {
		t.Fatalf("expected status 404, got %d", recorder.Code)
	}
}
