package handlers

import (
	"net/http"
	"slices"

	"github.com/eval-forge/eval-forge/internal/constants"
	"github.com/eval-forge/eval-forge/internal/executioncontext"
	"github.com/eval-forge/eval-forge/internal/http_wrappers"
	"github.com/eval-forge/eval-forge/internal/messages"
	"github.com/eval-forge/eval-forge/pkg/api"
)

// HandleListProviders handles GET /api/v1/providers. Runtime configuration
// is excluded from the JSON encoding; callers only see what a provider can
// run, not how.
func (h *Handlers) HandleListProviders(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	ids := make([]string, 0, len(h.providers))
	for id := range h.providers {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	items := make([]api.ProviderResource, 0, len(ids))
	for _, id := range ids {
		items = append(items, h.providers[id])
	}

	w.WriteJSON(api.ProviderResourceList{
		TotalCount: len(items),
		Items:      items,
	}, http.StatusOK)
}

// HandleGetProvider handles GET /api/v1/providers/{provider_id}
func (h *Handlers) HandleGetProvider(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	id := r.PathValue(constants.PATH_PARAMETER_PROVIDER_ID)
	if id == "" {
		w.ErrorWithMessageCode(ctx.RequestID, messages.MissingPathParameter, "ParameterName", constants.PATH_PARAMETER_PROVIDER_ID)
		return
	}

	provider, found := h.providers[id]
	if !found {
		w.ErrorWithMessageCode(ctx.RequestID, messages.ResourceNotFound, "Type", "provider", "ResourceId", id)
		return
	}
	w.WriteJSON(provider, http.StatusOK)
}
