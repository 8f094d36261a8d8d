package handlers

import (
	"encoding/json"
	"net/http"

	jsonpatch "gopkg.in/evanphx/json-patch.v4"

	"github.com/eval-forge/eval-forge/internal/constants"
	"github.com/eval-forge/eval-forge/internal/executioncontext"
	"github.com/eval-forge/eval-forge/internal/http_wrappers"
	"github.com/eval-forge/eval-forge/internal/messages"
	"github.com/eval-forge/eval-forge/internal/serialization"
	"github.com/eval-forge/eval-forge/pkg/api"
)

const COLLECTION_TYPE_OWNED = "owned"

// HandleCreateCollection handles POST /api/v1/collections
func (h *Handlers) HandleCreateCollection(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	bodyBytes, err := r.BodyAsBytes()
	if err != nil {
		w.ErrorWithMessageCode(ctx.RequestID, messages.InternalServerError, "Error", err.Error())
		return
	}
	collectionConfig := &api.CollectionConfig{}
	if err := serialization.Unmarshal(h.validate, ctx, bodyBytes, collectionConfig); err != nil {
		w.ErrorWithMessageCode(ctx.RequestID, messages.ValidationFailed, "Errors", err.Error())
		return
	}

	collection := &api.CollectionResource{
		Resource:         api.Resource{ID: h.ids.NewID()},
		Type:             COLLECTION_TYPE_OWNED,
		CollectionConfig: *collectionConfig,
	}
	if err := h.storageFor(ctx).CreateCollection(collection); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	w.WriteJSON(collection, http.StatusCreated)
}

// HandleListCollections handles GET /api/v1/collections
func (h *Handlers) HandleListCollections(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	limit, offset, paramErr := pageParams(r)
	if paramErr != nil {
		h.writeError(ctx, w, paramErr)
		return
	}

	results, err := h.storageFor(ctx).GetCollections(limit, offset)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	page, err := CreatePage(results.TotalStored, offset, limit, ctx, r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	w.WriteJSON(api.CollectionResourceList{
		Page:  *page,
		Items: results.Items,
	}, http.StatusOK)
}

// HandleGetCollection handles GET /api/v1/collections/{collection_id}
func (h *Handlers) HandleGetCollection(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	id := r.PathValue(constants.PATH_PARAMETER_COLLECTION_ID)
	if id == "" {
		w.ErrorWithMessageCode(ctx.RequestID, messages.MissingPathParameter, "ParameterName", constants.PATH_PARAMETER_COLLECTION_ID)
		return
	}
	collection, err := h.storageFor(ctx).GetCollection(id)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	w.WriteJSON(collection, http.StatusOK)
}

// HandleUpdateCollection handles PUT /api/v1/collections/{collection_id}.
// The body is a full replacement configuration.
func (h *Handlers) HandleUpdateCollection(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	id := r.PathValue(constants.PATH_PARAMETER_COLLECTION_ID)
	if id == "" {
		w.ErrorWithMessageCode(ctx.RequestID, messages.MissingPathParameter, "ParameterName", constants.PATH_PARAMETER_COLLECTION_ID)
		return
	}
	bodyBytes, err := r.BodyAsBytes()
	if err != nil {
		w.ErrorWithMessageCode(ctx.RequestID, messages.InternalServerError, "Error", err.Error())
		return
	}
	collectionConfig := &api.CollectionConfig{}
	if err := serialization.Unmarshal(h.validate, ctx, bodyBytes, collectionConfig); err != nil {
		w.ErrorWithMessageCode(ctx.RequestID, messages.ValidationFailed, "Errors", err.Error())
		return
	}

	store := h.storageFor(ctx)
	collection, err := store.GetCollection(id)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	collection.CollectionConfig = *collectionConfig
	if err := store.UpdateCollection(collection); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	w.WriteJSON(collection, http.StatusOK)
}

// HandlePatchCollection handles PATCH /api/v1/collections/{collection_id}.
// The body is an RFC 6902 JSON Patch applied to the collection
// configuration; the patched document is validated before it is stored.
func (h *Handlers) HandlePatchCollection(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	id := r.PathValue(constants.PATH_PARAMETER_COLLECTION_ID)
	if id == "" {
		w.ErrorWithMessageCode(ctx.RequestID, messages.MissingPathParameter, "ParameterName", constants.PATH_PARAMETER_COLLECTION_ID)
		return
	}
	bodyBytes, err := r.BodyAsBytes()
	if err != nil {
		w.ErrorWithMessageCode(ctx.RequestID, messages.InternalServerError, "Error", err.Error())
		return
	}
	patch, err := jsonpatch.DecodePatch(bodyBytes)
	if err != nil {
		w.ErrorWithMessageCode(ctx.RequestID, messages.PatchFailed, "Type", "collection", "ResourceId", id, "Error", err.Error())
		return
	}

	store := h.storageFor(ctx)
	collection, err := store.GetCollection(id)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	configJSON, err := json.Marshal(collection.CollectionConfig)
	if err != nil {
		w.ErrorWithMessageCode(ctx.RequestID, messages.InternalServerError, "Error", err.Error())
		return
	}
	patchedJSON, err := patch.Apply(configJSON)
	if err != nil {
		w.ErrorWithMessageCode(ctx.RequestID, messages.PatchFailed, "Type", "collection", "ResourceId", id, "Error", err.Error())
		return
	}
	patchedConfig := &api.CollectionConfig{}
	if err := serialization.Unmarshal(h.validate, ctx, patchedJSON, patchedConfig); err != nil {
		w.ErrorWithMessageCode(ctx.RequestID, messages.ValidationFailed, "Errors", err.Error())
		return
	}

	collection.CollectionConfig = *patchedConfig
	if err := store.UpdateCollection(collection); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	w.WriteJSON(collection, http.StatusOK)
}

// HandleDeleteCollection handles DELETE /api/v1/collections/{collection_id}
func (h *Handlers) HandleDeleteCollection(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	id := r.PathValue(constants.PATH_PARAMETER_COLLECTION_ID)
	if id == "" {
		w.ErrorWithMessageCode(ctx.RequestID, messages.MissingPathParameter, "ParameterName", constants.PATH_PARAMETER_COLLECTION_ID)
		return
	}
	if err := h.storageFor(ctx).DeleteCollection(id); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	w.SetStatusCode(http.StatusNoContent)
}
