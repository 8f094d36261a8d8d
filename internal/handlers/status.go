package handlers

import (
	"net/http"
	"time"

	"github.com/eval-forge/eval-forge/internal/executioncontext"
	"github.com/eval-forge/eval-forge/internal/http_wrappers"
)

func (h *Handlers) HandleStatus(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	version := ""
	if h.serviceConfig != nil && h.serviceConfig.Service != nil {
		version = h.serviceConfig.Service.Version
	}
	w.WriteJSON(map[string]any{
		"service":   "eval-forge",
		"version":   version,
		"status":    "running",
		"launcher":  h.launcher.Name(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}, http.StatusOK)
}
