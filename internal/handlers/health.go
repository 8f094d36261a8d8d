package handlers

import (
	"net/http"
	"time"

	"github.com/eval-forge/eval-forge/internal/executioncontext"
	"github.com/eval-forge/eval-forge/internal/http_wrappers"
)

const (
	STATUS_HEALTHY  = "healthy"
	STATUS_DEGRADED = "degraded"

	storagePingTimeout = 2 * time.Second
)

type HealthResponse struct {
	Status     string    `json:"status"`
	Datasource string    `json:"datasource,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Build      string    `json:"build,omitempty"`
	BuildDate  string    `json:"build_date,omitempty"`
}

// HandleHealth reports liveness plus a storage ping. A failing ping degrades
// the response to 503 so orchestrators stop routing to this replica.
func (h *Handlers) HandleHealth(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	build := ""
	buildDate := ""
	if h.serviceConfig != nil && h.serviceConfig.Service != nil {
		build = h.serviceConfig.Service.Build
		buildDate = h.serviceConfig.Service.BuildDate
	}
	if build == "0.0.1" {
		// for now we only want a real build number and not the default value
		build = ""
	}

	healthInfo := HealthResponse{
		Status:    STATUS_HEALTHY,
		Timestamp: time.Now().UTC(),
		Build:     build,
		BuildDate: buildDate,
	}
	code := http.StatusOK
	if h.storage != nil {
		healthInfo.Datasource = h.storage.GetDatasourceName()
		if err := h.storage.Ping(storagePingTimeout); err != nil {
			ctx.Logger.Error("Storage ping failed", "error", err)
			healthInfo.Status = STATUS_DEGRADED
			code = http.StatusServiceUnavailable
		}
	}
	w.WriteJSON(healthInfo, code)
}
