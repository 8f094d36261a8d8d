package server

import (
	"net/http"
	"time"

	"github.com/eval-forge/eval-forge/internal/executioncontext"
	"github.com/eval-forge/eval-forge/internal/logging"
)

// newExecutionContext creates the request-scoped ExecutionContext. It is
// called at the route level before invoking a handler.
//
// The request identifier is taken from the X-Global-Transaction-Id header or
// auto-generated, and the logger is enhanced with the request fields so all
// log lines for one request carry the same metadata. The HTTP request's own
// context is used as the base context, which keeps the tracing span started
// by the otelhttp handler attached to downstream storage calls.
func (s *Server) newExecutionContext(r *http.Request) *executioncontext.ExecutionContext {
	requestID, enhancedLogger := s.loggerWithRequest(r)

	uri := r.URL.RequestURI()

	ctx := executioncontext.NewExecutionContext(r.Context(), requestID, enhancedLogger, time.Minute*60).
		WithRequest(r.Method, uri)

	logging.LogRequestStarted(ctx)

	return ctx
}
