package executioncontext

import (
	"context"
	"log/slog"
	"time"
)

// ExecutionContext carries the per-request state handlers need: the request
// context, the request identifier used for tracing, a logger already
// enriched with the request fields, and the request timeout.
type ExecutionContext struct {
	Ctx       context.Context
	RequestID string
	Logger    *slog.Logger
	Timeout   time.Duration
	Method    string
	URI       string
}

func NewExecutionContext(ctx context.Context, requestID string, logger *slog.Logger, timeout time.Duration) *ExecutionContext {
	return &ExecutionContext{
		Ctx:       ctx,
		RequestID: requestID,
		Logger:    logger,
		Timeout:   timeout,
	}
}

// WithRequest returns a copy carrying the HTTP method and URI of the request
// being served.
func (e *ExecutionContext) WithRequest(method string, uri string) *ExecutionContext {
	clone := *e
	clone.Method = method
	clone.URI = uri
	return &clone
}

// WithLogger returns a copy using the given logger.
func (e *ExecutionContext) WithLogger(logger *slog.Logger) *ExecutionContext {
	clone := *e
	clone.Logger = logger
	return &clone
}
