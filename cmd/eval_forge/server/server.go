package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/eval-forge/eval-forge/internal/abstractions"
	"github.com/eval-forge/eval-forge/internal/config"
	"github.com/eval-forge/eval-forge/internal/constants"
	"github.com/eval-forge/eval-forge/internal/handlers"
	"github.com/eval-forge/eval-forge/internal/messages"
	"github.com/eval-forge/eval-forge/internal/telemetry"
	"github.com/eval-forge/eval-forge/pkg/api"
	"github.com/go-playground/validator/v10"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Server struct {
	httpServer    *http.Server
	port          int
	logger        *slog.Logger
	serviceConfig *config.Config
	providers     map[string]api.ProviderResource
	storage       abstractions.Storage
	validate      *validator.Validate
	launcher      abstractions.Launcher
	audit         *telemetry.Audit
}

// NewServer creates the HTTP server. Routing uses the standard library
// net/http.ServeMux without a web framework: every route builds an
// ExecutionContext, wraps the request and response, and switches on the
// HTTP method before calling the handler.
//
// The whole router is wrapped with the Prometheus metrics middleware and an
// OpenTelemetry tracing handler; CORS headers are added in local mode only.
func NewServer(logger *slog.Logger,
	serviceConfig *config.Config,
	providers map[string]api.ProviderResource,
	storage abstractions.Storage,
	validate *validator.Validate,
	launcher abstractions.Launcher,
	audit *telemetry.Audit) (*Server, error) {

	if logger == nil {
		return nil, fmt.Errorf("logger is required for the server")
	}
	if (serviceConfig == nil) || (serviceConfig.Service == nil) {
		return nil, fmt.Errorf("service config is required for the server")
	}
	if storage == nil {
		return nil, fmt.Errorf("storage is required for the server")
	}
	if validate == nil {
		return nil, fmt.Errorf("validator is required for the server")
	}
	if launcher == nil {
		return nil, fmt.Errorf("launcher is required for the server")
	}

	return &Server{
		port:          serviceConfig.Service.Port,
		logger:        logger,
		serviceConfig: serviceConfig,
		providers:     providers,
		storage:       storage,
		validate:      validate,
		launcher:      launcher,
		audit:         audit,
	}, nil
}

func (s *Server) GetPort() int {
	return s.port
}

// loggerWithRequest returns the request identifier and a logger enriched
// with the request fields, so every log line for one request carries the
// same metadata. The identifier is taken from the X-Global-Transaction-Id
// header when the caller supplies one, which is how requests are correlated
// across services.
func (s *Server) loggerWithRequest(r *http.Request) (string, *slog.Logger) {
	requestID := r.Header.Get("X-Global-Transaction-Id")
	if requestID == "" {
		requestID = uuid.New().String() // generate a UUID if not present
	}

	enhancedLogger := s.logger.With(constants.LOG_REQUEST_ID, requestID)

	method := r.Method
	if method != "" {
		enhancedLogger = enhancedLogger.With(constants.LOG_METHOD, method)
	}

	uri := ""
	if r.URL != nil {
		uri = r.URL.Path
	}
	if uri == "" {
		uri = r.RequestURI
	}
	if uri != "" {
		enhancedLogger = enhancedLogger.With(constants.LOG_URI, uri)
	}

	userAgent := r.Header.Get("User-Agent")
	if userAgent != "" {
		enhancedLogger = enhancedLogger.With(constants.LOG_USER_AGENT, userAgent)
	}

	remoteAddr := r.RemoteAddr
	if remoteAddr != "" {
		enhancedLogger = enhancedLogger.With(constants.LOG_REMOTE_ADR, remoteAddr)
	}

	// Extract remote_user from URL user info or header
	remoteUser := ""
	if r.URL != nil && r.URL.User != nil {
		remoteUser = r.URL.User.Username()
	}
	if remoteUser == "" {
		remoteUser = r.Header.Get("Remote-User")
	}
	if remoteUser != "" {
		enhancedLogger = enhancedLogger.With(constants.LOG_USER, remoteUser)
	}

	referer := r.Header.Get("Referer")
	if referer != "" {
		enhancedLogger = enhancedLogger.With(constants.LOG_REFERER, referer)
	}

	return requestID, enhancedLogger
}

func (s *Server) setupRoutes() (http.Handler, error) {
	router := http.NewServeMux()
	h := handlers.New(s.storage, s.validate, s.launcher, s.providers, s.serviceConfig, nil, s.audit)

	// Health and status endpoints. /health serves orchestrator probes, the
	// versioned path is for API clients.
	healthRoute := func(w http.ResponseWriter, r *http.Request) {
		ctx := s.newExecutionContext(r)
		resp := NewRespWrapper(w, ctx)
		req := NewRequestWrapper(r)
		switch req.Method() {
		case http.MethodGet:
			h.HandleHealth(ctx, req, resp)
		default:
			resp.ErrorWithMessageCode(ctx.RequestID, messages.MethodNotAllowed, "Method", req.Method(), "Api", req.Path())
		}
	}
	router.HandleFunc("/health", healthRoute)
	router.HandleFunc("/api/v1/health", healthRoute)

	router.HandleFunc("/api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		ctx := s.newExecutionContext(r)
		resp := NewRespWrapper(w, ctx)
		req := NewRequestWrapper(r)
		switch req.Method() {
		case http.MethodGet:
			h.HandleStatus(ctx, req, resp)
		default:
			resp.ErrorWithMessageCode(ctx.RequestID, messages.MethodNotAllowed, "Method", req.Method(), "Api", req.Path())
		}
	})

	// Evaluation jobs endpoints
	router.HandleFunc("/api/v1/evaluations/jobs", func(w http.ResponseWriter, r *http.Request) {
		ctx := s.newExecutionContext(r)
		resp := NewRespWrapper(w, ctx)
		req := NewRequestWrapper(r)
		switch req.Method() {
		case http.MethodPost:
			h.HandleCreateEvaluation(ctx, req, resp)
		case http.MethodGet:
			h.HandleListEvaluations(ctx, req, resp)
		default:
			resp.ErrorWithMessageCode(ctx.RequestID, messages.MethodNotAllowed, "Method", req.Method(), "Api", req.Path())
		}
	})

	router.HandleFunc(fmt.Sprintf("/api/v1/evaluations/jobs/{%s}", constants.PATH_PARAMETER_JOB_ID), func(w http.ResponseWriter, r *http.Request) {
		ctx := s.newExecutionContext(r)
		resp := NewRespWrapper(w, ctx)
		req := NewRequestWrapper(r)
		switch req.Method() {
		case http.MethodGet:
			h.HandleGetEvaluation(ctx, req, resp)
		case http.MethodDelete:
			h.HandleCancelEvaluation(ctx, req, resp)
		default:
			resp.ErrorWithMessageCode(ctx.RequestID, messages.MethodNotAllowed, "Method", req.Method(), "Api", req.Path())
		}
	})

	// Task executors report progress here
	router.HandleFunc(fmt.Sprintf("/api/v1/evaluations/jobs/{%s}/events", constants.PATH_PARAMETER_JOB_ID), func(w http.ResponseWriter, r *http.Request) {
		ctx := s.newExecutionContext(r)
		resp := NewRespWrapper(w, ctx)
		req := NewRequestWrapper(r)
		switch req.Method() {
		case http.MethodPost:
			h.HandleEvaluationJobEvents(ctx, req, resp)
		default:
			resp.ErrorWithMessageCode(ctx.RequestID, messages.MethodNotAllowed, "Method", req.Method(), "Api", req.Path())
		}
	})

	// Providers endpoints
	router.HandleFunc("/api/v1/providers", func(w http.ResponseWriter, r *http.Request) {
		ctx := s.newExecutionContext(r)
		resp := NewRespWrapper(w, ctx)
		req := NewRequestWrapper(r)
		switch req.Method() {
		case http.MethodGet:
			h.HandleListProviders(ctx, req, resp)
		default:
			resp.ErrorWithMessageCode(ctx.RequestID, messages.MethodNotAllowed, "Method", req.Method(), "Api", req.Path())
		}
	})

	router.HandleFunc(fmt.Sprintf("/api/v1/providers/{%s}", constants.PATH_PARAMETER_PROVIDER_ID), func(w http.ResponseWriter, r *http.Request) {
		ctx := s.newExecutionContext(r)
		resp := NewRespWrapper(w, ctx)
		req := NewRequestWrapper(r)
		switch req.Method() {
		case http.MethodGet:
			h.HandleGetProvider(ctx, req, resp)
		default:
			resp.ErrorWithMessageCode(ctx.RequestID, messages.MethodNotAllowed, "Method", req.Method(), "Api", req.Path())
		}
	})

	// Collections endpoints
	router.HandleFunc("/api/v1/collections", func(w http.ResponseWriter, r *http.Request) {
		ctx := s.newExecutionContext(r)
		resp := NewRespWrapper(w, ctx)
		req := NewRequestWrapper(r)
		switch req.Method() {
		case http.MethodPost:
			h.HandleCreateCollection(ctx, req, resp)
		case http.MethodGet:
			h.HandleListCollections(ctx, req, resp)
		default:
			resp.ErrorWithMessageCode(ctx.RequestID, messages.MethodNotAllowed, "Method", req.Method(), "Api", req.Path())
		}
	})

	router.HandleFunc(fmt.Sprintf("/api/v1/collections/{%s}", constants.PATH_PARAMETER_COLLECTION_ID), func(w http.ResponseWriter, r *http.Request) {
		ctx := s.newExecutionContext(r)
		resp := NewRespWrapper(w, ctx)
		req := NewRequestWrapper(r)
		switch req.Method() {
		case http.MethodGet:
			h.HandleGetCollection(ctx, req, resp)
		case http.MethodPut:
			h.HandleUpdateCollection(ctx, req, resp)
		case http.MethodPatch:
			h.HandlePatchCollection(ctx, req, resp)
		case http.MethodDelete:
			h.HandleDeleteCollection(ctx, req, resp)
		default:
			resp.ErrorWithMessageCode(ctx.RequestID, messages.MethodNotAllowed, "Method", req.Method(), "Api", req.Path())
		}
	})

	// OpenAPI documentation endpoints
	openAPIRoute := func(w http.ResponseWriter, r *http.Request) {
		ctx := s.newExecutionContext(r)
		resp := NewRespWrapper(w, ctx)
		req := NewRequestWrapper(r)
		switch req.Method() {
		case http.MethodGet:
			h.HandleOpenAPI(ctx, req, resp)
		default:
			resp.ErrorWithMessageCode(ctx.RequestID, messages.MethodNotAllowed, "Method", req.Method(), "Api", req.Path())
		}
	}
	router.HandleFunc("/api/v1/openapi", openAPIRoute)
	router.HandleFunc("/openapi.yaml", openAPIRoute)

	router.HandleFunc("/docs", func(w http.ResponseWriter, r *http.Request) {
		ctx := s.newExecutionContext(r)
		resp := NewRespWrapper(w, ctx)
		req := NewRequestWrapper(r)
		switch req.Method() {
		case http.MethodGet:
			h.HandleDocs(ctx, req, resp)
		default:
			resp.ErrorWithMessageCode(ctx.RequestID, messages.MethodNotAllowed, "Method", req.Method(), "Api", req.Path())
		}
	})

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.Handler())

	// Enable CORS in local mode only (for development/testing)
	handler := http.Handler(router)
	if s.serviceConfig.Service.LocalMode {
		handler = CorsMiddleware(handler, s.serviceConfig)
	}

	// Metrics middleware, then the tracing handler outermost so every
	// request gets a span and the span context reaches the storage layer.
	handler = Middleware(handler)
	handler = otelhttp.NewHandler(handler, "eval-forge")

	return handler, nil
}

// SetupRoutes exposes the route setup for testing
func (s *Server) SetupRoutes() (http.Handler, error) {
	return s.setupRoutes()
}

func (s *Server) Start() error {
	handler, err := s.setupRoutes()
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Writing the server ready message", "file", s.serviceConfig.Service.ReadyFile)
	err = SetReady(s.serviceConfig, s.logger)
	if err != nil {
		return err
	}

	s.logger.Info("Server starting", "port", s.port)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Shutting down server gracefully...")
	return s.httpServer.Shutdown(ctx)
}
