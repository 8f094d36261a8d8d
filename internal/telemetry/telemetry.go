// Package telemetry bootstraps the OpenTelemetry pipelines: traces to the
// configured exporter, metrics bridged into the Prometheus registry served
// on /metrics, and an audit logger for job lifecycle records.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/eval-forge/eval-forge/internal/config"
)

const serviceName = "eval-forge"

// ShutdownFunc flushes and stops every pipeline Setup started.
type ShutdownFunc func(ctx context.Context) error

// Setup wires the telemetry pipelines the configuration asks for and
// returns the audit emitter plus a shutdown function. A nil configuration
// disables traces and audit records; the Prometheus bridge is always
// installed so OTel instruments land on /metrics.
func Setup(ctx context.Context, cfg *config.TelemetryConfig, logger *slog.Logger) (*Audit, ShutdownFunc, error) {
	if cfg == nil {
		cfg = &config.TelemetryConfig{TracesExporter: "none"}
	}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	var shutdowns []ShutdownFunc

	tracesExporter, err := newTraceExporter(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if tracesExporter != nil {
		tracerProvider := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(tracesExporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tracerProvider)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		shutdowns = append(shutdowns, tracerProvider.Shutdown)
		logger.Info("Trace exporter configured", "exporter", cfg.TracesExporter)
	}

	// the bridge registers into prometheus.DefaultRegisterer, the registry
	// promhttp serves
	bridge, err := otelprom.New()
	if err != nil {
		return nil, nil, fmt.Errorf("create prometheus bridge: %w", err)
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(bridge),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)
	shutdowns = append(shutdowns, meterProvider.Shutdown)

	var audit *Audit
	if cfg.AuditLog {
		logExporter, err := stdoutlog.New()
		if err != nil {
			return nil, nil, fmt.Errorf("create audit log exporter: %w", err)
		}
		loggerProvider := sdklog.NewLoggerProvider(
			sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
			sdklog.WithResource(res),
		)
		global.SetLoggerProvider(loggerProvider)
		shutdowns = append(shutdowns, loggerProvider.Shutdown)
		audit = &Audit{logger: loggerProvider.Logger("audit")}
		logger.Info("Audit log enabled")
	}

	shutdown := func(ctx context.Context) error {
		var firstErr error
		for _, fn := range shutdowns {
			if err := fn(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
	return audit, shutdown, nil
}

func newTraceExporter(ctx context.Context, cfg *config.TelemetryConfig) (sdktrace.SpanExporter, error) {
	switch cfg.TracesExporter {
	case "", "none":
		return nil, nil
	case "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp-grpc":
		endpoint := cfg.OTLPEndpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		transport := grpc.WithTransportCredentials(credentials.NewTLS(nil))
		if cfg.OTLPInsecure {
			transport = grpc.WithTransportCredentials(insecure.NewCredentials())
		}
		conn, err := grpc.NewClient(endpoint, transport)
		if err != nil {
			return nil, fmt.Errorf("connect otlp collector %s: %w", endpoint, err)
		}
		return otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	case "otlp-http":
		endpoint := cfg.OTLPEndpoint
		if endpoint == "" {
			endpoint = "localhost:4318"
		}
		options := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		if cfg.OTLPInsecure {
			options = append(options, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, options...)
	default:
		return nil, fmt.Errorf("unknown traces exporter: %s", cfg.TracesExporter)
	}
}

// Audit emits job lifecycle records on the OpenTelemetry log API. A nil
// Audit is a no-op, so callers do not need to guard on whether audit
// logging is enabled.
type Audit struct {
	logger log.Logger
}

func (a *Audit) JobSubmitted(ctx context.Context, jobID string) {
	a.emit(ctx, "submitted", jobID, "")
}

func (a *Audit) JobDispatched(ctx context.Context, jobID string, launcher string) {
	a.emit(ctx, "dispatched", jobID, launcher)
}

func (a *Audit) JobCompleted(ctx context.Context, jobID string, state string) {
	a.emit(ctx, "completed", jobID, state)
}

func (a *Audit) JobCancelled(ctx context.Context, jobID string) {
	a.emit(ctx, "cancelled", jobID, "")
}

func (a *Audit) emit(ctx context.Context, event string, jobID string, detail string) {
	if a == nil || a.logger == nil {
		return
	}
	var record log.Record
	record.SetTimestamp(time.Now())
	record.SetSeverity(log.SeverityInfo)
	record.SetBody(log.StringValue("evaluation job " + event))
	record.AddAttributes(
		log.String("event", event),
		log.String("job_id", jobID),
	)
	if detail != "" {
		record.AddAttributes(log.String("detail", detail))
	}
	// Correlate the audit record with the request trace when one is active.
	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		record.AddAttributes(
			log.String("trace_id", span.TraceID().String()),
			log.String("span_id", span.SpanID().String()),
		)
	}
	a.logger.Emit(ctx, record)
}
