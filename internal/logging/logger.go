package logging

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/eval-forge/eval-forge/internal/constants"
	"github.com/eval-forge/eval-forge/internal/executioncontext"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// ShutdownFunc flushes buffered log entries. Call it on shutdown.
type ShutdownFunc func() error

// NewLogger builds the service logger: a zap production core with ISO8601
// timestamps, exposed through the slog interface so the rest of the code
// only depends on the standard library. The LOG_LEVEL environment variable
// overrides the default info level; an unrecognized value is reported and
// ignored rather than blocking startup.
func NewLogger() (*slog.Logger, ShutdownFunc, error) {
	logConfig := zap.NewProductionConfig()
	logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	badLevel := ""
	if raw := os.Getenv(constants.EnvVarLogLevel); raw != "" {
		if level, err := zapcore.ParseLevel(raw); err == nil {
			logConfig.Level = zap.NewAtomicLevelAt(level)
		} else {
			badLevel = raw
		}
	}
	zapLog, err := logConfig.Build()
	if err != nil {
		return nil, nil, err
	}
	// the caller location is wanted in the logs for debugging
	logger := slog.New(zapslog.NewHandler(zapLog.Core(), zapslog.WithCaller(true)))
	if badLevel != "" {
		logger.Warn("Ignoring an unrecognized log level", "env", constants.EnvVarLogLevel, "value", badLevel)
	}
	return logger, newShutdownFunc(zapLog.Core()), nil
}

// FallbackLogger is for the window before NewLogger has run, or when it
// failed.
func FallbackLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func newShutdownFunc(core zapcore.Core) ShutdownFunc {
	return func() error {
		return core.Sync()
	}
}

// SkipCallersForInfo logs msg with the caller attribution rewound by skip
// frames, so the Log* helpers below report their caller rather than
// themselves.
func SkipCallersForInfo(ctx context.Context, logger *slog.Logger, level slog.Level, skip int, msg string, args ...any) {
	if !logger.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(skip, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)
	_ = logger.Handler().Handle(ctx, r)
}

// The request details and request id are already on the execution context
// logger, so these helpers only add the outcome.

func LogRequestStarted(ctx *executioncontext.ExecutionContext) {
	SkipCallersForInfo(ctx.Ctx, ctx.Logger, slog.LevelInfo, 3, "Request started")
}

func LogRequestFailed(ctx *executioncontext.ExecutionContext, code int, errorMessage string) {
	SkipCallersForInfo(ctx.Ctx, ctx.Logger, slog.LevelInfo, 3, "Request failed", "error", errorMessage, "code", code)
}

func LogRequestSuccess(ctx *executioncontext.ExecutionContext, code int, response any) {
	if response != nil {
		SkipCallersForInfo(ctx.Ctx, ctx.Logger, slog.LevelInfo, 3, "Request successful", "code", code, "response", response)
	} else {
		SkipCallersForInfo(ctx.Ctx, ctx.Logger, slog.LevelInfo, 3, "Request successful", "code", code)
	}
}
