package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"

	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eval-forge/eval-forge/cmd/eval_forge/server"
	"github.com/eval-forge/eval-forge/internal/config"
	"github.com/eval-forge/eval-forge/internal/launchers"
	"github.com/eval-forge/eval-forge/internal/logging"
	"github.com/eval-forge/eval-forge/internal/storage"
	"github.com/eval-forge/eval-forge/internal/telemetry"
	"github.com/eval-forge/eval-forge/internal/validation"
)

var (
	// Version can be set during the compilation
	Version string = "0.0.1"
	// Build is set during the compilation
	Build string
	// BuildDate is set during the compilation
	BuildDate string
)

func main() {
	logger, logShutdown, err := logging.NewLogger()
	if err != nil {
		// we do this as no point trying to continue
		startUpFailed(nil, err, "Failed to create service logger", logging.FallbackLogger())
	}

	serviceConfig, err := config.LoadConfig(logger, Version, Build, BuildDate)
	if err != nil {
		// we do this as no point trying to continue
		startUpFailed(nil, err, "Failed to create service config", logger)
	}

	// set up tracing, the metrics bridge and the audit log
	audit, telemetryShutdown, err := telemetry.Setup(context.Background(), serviceConfig.Telemetry, logger)
	if err != nil {
		// we do this as no point trying to continue
		startUpFailed(serviceConfig, err, "Failed to set up telemetry", logger)
	}

	// set up the validator
	validate, err := validation.NewValidator()
	if err != nil {
		// we do this as no point trying to continue
		startUpFailed(serviceConfig, err, "Failed to create validator", logger)
	}

	// set up the storage
	store, err := storage.NewStorage((*map[string]any)(serviceConfig.Database), logger)
	if err != nil {
		// we do this as no point trying to continue
		startUpFailed(serviceConfig, err, "Failed to create storage", logger)
	}

	// set up the provider configs
	providerConfigs, err := config.LoadProviderConfigs(logger)
	if err != nil {
		// we do this as no point trying to continue
		startUpFailed(serviceConfig, err, "Failed to create provider configs", logger)
	}

	// set up the evaluation backend
	launcher, err := launchers.NewLauncher(logger, serviceConfig, providerConfigs)
	if err != nil {
		// we do this as no point trying to continue
		startUpFailed(serviceConfig, err, "Failed to create launcher", logger)
	}
	logger.Info("Launcher created", "launcher", launcher.Name())

	srv, err := server.NewServer(logger, serviceConfig, providerConfigs, store, validate, launcher, audit)
	if err != nil {
		// we do this as no point trying to continue
		startUpFailed(serviceConfig, err, "Failed to create server", logger)
	}

	// log the start up details
	logger.Info("Server starting",
		"server_port", srv.GetPort(),
		"version", serviceConfig.Service.Version,
		"build", serviceConfig.Service.Build,
		"build_date", serviceConfig.Service.BuildDate,
		"launcher", launcher.Name(),
		"providers", len(providerConfigs),
		"local", serviceConfig.Service.LocalMode,
	)

	// Start server in a goroutine
	go func() {
		if err := srv.Start(); err != nil {
			if errors.Is(err, http.ErrServerClosed) {
				logger.Info("Server closed gracefully")
				return
			}
			// we do this as no point trying to continue
			startUpFailed(serviceConfig, err, "Server failed to start", logger)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// shutdown the storage
	if err := store.Close(); err != nil {
		logger.Error("Failed to close storage", "error", err.Error())
	}

	// Create a context with timeout for graceful shutdown
	waitForShutdown := 30 * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), waitForShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err.Error(), "timeout", waitForShutdown)
	} else {
		logger.Info("Server shutdown gracefully")
	}

	// flush the telemetry pipelines and the logger last
	if err := telemetryShutdown(ctx); err != nil {
		logger.Error("Telemetry shutdown failed", "error", err.Error())
	}
	_ = logShutdown() // ignore the error
}

func startUpFailed(conf *config.Config, err error, msg string, logger *slog.Logger) {
	termErr := server.SetTerminationMessage(server.GetTerminationFile(conf, logger), fmt.Sprintf("%s: %s", msg, err.Error()), logger)
	if termErr != nil {
		logger.Error("Failed to set termination message", "message", msg, "error", termErr.Error())
		log.Println(termErr.Error())
	}
	log.Fatal(err)
}
