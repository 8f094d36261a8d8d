package server

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/eval-forge/eval-forge/internal/config"
	"github.com/eval-forge/eval-forge/internal/constants"
)

// Ready and termination files for the pod lifecycle.

// GetTerminationFile resolves the termination log location from the service
// config, then the environment, then the conventional kubelet path. conf may
// be nil because termination messages are also written when loading the
// config itself failed.
func GetTerminationFile(conf *config.Config, logger *slog.Logger) string {
	if conf != nil && conf.Service != nil {
		if tf := strings.TrimSpace(conf.Service.TerminationFile); tf != "" {
			return tf
		}
	}
	if tf := os.Getenv(constants.EnvVarTerminationFile); tf != "" {
		logger.Info("Termination file set from environment variable", "env", constants.EnvVarTerminationFile, "file", tf)
		return tf
	}
	// the kubelet default, writable even when the rootfs is read-only
	logger.Info("Termination file fallback value", "file", "/dev/termination-log")
	return "/dev/termination-log"
}

func writeFile(fname string, message string, fileType string, logger *slog.Logger) error {
	filename := filepath.Clean(fname)
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create the %s file %s: %w", fileType, filename, err)
	}
	_, writeErr := file.Write([]byte(message))
	if closeErr := file.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		logger.Error(fmt.Sprintf("Failed to write the %s message", fileType), "file", filename, "message", message, "error", writeErr.Error())
		return writeErr
	}
	logger.Info(fmt.Sprintf("Set %s message", fileType), "message", message)
	return nil
}

func readyContents(conf *config.Config) string {
	return fmt.Sprintf("Version: %s\nBuild: %s\nBuildDate: %s\n", conf.Service.Version, conf.Service.Build, conf.Service.BuildDate)
}

// SetReady writes the build details to the ready file the readiness probe
// watches for.
func SetReady(conf *config.Config, logger *slog.Logger) error {
	return writeFile(conf.Service.ReadyFile, readyContents(conf), "ready", logger)
}

func SetTerminationMessage(terminationFile string, message string, logger *slog.Logger) error {
	return writeFile(terminationFile, message, "termination", logger)
}
