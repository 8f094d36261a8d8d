package launchers

import (
	"log/slog"

	"github.com/eval-forge/eval-forge/internal/abstractions"
	"github.com/eval-forge/eval-forge/internal/config"
	"github.com/eval-forge/eval-forge/internal/launchers/k8s"
	"github.com/eval-forge/eval-forge/internal/launchers/local"
	"github.com/eval-forge/eval-forge/pkg/api"
)

// NewLauncher selects the evaluation backend from the service configuration.
// The -local flag and launcher.type "local" both force the in-process
// launcher; anything else dispatches to Kubernetes.
func NewLauncher(logger *slog.Logger, serviceConfig *config.Config, providers map[string]api.ProviderResource) (abstractions.Launcher, error) {

	var launcher abstractions.Launcher
	var err error

	if useLocal(serviceConfig) {
		launcher, err = local.NewLocalLauncher(logger, localSettings(serviceConfig))
	} else {
		launcher, err = k8s.NewK8sLauncher(logger, providers)
	}

	return launcher, err
}

func useLocal(serviceConfig *config.Config) bool {
	if serviceConfig.Service != nil && serviceConfig.Service.LocalMode {
		return true
	}
	return serviceConfig.Launcher != nil && serviceConfig.Launcher.Type == "local"
}

func localSettings(serviceConfig *config.Config) *local.Settings {
	if serviceConfig.Launcher == nil {
		return nil
	}
	return &local.Settings{
		WorkDir:        serviceConfig.Launcher.WorkDir,
		MaxTaskWorkers: serviceConfig.Launcher.MaxTaskWorkers,
	}
}
