package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/eval-forge/eval-forge/internal/constants"
	"github.com/eval-forge/eval-forge/pkg/api"
)

type EnvMap struct {
	EnvMappings map[string]string `mapstructure:"env_mappings,omitempty"`
}

type SecretMap struct {
	Dir      string            `mapstructure:"dir,omitempty"`
	Mappings map[string]string `mapstructure:"mappings,omitempty"`
}

type Secrets struct {
	Secrets SecretMap `mapstructure:"secrets,omitempty"`
}

// Registered once at package level; LoadConfig can run repeatedly (tests).
var localMode = flag.Bool("local", false, "Server operates in local mode or not.")

// readConfig locates and reads a configuration file using Viper. It searches for
// a file named "{name}.{ext}" in each of the given directories in order; the first
// found file is read. The returned Viper instance contains the parsed config and
// can be used for further unmarshaling or env binding.
//
// Parameters:
//   - logger: Logger for config load messages (success and failure).
//   - name: Config file base name without extension (e.g., "config").
//   - ext: Config file extension/type (e.g., "yaml"); used by Viper as config type.
//   - dirs: One or more directories to search for the file; first match wins.
//
// Returns:
//   - *viper.Viper: Viper instance with the config loaded, or a new Viper if no file was read.
//   - error: Non-nil if no config file was found in any dir or if reading failed.
func readConfig(logger *slog.Logger, name string, ext string, dirs ...string) (*viper.Viper, error) {
	logger.Info("Reading the configuration file", "file", fmt.Sprintf("%s.%s", name, ext), "dirs", fmt.Sprintf("%v", dirs))

	configValues := viper.New()

	configValues.SetConfigName(name) // name of config file (without extension)
	configValues.SetConfigType(ext)  // REQUIRED if the config file does not have the extension in the name
	for _, dir := range dirs {
		configValues.AddConfigPath(dir)
	}
	err := configValues.ReadInConfig() // Find and read the config file

	if err != nil {
		logger.Error("Failed to read the configuration file", "file", fmt.Sprintf("%s.%s", name, ext), "dirs", fmt.Sprintf("%v", dirs), "error", err.Error())
	} else {
		logger.Info("Read the configuration file", "file", configValues.ConfigFileUsed())
	}

	return configValues, err
}

func loadProvider(logger *slog.Logger, file string, dirs []string) (api.ProviderResource, error) {
	providerConfig := api.ProviderResource{}
	configValues, err := readConfig(logger, file, "yaml", dirs...)
	if err != nil {
		return providerConfig, err
	}

	if err := configValues.Unmarshal(&providerConfig); err != nil {
		return providerConfig, err
	}
	return providerConfig, nil
}

func scanFolders(logger *slog.Logger, dirs ...string) ([]os.DirEntry, string, error) {
	for _, dir := range dirs {
		files, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		return files, dir, nil
	}
	logger.Warn("No providers found", "directories", dirs)
	return []os.DirEntry{}, "", nil
}

// LoadProviderConfigs loads every provider declaration under the providers
// directory, keyed by provider_id. Files without a provider_id are skipped.
func LoadProviderConfigs(logger *slog.Logger, dirs ...string) (map[string]api.ProviderResource, error) {
	if len(dirs) == 0 {
		dirs = []string{"config/providers", "./config/providers", "../../config/providers"}
	}
	providerConfigs := make(map[string]api.ProviderResource)
	files, dir, err := scanFolders(logger, dirs...)
	if err != nil {
		return providerConfigs, err
	}
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".yaml") {
			continue
		}
		name := strings.TrimSuffix(file.Name(), ".yaml")
		providerConfig, err := loadProvider(logger, name, []string{dir})
		if err != nil {
			return nil, err
		}

		if providerConfig.ProviderID == "" {
			logger.Warn("Provider config missing provider_id, skipping", "file", file.Name())
			continue
		}

		providerConfigs[providerConfig.ProviderID] = providerConfig
		logger.Info("Provider loaded", "provider_id", providerConfig.ProviderID)
	}

	return providerConfigs, nil
}

// LoadConfig loads configuration using a two-tier system with Viper. This implements
// a loading strategy that supports cascading configuration values and multiple
// sources.
//
// Configuration loading order (later sources override earlier ones):
//  1. config.yaml (first match in dirs) - Bundled configuration loaded first
//  2. CONFIG_PATH - Operator-mounted config file merged over the bundled one;
//     its secrets section, when present, replaces the bundled secret mappings
//  3. Environment variables - Mapped via env_mappings configuration
//  4. Secrets from files - Mapped via secrets.mappings with secrets.dir
//
// Configuration supports:
//   - Environment variable mapping: Define in env_mappings (e.g., PORT → service.port)
//   - Secrets from files: Define in secrets.mappings with secrets.dir (e.g., /tmp/db_password → database.password)
//   - Optional secrets: Append :optional to the secret file name to mark it as optional.
//     If an optional secret file doesn't exist, no error is logged and the configuration
//     continues loading without that secret value.
//
// Example configuration structure:
//
//	env_mappings:
//	  port: service.port
//	secrets:
//	  dir: /tmp
//	  mappings:
//	    db_password: database.password
//	    api_token:optional: service.token
//
// Parameters:
//   - logger: The logger for configuration loading messages
//   - version, build, buildDate: Stamped onto the service section
//   - dirs: Directories searched for config.yaml; defaults when empty
//
// Returns:
//   - *Config: The loaded configuration with all sources applied
//   - error: An error if configuration cannot be loaded or is invalid
func LoadConfig(logger *slog.Logger, version string, build string, buildDate string, dirs ...string) (*Config, error) {
	if len(dirs) == 0 {
		dirs = []string{"config", "./config", "../../config"}
	}
	configValues, err := readConfig(logger, "config", "yaml", dirs...)
	if err != nil {
		return nil, err
	}

	secrets := Secrets{}
	if err := configValues.Unmarshal(&secrets); err != nil {
		return nil, err
	}

	// Operator-mounted override, merged over the bundled file.
	if overridePath := os.Getenv(constants.EnvVarConfigPath); overridePath != "" {
		override := viper.New()
		override.SetConfigFile(overridePath)
		if err := override.ReadInConfig(); err != nil {
			logger.Error("Failed to read the override configuration file", "file", overridePath, "error", err.Error())
			return nil, err
		}
		logger.Info("Read the override configuration file", "file", overridePath)
		if err := configValues.MergeConfigMap(override.AllSettings()); err != nil {
			return nil, err
		}
		// The override's secrets section replaces the bundled mappings
		// entirely, otherwise stale bundled secret files would still be
		// required in the operator's environment.
		if override.IsSet("secrets") {
			secrets = Secrets{}
			if err := override.Unmarshal(&secrets); err != nil {
				return nil, err
			}
		}
	}

	if secrets.Secrets.Dir != "" {
		// check that the secrets directory exists
		if _, err := os.Stat(secrets.Secrets.Dir); !os.IsNotExist(err) {
			for fileName, fieldName := range secrets.Secrets.Mappings {
				// the secret file name can be optional by appending :optional to the file name
				optional := strings.HasSuffix(fileName, ":optional")
				if optional {
					fileName = strings.TrimSuffix(fileName, ":optional")
				}
				secret, err := getSecret(secrets.Secrets.Dir, fileName, optional)
				if err != nil {
					// log the error and fail the startup (by returning the error)
					logger.Error("Failed to read secret file", "file", fmt.Sprintf("%s/%s", secrets.Secrets.Dir, fileName), "error", err.Error())
					return nil, err
				}
				if secret != "" {
					configValues.Set(fieldName, secret)
				}
			}
		}
	}

	// set up the environment variable mappings
	envMappings := EnvMap{}
	if err := configValues.Unmarshal(&envMappings); err != nil {
		return nil, err
	}
	for envName, field := range envMappings.EnvMappings {
		configValues.BindEnv(field, strings.ToUpper(envName))
		logger.Info("Mapped environment variable", "field_name", field, "env_name", envName)
	}

	if !flag.Parsed() {
		flag.Parse()
	}

	conf := Config{}
	if err := configValues.Unmarshal(&conf); err != nil {
		return nil, err
	}

	// set the version, build, and build date
	if conf.Service == nil {
		conf.Service = &ServiceConfig{}
	}
	conf.Service.Version = version
	conf.Service.Build = build
	conf.Service.BuildDate = buildDate
	conf.Service.LocalMode = *localMode
	return &conf, nil
}

// getSecret reads a secret from a file and returns the value as a string.
// If the file does not exist and optional is true, it silently returns an
// empty string; otherwise the read error is returned.
//
// Parameters:
//   - secretsDir: The directory containing the secret files
//   - secretName: The name of the secret file
//   - optional: If true, missing files are not an error
//
// Returns:
//   - string: The value of the secret as a string, or empty string if file doesn't exist or cannot be read
func getSecret(secretsDir string, secretName string, optional bool) (string, error) {
	// this is the full name of the secrets file to read
	secret, err := os.ReadFile(fmt.Sprintf("%s/%s", secretsDir, secretName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && optional {
			return "", nil
		}
		return "", err
	}
	return string(secret), nil
}
