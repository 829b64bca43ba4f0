package core

import (
	"fmt"
	"os"
	"path/filepath"

	uberconfig "go.uber.org/config"
	"go.uber.org/fx"
)

// _configDirEnv overrides the directory the daemon loads its YAML configuration from.
const _configDirEnv = "SORBET_MUX_CONFIG_DIR"

// _defaultConfigDir assumes the binary is run from the workspace root.
const _defaultConfigDir = "src/mux/config"

// ConfigModule provides the merged YAML configuration provider.
var ConfigModule = fx.Options(
	fx.Provide(NewConfig),
)

// Config is a named provider over the merged YAML configuration files.
type Config struct {
	provider uberconfig.Provider
}

// Get returns the value at the given dotted path.
func (c Config) Get(path string) uberconfig.Value {
	return c.provider.Get(path)
}

// Name implements config.Provider.
func (c Config) Name() string {
	return "config"
}

// NewConfig reads meta.yaml from the config directory for the list of
// configuration files and merges the ones that exist, later files overriding
// earlier ones. Values support ${ENV:default} expansion.
func NewConfig() (uberconfig.Provider, error) {
	configDir := getConfigDir()

	metaProvider, err := uberconfig.NewYAML(
		uberconfig.File(filepath.Join(configDir, "meta.yaml")),
		uberconfig.Expand(os.LookupEnv),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load meta configuration: %w", err)
	}

	var configFiles []string
	if err := metaProvider.Get("files").Populate(&configFiles); err != nil {
		return nil, fmt.Errorf("failed to read files list from meta.yaml: %w", err)
	}

	// Entries in meta.yaml may name files that only exist in some
	// environments, so missing ones are skipped rather than failing.
	var options []uberconfig.YAMLOption
	for _, file := range configFiles {
		fullPath := filepath.Join(configDir, file)
		if _, err := os.Stat(fullPath); err != nil {
			continue
		}
		options = append(options, uberconfig.File(fullPath))
	}
	if len(options) == 0 {
		return nil, fmt.Errorf("no configuration files found in %s", configDir)
	}
	options = append(options, uberconfig.Expand(os.LookupEnv))

	provider, err := uberconfig.NewYAML(options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return Config{provider: provider}, nil
}

// getConfigDir returns the path to the configuration directory.
func getConfigDir() string {
	if configDir := os.Getenv(_configDirEnv); configDir != "" {
		return configDir
	}
	return _defaultConfigDir
}
