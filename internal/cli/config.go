package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/recopy/internal/modeldef"
	"github.com/mesh-intelligence/recopy/internal/paths"
	"github.com/mesh-intelligence/recopy/pkg/types"
)

// Config keys.
const (
	cfgKeyBackend = "backend"
	cfgKeyDataDir = "data_dir"
	cfgKeyModels  = "models"
)

// configFile holds the structure written to config.yaml.
type configFile struct {
	Backend string `yaml:"backend"`
	DataDir string `yaml:"data_dir,omitempty"`
	Models  string `yaml:"models,omitempty"`
}

// loadConfig reads config.yaml from configDir. A missing file is not an
// error; the defaults apply.
func loadConfig(configDir string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(cfgKeyBackend, types.BackendSQLite)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// writeConfigIfMissing creates config.yaml in configDir unless it exists.
// It reports whether the file was written.
func writeConfigIfMissing(configDir string, cfg configFile) (bool, error) {
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return false, fmt.Errorf("marshal config: %w", err)
	}
	return writeIfMissing(filepath.Join(configDir, paths.ConfigFileName), data)
}

// writeModelsIfMissing writes the default quote and invoice definitions to
// path unless it exists.
func writeModelsIfMissing(path string) (bool, error) {
	return writeIfMissing(path, modeldef.Default)
}

func writeIfMissing(path string, data []byte) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, err
	}
	return true, nil
}
