// Package paths resolves where recopy keeps its configuration, model
// definitions and database.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName names the per-user directories.
const AppName = "recopy"

// Working-directory relative names.
const (
	DefaultConfigDirName = ".recopy"
	DefaultDataDirName   = ".recopy-db"
	ModelsFileName       = "models.yaml"
	ConfigFileName       = "config.yaml"
)

// Environment variables that override the defaults.
const (
	EnvConfigDir  = "RECOPY_CONFIG_DIR"
	EnvDataDir    = "RECOPY_DATA_DIR"
	EnvModelsFile = "RECOPY_MODELS"
)

// platformDir holds platform lookups that tests replace.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// userDir returns <base>/recopy where base is $xdgVar, or ~/<fallback...>
// on Linux and os.UserConfigDir elsewhere.
func userDir(xdgVar string, fallback ...string) (string, error) {
	if runtime.GOOS != "linux" {
		dir, err := platformDir.userConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, AppName), nil
	}
	if xdg := os.Getenv(xdgVar); xdg != "" {
		return filepath.Join(xdg, AppName), nil
	}
	home, err := platformDir.homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append(append([]string{home}, fallback...), AppName)...), nil
}

// DefaultConfigDir returns the per-user configuration directory:
// $XDG_CONFIG_HOME/recopy or ~/.config/recopy on Linux, and
// os.UserConfigDir()/recopy on macOS and Windows.
func DefaultConfigDir() (string, error) {
	return userDir("XDG_CONFIG_HOME", ".config")
}

// DefaultDataDir returns the per-user data directory:
// $XDG_DATA_HOME/recopy or ~/.local/share/recopy on Linux, and
// os.UserConfigDir()/recopy on macOS and Windows.
func DefaultDataDir() (string, error) {
	return userDir("XDG_DATA_HOME", ".local", "share")
}

// firstAbs returns the absolute form of the first non-empty candidate.
func firstAbs(candidates ...string) (string, bool, error) {
	for _, c := range candidates {
		if c != "" {
			p, err := filepath.Abs(c)
			return p, true, err
		}
	}
	return "", false, nil
}

// ResolveConfigDir picks the configuration directory:
// flag > RECOPY_CONFIG_DIR > DefaultConfigDir().
func ResolveConfigDir(flag string) (string, error) {
	if p, ok, err := firstAbs(flag, os.Getenv(EnvConfigDir)); ok {
		return p, err
	}
	return DefaultConfigDir()
}

// ResolveDataDir picks the data directory:
// flag > data_dir in config.yaml > RECOPY_DATA_DIR > ./.recopy-db.
func ResolveDataDir(flag, configValue string) (string, error) {
	if p, ok, err := firstAbs(flag, configValue, os.Getenv(EnvDataDir)); ok {
		return p, err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultDataDirName), nil
}

// ResolveModelsFile picks the model definitions file:
// flag > models in config.yaml > RECOPY_MODELS > <configDir>/models.yaml.
func ResolveModelsFile(flag, configValue, configDir string) (string, error) {
	if p, ok, err := firstAbs(flag, configValue, os.Getenv(EnvModelsFile)); ok {
		return p, err
	}
	return filepath.Join(configDir, ModelsFileName), nil
}
