// Package paths resolves the CLI's configuration and data directories.
package paths

import (
	"os"
	"path/filepath"
)

// DataDirName is the working-directory data directory used when
// nothing overrides it.
const DataDirName = ".relmap-db"

// Environment variable overrides.
const (
	EnvConfigDir = "RELMAP_CONFIG_DIR"
	EnvDataDir   = "RELMAP_DATA_DIR"
)

// ResolveConfigDir picks the configuration directory: the flag value
// when set, then RELMAP_CONFIG_DIR, then "relmap" under the platform
// user config directory ($XDG_CONFIG_HOME or ~/.config on Linux,
// Application Support on macOS, %APPDATA% on Windows). Relative
// overrides are made absolute.
func ResolveConfigDir(flag string) (string, error) {
	for _, dir := range []string{flag, os.Getenv(EnvConfigDir)} {
		if dir != "" {
			return filepath.Abs(dir)
		}
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "relmap"), nil
}

// ResolveDataDir picks the data directory: the flag value when set,
// then the config-file value, then RELMAP_DATA_DIR, then .relmap-db
// under the working directory. Relative overrides are made absolute.
func ResolveDataDir(flag, configValue string) (string, error) {
	for _, dir := range []string{flag, configValue, os.Getenv(EnvDataDir)} {
		if dir != "" {
			return filepath.Abs(dir)
		}
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DataDirName), nil
}
