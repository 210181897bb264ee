package pathing

import (
	"os"
	"path/filepath"
)

const (
	dataDir   = "/var/lib/pulse_bridge"
	configDir = "/etc/pulse_bridge"
)

// EnsureDirs creates the data and config directories when missing.
// Called by the daemon on startup, never on import.
func EnsureDirs() error {
	for _, dir := range []string{GetDataDir(), GetConfigDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

func GetReadingsDbPath() string {
	return filepath.Join(GetDataDir(), "pulse-readings.db")
}

func GetBridgeAPIConfigPath() string {
	return filepath.Join(GetConfigDir(), "bridge_api.toml")
}

// GetDataDir honours PULSE_BRIDGE_DATA_DIR for unprivileged runs.
func GetDataDir() string {
	if dir := os.Getenv("PULSE_BRIDGE_DATA_DIR"); dir != "" {
		return dir
	}
	return dataDir
}

func GetConfigDir() string {
	if dir := os.Getenv("PULSE_BRIDGE_CONFIG_DIR"); dir != "" {
		return dir
	}
	return configDir
}
