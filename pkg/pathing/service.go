package pathing

import (
	"os"
	"path/filepath"
)

const (
	defaultDataDir   = "/var/lib/multical401"
	defaultConfigDir = "/etc/multical401"
)

// EnsureDirectories creates the directories that must exist on startup.
func EnsureDirectories() error {
	for _, dir := range []string{GetDataDir(), GetConfigDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

func GetMeterDbPath() string {
	return filepath.Join(GetDataDir(), "multical401.db")
}

func GetDataDir() string {
	if dir := os.Getenv("MULTICAL401_DATA_DIR"); dir != "" {
		return dir
	}
	return defaultDataDir
}

func GetConfigDir() string {
	if dir := os.Getenv("MULTICAL401_CONFIG_DIR"); dir != "" {
		return dir
	}
	return defaultConfigDir
}
