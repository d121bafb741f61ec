package paths

import (
	"os"
	"path/filepath"
)

// HomeEnv overrides the base directory, mostly for tests and containers.
const HomeEnv = "CLINIC_HOME"

// LegacyDBPath is where older installs kept the database. It is only used
// when the file already exists.
const LegacyDBPath = "/var/lib/clinic/clinic.db"

// BaseDir returns $CLINIC_HOME, or ~/.clinic.
func BaseDir() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".clinic")
}

// DataDir returns the directory holding the database and the process lock.
func DataDir() string {
	return filepath.Join(BaseDir(), "data")
}

// DefaultDBPath returns the computed database location under the data directory.
func DefaultDBPath() string {
	return filepath.Join(DataDir(), "clinic.db")
}

// SocketPath returns the daemon's control socket.
func SocketPath() string {
	return filepath.Join(BaseDir(), "clinicd.sock")
}

// LogDir returns the log directory.
func LogDir() string {
	return filepath.Join(BaseDir(), "logs")
}

// LogPath returns the daemon log file path.
func LogPath() string {
	return filepath.Join(LogDir(), "clinicd.log")
}

// ConfigPath returns the config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnvPath returns the optional .env file next to the config.
func EnvPath() string {
	return filepath.Join(BaseDir(), ".env")
}

// ResolveDBPath picks the database file using precedence:
// 1. override (DB_FILE or the config file)
// 2. legacy, when that file exists on disk
// 3. DefaultDBPath
func ResolveDBPath(override, legacy string) string {
	if override != "" {
		return override
	}
	if legacy != "" {
		if info, err := os.Stat(legacy); err == nil && !info.IsDir() {
			return legacy
		}
	}
	return DefaultDBPath()
}

// EnsureDir creates the directory tree with owner-only permissions.
func EnsureDir() error {
	for _, d := range []string{BaseDir(), DataDir(), LogDir()} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
