// Package paths centralizes the on-disk layout under ~/.mindpal.
package paths

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.mindpal.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".mindpal")
}

// ConfigPath returns the TOML config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnvPath returns the .env file holding API secrets.
func EnvPath() string {
	return filepath.Join(BaseDir(), ".env")
}

// DBPath returns the local sqlite database path.
func DBPath() string {
	return filepath.Join(BaseDir(), "mindpal.db")
}

// SocketPath returns the daemon's Unix domain socket path.
func SocketPath() string {
	return filepath.Join(BaseDir(), "daemon.sock")
}

// LockPath returns the single-instance lock file path.
func LockPath() string {
	return filepath.Join(BaseDir(), "LOCK")
}

// LogDir returns the log directory.
func LogDir() string {
	return filepath.Join(BaseDir(), "logs")
}

// LogPath returns the daemon log file path.
func LogPath() string {
	return filepath.Join(LogDir(), "mindpald.log")
}

// EnsureDirs creates the directory tree with owner-only permissions.
func EnsureDirs() error {
	for _, d := range []string{BaseDir(), LogDir()} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
