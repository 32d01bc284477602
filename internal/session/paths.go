package session

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.wagate.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wagate")
}

// Dir returns the session-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "sessions", name)
}

// DeviceDBPath returns the whatsmeow-owned device/session database path.
func DeviceDBPath(name string) string {
	return filepath.Join(Dir(name), "device.db")
}

// ScheduleDBPath returns the gateway-owned schedule journal path.
func ScheduleDBPath(name string) string {
	return filepath.Join(Dir(name), "wagate.db")
}

// UploadDir returns the transient media upload directory for a session.
func UploadDir(name string) string {
	return filepath.Join(Dir(name), "uploads")
}

// LogDir returns the log directory for a session.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "wagated.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the session directory tree with proper permissions.
func EnsureDir(name string) error {
	dirs := []string{
		Dir(name),
		LogDir(name),
		UploadDir(name),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
