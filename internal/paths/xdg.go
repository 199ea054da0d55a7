package paths

import (
	"os"
	"path/filepath"
)

const appName = "zowex"

// DaemonEnvVar overrides the daemon socket location. An absolute value is used
// as-is; anything else names a socket file inside RuntimeDir.
const DaemonEnvVar = "ZOWE_DAEMON"

func homeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	h, _ := os.UserHomeDir()
	return h
}

func xdgDir(envVar, fallbackSuffix string) string {
	if v := os.Getenv(envVar); v != "" {
		return filepath.Join(v, appName)
	}
	return filepath.Join(homeDir(), fallbackSuffix, appName)
}

// ConfigDir returns the zowex config directory ($XDG_CONFIG_HOME/zowex).
func ConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// StateDir returns the zowex state directory ($XDG_STATE_HOME/zowex).
func StateDir() string {
	return xdgDir("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

// RuntimeDir returns the zowex runtime directory for sockets and state.
// Falls back to $XDG_STATE_HOME/zowex if XDG_RUNTIME_DIR is unset.
func RuntimeDir() string {
	if v := os.Getenv("XDG_RUNTIME_DIR"); v != "" {
		return filepath.Join(v, appName)
	}
	return StateDir()
}

// ConfigFile returns the path to config.toml.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// SocketPath returns the path to the daemon Unix socket.
func SocketPath() string {
	if v := os.Getenv(DaemonEnvVar); v != "" {
		if filepath.IsAbs(v) {
			return v
		}
		return filepath.Join(RuntimeDir(), v)
	}
	return filepath.Join(RuntimeDir(), "daemon.sock")
}

// PidPath returns the path to the daemon pid file.
func PidPath() string {
	return filepath.Join(RuntimeDir(), "daemon.pid")
}

// LockPath returns the path to the daemon spawn lock.
func LockPath() string {
	return filepath.Join(RuntimeDir(), "daemon.lock")
}

// LogPath returns the default daemon log file.
func LogPath() string {
	return filepath.Join(StateDir(), "daemon.log")
}

// EnsureDir creates a directory and parents if needed.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0700)
}
