package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/lydakis/zowex/internal/paths"
)

const (
	defaultLogLevel        = "info"
	defaultProjectCacheTTL = 5 * time.Second
)

// DefaultEnvPrefixes lists the environment prefixes a client forwards to the
// daemon when config does not say otherwise.
var DefaultEnvPrefixes = []string{"ZOWE_"}

// Config is the top-level zowex configuration.
type Config struct {
	Daemon DaemonConfig `toml:"daemon"`
	Client ClientConfig `toml:"client"`
}

// DaemonConfig controls the background daemon process.
type DaemonConfig struct {
	Socket          string `toml:"socket,omitempty"`
	LogLevel        string `toml:"log_level,omitempty"`
	LogFile         string `toml:"log_file,omitempty"`
	IdleTimeout     string `toml:"idle_timeout,omitempty"`
	ShutdownOnCtrlC *bool  `toml:"shutdown_on_ctrl_c,omitempty"`
	ProjectCacheTTL string `toml:"project_cache_ttl,omitempty"`
}

// ClientConfig controls the front end that talks to the daemon.
type ClientConfig struct {
	EnvPrefixes []string `toml:"env_prefixes,omitempty"`
}

// Default returns a config populated with the documented defaults.
func Default() *Config {
	armed := true
	return &Config{
		Daemon: DaemonConfig{
			LogLevel:        defaultLogLevel,
			IdleTimeout:     "0s",
			ShutdownOnCtrlC: &armed,
			ProjectCacheTTL: defaultProjectCacheTTL.String(),
		},
		Client: ClientConfig{
			EnvPrefixes: append([]string(nil), DefaultEnvPrefixes...),
		},
	}
}

// FillDefaults sets every unset field to its documented default and leaves
// the rest, including ${ENV} placeholders, untouched.
func (c *Config) FillDefaults() {
	def := Default()
	d := &c.Daemon
	if strings.TrimSpace(d.LogLevel) == "" {
		d.LogLevel = def.Daemon.LogLevel
	}
	if strings.TrimSpace(d.IdleTimeout) == "" {
		d.IdleTimeout = def.Daemon.IdleTimeout
	}
	if d.ShutdownOnCtrlC == nil {
		d.ShutdownOnCtrlC = def.Daemon.ShutdownOnCtrlC
	}
	if strings.TrimSpace(d.ProjectCacheTTL) == "" {
		d.ProjectCacheTTL = def.Daemon.ProjectCacheTTL
	}
	if len(c.Client.EnvPrefixes) == 0 {
		c.Client.EnvPrefixes = def.Client.EnvPrefixes
	}
}

// SocketPath resolves the daemon socket. ZOWE_DAEMON wins over config so a
// single shell can point at a different daemon.
func (c *Config) SocketPath() string {
	if c == nil || strings.TrimSpace(c.Daemon.Socket) == "" || envDaemonSet() {
		return paths.SocketPath()
	}
	return filepath.Clean(c.Daemon.Socket)
}

// Level returns the configured log level, defaulting to info.
func (d DaemonConfig) Level() string {
	if lvl := strings.TrimSpace(d.LogLevel); lvl != "" {
		return strings.ToLower(lvl)
	}
	return defaultLogLevel
}

// LogPath returns where daemon logs go. "-" means stderr.
func (d DaemonConfig) LogPath() string {
	if strings.TrimSpace(d.LogFile) == "" {
		return paths.LogPath()
	}
	return d.LogFile
}

// IdleTimeoutDuration returns the idle exit timeout; zero disables it.
// Invalid values are rejected by Validate, so parse errors read as zero here.
func (d DaemonConfig) IdleTimeoutDuration() time.Duration {
	return parseDurationOr(d.IdleTimeout, 0)
}

// ProjectCacheTTLDuration returns how long cwd lookups stay cached.
func (d DaemonConfig) ProjectCacheTTLDuration() time.Duration {
	return parseDurationOr(d.ProjectCacheTTL, defaultProjectCacheTTL)
}

// ShutdownArmed reports whether Ctrl-C from a client stops the daemon.
func (d DaemonConfig) ShutdownArmed() bool {
	if d.ShutdownOnCtrlC == nil {
		return true
	}
	return *d.ShutdownOnCtrlC
}

// Prefixes returns the env prefixes to forward, defaulting to ZOWE_.
func (c ClientConfig) Prefixes() []string {
	if len(c.EnvPrefixes) == 0 {
		return append([]string(nil), DefaultEnvPrefixes...)
	}
	return append([]string(nil), c.EnvPrefixes...)
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
