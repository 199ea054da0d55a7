package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
	"github.com/lydakis/zowex/internal/paths"
)

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads the config file and returns the parsed Config.
// If the config file does not exist, it returns the defaults (no error).
func Load() (*Config, error) {
	return LoadFrom(paths.ConfigFile())
}

// LoadFrom reads and parses a config file at the given path.
func LoadFrom(path string) (*Config, error) {
	return loadFrom(path, true)
}

// LoadForEditFrom reads a config file without env expansion so writes do not
// bake secrets into the file.
func LoadForEditFrom(path string) (*Config, error) {
	return loadFrom(path, false)
}

func loadFrom(path string, expand bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if expand {
		expandConfigEnvVars(&cfg)
	}
	return &cfg, nil
}

// ExampleConfigPath returns the default config file path (for help messages).
func ExampleConfigPath() string {
	return paths.ConfigFile()
}

func envDaemonSet() bool {
	return os.Getenv(paths.DaemonEnvVar) != ""
}

func expandConfigEnvVars(cfg *Config) {
	if cfg == nil {
		return
	}
	d := &cfg.Daemon
	d.Socket = expandEnvVars(d.Socket)
	d.LogFile = expandEnvVars(d.LogFile)
	d.LogLevel = expandEnvVars(d.LogLevel)
	d.IdleTimeout = expandEnvVars(d.IdleTimeout)
	d.ProjectCacheTTL = expandEnvVars(d.ProjectCacheTTL)
	for i := range cfg.Client.EnvPrefixes {
		cfg.Client.EnvPrefixes[i] = expandEnvVars(cfg.Client.EnvPrefixes[i])
	}
}

// expandEnvVars replaces ${VAR_NAME} with the value of the environment variable.
func expandEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarRe.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match // leave unresolved vars as-is
	})
}
