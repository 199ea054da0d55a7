package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

var validLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// Validate checks configuration invariants and returns actionable errors.
func Validate(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	var errs []error
	d := cfg.Daemon

	if d.LogLevel != "" {
		if _, ok := validLogLevels[strings.ToLower(strings.TrimSpace(d.LogLevel))]; !ok {
			errs = append(errs, fmt.Errorf("daemon.log_level: unknown level %q (want debug, info, warn or error)", d.LogLevel))
		}
	}

	if s := strings.TrimSpace(d.Socket); s != "" && !filepath.IsAbs(s) {
		errs = append(errs, fmt.Errorf("daemon.socket: must be an absolute path, got %q", d.Socket))
	}

	errs = append(errs, validateDuration("daemon.idle_timeout", d.IdleTimeout)...)
	errs = append(errs, validateDuration("daemon.project_cache_ttl", d.ProjectCacheTTL)...)

	for i, prefix := range cfg.Client.EnvPrefixes {
		if strings.TrimSpace(prefix) == "" {
			errs = append(errs, fmt.Errorf("client.env_prefixes[%d]: must not be empty", i))
		}
	}

	return errors.Join(errs...)
}

func validateDuration(field, raw string) []error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)}
	}
	if d < 0 {
		return []error{fmt.Errorf("%s: must be >= 0, got %q", field, raw)}
	}
	return nil
}
