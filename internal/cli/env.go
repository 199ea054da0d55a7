package cli

import (
	"strings"
)

// forwardedEnv picks the variables a command run in the daemon should see
// as overrides of the daemon's own environment.
func forwardedEnv(environ []string, prefixes []string) map[string]string {
	env := make(map[string]string)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		for _, prefix := range prefixes {
			if strings.HasPrefix(key, prefix) {
				env[key] = value
				break
			}
		}
	}
	return env
}
