package gwconfig

import (
	"fmt"
	"os"
	"strings"
)

// SecretRef names how to resolve a secret value: an environment variable
// takes precedence over an inline literal.
type SecretRef struct {
	EnvName     string
	InlineValue string
	Required    bool
}

// NonEmpty reports whether value is a non-empty string after trimming, the
// normalization rule used throughout the gateway (spec.md §7).
func NonEmpty(value string) bool {
	return strings.TrimSpace(value) != ""
}

// ResolveSecret returns the first non-empty trimmed value between the named
// environment variable and the inline literal, env taking precedence. If
// required is set and neither resolves, it returns an error.
func ResolveSecret(ref SecretRef, what string) (string, error) {
	if ref.EnvName != "" {
		if v := strings.TrimSpace(os.Getenv(ref.EnvName)); v != "" {
			return v, nil
		}
	}
	if v := strings.TrimSpace(ref.InlineValue); v != "" {
		return v, nil
	}
	if ref.Required {
		return "", fmt.Errorf("%s: no value resolved (checked env %q and inline value)", what, ref.EnvName)
	}
	return "", nil
}
