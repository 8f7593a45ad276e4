package env

import (
	"os"
	"strings"
)

// Get returns the trimmed value of the environment variable or the fallback when unset or blank.
func Get(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}
