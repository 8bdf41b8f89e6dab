package config

import (
	"strings"
	"time"
)

// DurationOr reads a duration field that already passed Validate. Empty,
// zero or unparsable values yield def.
func DurationOr(raw string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
