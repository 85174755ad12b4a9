package app

import (
	"strings"
	"time"
)

// Filled by ldflags in release builds.
var (
	Version   = "dev"
	Commit    = ""
	BuildDate = ""
)

const shortCommitLen = 8

func BuildVersion() string {
	if version := strings.TrimSpace(Version); version != "" {
		return version
	}

	return "dev"
}

// ShortCommit returns an abbreviated revision or "" when unknown.
func ShortCommit() string {
	commit := strings.TrimSpace(Commit)
	if len(commit) > shortCommitLen {
		return commit[:shortCommitLen]
	}

	return commit
}

func BuildDateYMD() string {
	raw := strings.TrimSpace(BuildDate)
	if raw == "" {
		return ""
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed.Format(time.DateOnly)
	}
	if len(raw) >= len(time.DateOnly) {
		if _, err := time.Parse(time.DateOnly, raw[:len(time.DateOnly)]); err == nil {
			return raw[:len(time.DateOnly)]
		}
	}

	return raw
}

// BuildVersionWithDate renders "1.2.3 (2026-01-30, abcdef12)", dropping the
// parts that were not stamped.
func BuildVersionWithDate() string {
	var extra []string
	if date := BuildDateYMD(); date != "" {
		extra = append(extra, date)
	}
	if commit := ShortCommit(); commit != "" {
		extra = append(extra, commit)
	}
	if len(extra) == 0 {
		return BuildVersion()
	}

	return BuildVersion() + " (" + strings.Join(extra, ", ") + ")"
}
