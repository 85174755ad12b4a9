package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

const (
	releaseRequestTimeout = 15 * time.Second
	defaultReleaseURL     = "https://git.skobk.in/api/v1/repos/skobkin/courier/releases?draft=false&pre-release=false&limit=1"
)

// Release is the newest published version.
type Release struct {
	Version     string
	HTMLURL     string
	PublishedAt time.Time
}

// ReleaseCheck compares the running build with the newest release.
type ReleaseCheck struct {
	Current         string
	Latest          Release
	UpdateAvailable bool
}

type forgejoRelease struct {
	TagName     string    `json:"tag_name"`
	HTMLURL     string    `json:"html_url"`
	PublishedAt time.Time `json:"published_at"`
}

// CheckRelease asks the release API for the newest version. An empty endpoint
// uses the project's release feed; a nil client gets a default timeout.
func CheckRelease(ctx context.Context, client *http.Client, endpoint string) (ReleaseCheck, error) {
	if client == nil {
		client = &http.Client{Timeout: releaseRequestTimeout}
	}
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = defaultReleaseURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ReleaseCheck{}, fmt.Errorf("create releases request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return ReleaseCheck{}, fmt.Errorf("request releases: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
			return ReleaseCheck{}, fmt.Errorf("request releases: unexpected status %d: %s", resp.StatusCode, trimmed)
		}
		return ReleaseCheck{}, fmt.Errorf("request releases: unexpected status %d", resp.StatusCode)
	}

	var payload []forgejoRelease
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return ReleaseCheck{}, fmt.Errorf("decode releases response: %w", err)
	}

	current := BuildVersion()
	for _, item := range payload {
		version := strings.TrimSpace(item.TagName)
		if version == "" {
			continue
		}
		latest := Release{
			Version:     version,
			HTMLURL:     strings.TrimSpace(item.HTMLURL),
			PublishedAt: item.PublishedAt,
		}
		return ReleaseCheck{
			Current:         current,
			Latest:          latest,
			UpdateAvailable: isReleaseNewer(current, version),
		}, nil
	}

	return ReleaseCheck{}, fmt.Errorf("release API returned no versions")
}

func isReleaseNewer(current, latest string) bool {
	latest = normalizeSemver(latest)
	if !semver.IsValid(latest) {
		return false
	}
	current = normalizeSemver(current)
	if !semver.IsValid(current) {
		// dev builds
		return true
	}

	return semver.Compare(current, latest) < 0
}

func normalizeSemver(version string) string {
	trimmed := strings.TrimSpace(version)
	if trimmed == "" || strings.HasPrefix(trimmed, "v") {
		return trimmed
	}

	return "v" + trimmed
}
