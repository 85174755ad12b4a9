package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths stores resolved runtime file locations for user config, logs, and cache.
type Paths struct {
	RootDir     string
	ConfigFile  string
	DBFile      string
	LogFile     string
	SessionFile string
	CacheDir    string
	MediaDir    string
}

func ResolvePaths() (Paths, error) {
	cfgRoot, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolve config dir: %w", err)
	}
	cacheRoot, err := os.UserCacheDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolve cache dir: %w", err)
	}

	return PathsAt(filepath.Join(cfgRoot, Name), filepath.Join(cacheRoot, Name))
}

// PathsAt lays out the runtime files under explicit config and cache roots.
func PathsAt(root, cache string) (Paths, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return Paths{}, fmt.Errorf("create app config dir: %w", err)
	}
	if err := os.MkdirAll(cache, 0o750); err != nil {
		return Paths{}, fmt.Errorf("create app cache dir: %w", err)
	}
	media := filepath.Join(cache, MediaDir)
	if err := os.MkdirAll(media, 0o750); err != nil {
		return Paths{}, fmt.Errorf("create media cache dir: %w", err)
	}

	return Paths{
		RootDir:     root,
		ConfigFile:  filepath.Join(root, ConfigFilename),
		DBFile:      filepath.Join(root, DBFilename),
		LogFile:     filepath.Join(root, LogFilename),
		SessionFile: filepath.Join(root, SessionFilename),
		CacheDir:    cache,
		MediaDir:    media,
	}, nil
}
