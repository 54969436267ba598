package config

import (
	"os"
	"path/filepath"
)

const (
	systemConfigPath = "/etc/teleterm/config.toml"
)

// UserHomeDir resolves the calling user's home directory, treating "/"
// as "no home directory" per spec.md §4.6 ("A home directory of `/` is
// treated as 'no home directory' when resolving defaults"). This matters
// for daemons that drop privileges to a system account (e.g. `nobody`)
// whose passwd entry sets home to `/`.
func UserHomeDir() (string, bool) {
	home, err := os.UserHomeDir()
	if err != nil || home == "" || home == "/" {
		return "", false
	}
	return home, true
}

// UserConfigPath returns ~/.config/teleterm/config.toml, or "" if there
// is no usable home directory.
func UserConfigPath() string {
	home, ok := UserHomeDir()
	if !ok {
		return ""
	}
	return filepath.Join(home, ".config", "teleterm", "config.toml")
}

// SystemConfigPath returns /etc/teleterm/config.toml.
func SystemConfigPath() string {
	return systemConfigPath
}

// CandidatePaths returns the config file search order from spec.md §6:
// the user path first, then the system path.
func CandidatePaths() []string {
	var paths []string
	if p := UserConfigPath(); p != "" {
		paths = append(paths, p)
	}
	paths = append(paths, SystemConfigPath())
	return paths
}

// RecordingsDir returns the default directory for local ttyrec files and
// their sqlite metadata index, honoring cfg.Ttyrec.Directory when set.
func RecordingsDir(cfg Config) string {
	if cfg.Ttyrec.Directory != "" {
		return cfg.Ttyrec.Directory
	}
	home, ok := UserHomeDir()
	if !ok {
		return filepath.Join(os.TempDir(), "teleterm", "recordings")
	}
	return filepath.Join(home, ".local", "share", "teleterm", "recordings")
}
