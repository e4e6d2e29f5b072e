package filesystem

import (
	"os"
	"path/filepath"
)

// UserHomeDir returns the current user's home directory.
// If the home directory cannot be determined, it returns "." as a fallback.
func UserHomeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}

// ToolgateDir returns the per-user toolgate directory (~/.toolgate).
func ToolgateDir() string {
	return filepath.Join(UserHomeDir(), ".toolgate")
}

// EnsureDir creates dir (and parents) with the given mode if it does not
// already exist.
func EnsureDir(dir string, mode os.FileMode) error {
	return os.MkdirAll(dir, mode)
}
