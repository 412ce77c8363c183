// Package buildinfo holds build-time metadata injected at startup. The
// values are not user-configurable and are kept out of the settings struct
// loaded from the config file.
package buildinfo

import "sync"

var (
	mu        sync.RWMutex
	version   = "dev"
	buildDate = "unknown"
)

// SetVersion records the version string injected by the build.
func SetVersion(v string) {
	mu.Lock()
	defer mu.Unlock()
	if v != "" {
		version = v
	}
}

// SetBuildDate records the build date injected by the build.
func SetBuildDate(d string) {
	mu.Lock()
	defer mu.Unlock()
	if d != "" {
		buildDate = d
	}
}

// Version returns the recorded version string.
func Version() string {
	mu.RLock()
	defer mu.RUnlock()
	return version
}

// BuildDate returns the recorded build date.
func BuildDate() string {
	mu.RLock()
	defer mu.RUnlock()
	return buildDate
}
