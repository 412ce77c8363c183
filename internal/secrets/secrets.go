// Package secrets resolves credentials from environment variables and
// mounted secret files so they never have to live in the config file.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxSecretFileSize bounds secret file reads. Secrets are tokens and
// passwords, not blobs.
const maxSecretFileSize = 64 * 1024

// ExpandString resolves ${VAR} and ${VAR:-default} references in s.
// Literal strings pass through unchanged. Referenced variables without a
// fallback must be set.
func ExpandString(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name := key
		fallback := ""
		hasFallback := false
		if idx := strings.Index(key, ":-"); idx != -1 {
			name = key[:idx]
			fallback = key[idx+2:]
			hasFallback = true
		}

		value := os.Getenv(name)
		if value == "" {
			if hasFallback {
				return fallback
			}
			missing = append(missing, name)
			return ""
		}
		return value
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}
	return expanded, nil
}

// ReadFile reads a secret from a file, as mounted by Docker or Kubernetes.
// Trailing newlines are stripped. Group- or world-readable files produce a
// warning on stderr but are still read.
func ReadFile(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("secret file path is empty")
	}
	cleanPath := filepath.Clean(path)

	info, err := os.Stat(cleanPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("secret file not found: %s", cleanPath)
		}
		return "", fmt.Errorf("failed to stat secret file %s: %w", cleanPath, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("secret path is not a regular file: %s", cleanPath)
	}
	if info.Size() > maxSecretFileSize {
		return "", fmt.Errorf("secret file too large (max %d bytes): %s", maxSecretFileSize, cleanPath)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		fmt.Fprintf(os.Stderr, "WARNING: secret file has group/other permissions (perms: %04o): %s\n", perm, cleanPath)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", cleanPath, err)
	}
	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", fmt.Errorf("secret file is empty: %s", cleanPath)
	}
	return secret, nil
}

// Resolve picks the secret value from the available sources: a file path
// wins over an inline value, and inline values get environment expansion.
// An empty result is not an error; required secrets go through MustResolve.
func Resolve(filePath, value string) (string, error) {
	if filePath != "" {
		secret, err := ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("failed to read secret from file: %w", err)
		}
		return secret, nil
	}
	if value != "" {
		return ExpandString(value)
	}
	return "", nil
}

// MustResolve is Resolve for secrets that may not be empty.
func MustResolve(fieldName, filePath, value string) (string, error) {
	secret, err := Resolve(filePath, value)
	if err != nil {
		return "", err
	}
	if secret == "" {
		return "", fmt.Errorf("%s is required but not provided", fieldName)
	}
	return secret, nil
}
