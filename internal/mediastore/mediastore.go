// Package mediastore persists uploaded and annotated media on the local
// filesystem and maps stored objects to public URLs.
package mediastore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/roadwatch/roadwatch-go/internal/conf"
	"github.com/roadwatch/roadwatch-go/internal/errors"
)

// Store writes media objects beneath a single root directory. Object names
// are generated, never caller-supplied, so path traversal is not a concern
// on write; reads and deletes still refuse names that escape the root.
type Store struct {
	root          string
	publicBaseURL string
}

// New creates the store and its root directory.
func New(settings *conf.Settings) (*Store, error) {
	root := settings.MediaStore.Path
	if root == "" {
		return nil, errors.Newf("media store path is not configured").
			Component("mediastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.New(err).
			Component("mediastore").
			Category(errors.CategoryFileIO).
			Context("path", root).
			Build()
	}
	return &Store{
		root:          root,
		publicBaseURL: strings.TrimRight(settings.MediaStore.PublicBaseURL, "/"),
	}, nil
}

// Save writes data under a fresh name with the given extension and returns
// the object name.
func (s *Store) Save(data []byte, ext string) (string, error) {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "bin"
	}
	name := fmt.Sprintf("%s.%s", uuid.New().String(), ext)
	if err := os.WriteFile(filepath.Join(s.root, name), data, 0o644); err != nil {
		return "", errors.New(err).
			Component("mediastore").
			Category(errors.CategoryFileIO).
			Context("object", name).
			Build()
	}
	return name, nil
}

// Open reads a stored object.
func (s *Store) Open(name string) ([]byte, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundError("media object", name)
		}
		return nil, errors.New(err).
			Component("mediastore").
			Category(errors.CategoryFileIO).
			Context("object", name).
			Build()
	}
	return data, nil
}

// Delete removes a stored object. Deleting a missing object is not an error.
func (s *Store) Delete(name string) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.New(err).
			Component("mediastore").
			Category(errors.CategoryFileIO).
			Context("object", name).
			Build()
	}
	return nil
}

// PublicURL maps an object name to the URL clients fetch it from.
func (s *Store) PublicURL(name string) string {
	if name == "" {
		return ""
	}
	return s.publicBaseURL + "/" + name
}

// Root returns the store's base directory, for static file serving.
func (s *Store) Root() string { return s.root }

func (s *Store) resolve(name string) (string, error) {
	cleaned := filepath.Clean(name)
	if cleaned != name || strings.ContainsAny(name, "/\\") || name == "" || name == "." {
		return "", errors.Newf("invalid media object name %q", name).
			Component("mediastore").
			Category(errors.CategoryValidation).
			Build()
	}
	return filepath.Join(s.root, cleaned), nil
}
