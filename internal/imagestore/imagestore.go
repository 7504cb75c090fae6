// Package imagestore keeps raw enrollment photos on disk, one directory per student.
package imagestore

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrUnsafeIdentity is returned for identities that cannot be used as a directory name.
var ErrUnsafeIdentity = errors.New("identity is not a safe directory name")

// Store writes images under root/<identity>/<uuid>.<ext>.
type Store struct {
	root string
}

// New creates a Store rooted at dir. The directory is created on first write.
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the base directory.
func (s *Store) Root() string { return s.root }

// Save writes one image and returns its path relative to the root.
func (s *Store) Save(identity string, data []byte) (string, error) {
	if err := CheckIdentity(identity); err != nil {
		return "", err
	}

	dir := filepath.Join(s.root, identity)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create image directory: %w", err)
	}

	name := uuid.New().String() + extension(data)
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o600); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return filepath.ToSlash(filepath.Join(identity, name)), nil
}

// Read returns the bytes of an image by its relative path.
func (s *Store) Read(relPath string) ([]byte, error) {
	full, err := s.resolve(relPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", relPath, err)
	}
	return data, nil
}

// Remove deletes images by relative path. Missing files are ignored.
func (s *Store) Remove(relPaths ...string) error {
	var errs []error
	for _, p := range relPaths {
		full, err := s.resolve(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove image %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

// RemoveIdentity deletes the whole directory of one identity.
func (s *Store) RemoveIdentity(identity string) error {
	if err := CheckIdentity(identity); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(s.root, identity)); err != nil {
		return fmt.Errorf("remove images of %s: %w", identity, err)
	}
	return nil
}

// Dir is a directory listing of images grouped by identity.
type Dir struct {
	Identity string
	Paths    []string // relative to the root
}

// List walks the root and groups image files by their identity directory.
// Used by bulk enrollment from a prepared folder tree.
func (s *Store) List() ([]Dir, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list image root: %w", err)
	}

	var dirs []Dir
	for _, e := range entries {
		if !e.IsDir() || CheckIdentity(e.Name()) != nil {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.root, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("list images of %s: %w", e.Name(), err)
		}
		d := Dir{Identity: e.Name()}
		for _, f := range files {
			if f.IsDir() || !isImageName(f.Name()) {
				continue
			}
			d.Paths = append(d.Paths, filepath.ToSlash(filepath.Join(e.Name(), f.Name())))
		}
		if len(d.Paths) > 0 {
			dirs = append(dirs, d)
		}
	}
	return dirs, nil
}

func (s *Store) resolve(relPath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(relPath))
	if filepath.IsAbs(clean) || clean == "." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || clean == ".." {
		return "", fmt.Errorf("image path %q escapes the image root", relPath)
	}
	return filepath.Join(s.root, clean), nil
}

// CheckIdentity reports whether identity can be used as a directory name.
func CheckIdentity(identity string) error {
	if identity == "" || identity == "." || identity == ".." ||
		strings.ContainsAny(identity, `/\`) || strings.ContainsRune(identity, 0) {
		return fmt.Errorf("%w: %q", ErrUnsafeIdentity, identity)
	}
	return nil
}

func extension(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}

func isImageName(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".webp", ".bmp", ".gif":
		return true
	default:
		return false
	}
}
