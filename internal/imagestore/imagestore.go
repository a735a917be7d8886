// Package imagestore archives reviewer-confirmed observation photos into a
// per-species directory tree and derives the public URL paths served from it.
package imagestore

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/adilrumy05/SmartPlant-Backend/internal/errors"
)

// Store copies confirmed photos under a root directory, one subdirectory per
// species slug.
type Store struct {
	root string
}

// New returns a store rooted at the given directory. The directory does not
// need to exist yet.
func New(root string) *Store {
	return &Store{root: root}
}

// Slugify converts a scientific name into a filesystem-safe directory name.
// Runs of characters outside [a-z0-9] collapse into single underscores.
func Slugify(scientificName string) string {
	var b strings.Builder
	b.Grow(len(scientificName))
	pendingSep := false
	for _, r := range strings.ToLower(scientificName) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		default:
			pendingSep = true
		}
	}
	return b.String()
}

// ArchiveObservationPhoto copies the photo at srcPath into the species
// directory and returns the public URL path for the archived copy. The
// source file is left in place.
func (s *Store) ArchiveObservationPhoto(scientificName, srcPath string) (string, error) {
	slug := Slugify(scientificName)
	if slug == "" {
		return "", errors.Newf("imagestore: no usable slug for %q", scientificName).
			Component("imagestore").
			Category(errors.CategoryValidation).
			Build()
	}

	dir := filepath.Join(s.root, slug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Newf("imagestore: creating %s: %w", dir, err).
			Component("imagestore").
			Category(errors.CategoryImageArchive).
			Build()
	}

	filename := filepath.Base(srcPath)
	dst := filepath.Join(dir, filename)
	if err := copyFile(srcPath, dst); err != nil {
		return "", errors.Newf("imagestore: archiving %s: %w", srcPath, err).
			Component("imagestore").
			Category(errors.CategoryImageArchive).
			Build()
	}

	return path.Join("/species_images", slug, filename), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
