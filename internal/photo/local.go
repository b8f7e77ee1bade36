package photo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// LocalStore writes photos below a directory that the HTTP server also
// serves statically under URLPrefix.
type LocalStore struct {
	dir       string
	urlPrefix string
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir, urlPrefix string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create photo dir %s: %w", dir, err)
	}
	return &LocalStore{dir: dir, urlPrefix: strings.TrimSuffix(urlPrefix, "/")}, nil
}

// Dir is the directory photos are written to.
func (s *LocalStore) Dir() string {
	return s.dir
}

// URLPrefix is the path prefix photo references start with.
func (s *LocalStore) URLPrefix() string {
	return s.urlPrefix
}

// Save writes r to disk and returns the URL path of the file.
func (s *LocalStore) Save(ctx context.Context, machineID uint, ext string, r io.Reader, size int64, contentType string) (string, error) {
	name := objectName(machineID, ext)
	dest := filepath.Join(s.dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create photo dir: %w", err)
	}

	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create photo file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(dest)
		return "", fmt.Errorf("write photo file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("close photo file: %w", err)
	}
	return path.Join(s.urlPrefix, name), nil
}

// Delete removes the file behind ref.
func (s *LocalStore) Delete(ctx context.Context, ref string) error {
	rel, ok := strings.CutPrefix(ref, s.urlPrefix+"/")
	if !ok {
		return fmt.Errorf("%q: %w", ref, ErrForeignRef)
	}
	rel = path.Clean(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return fmt.Errorf("%q: %w", ref, ErrForeignRef)
	}
	if err := os.Remove(filepath.Join(s.dir, filepath.FromSlash(rel))); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove photo file: %w", err)
	}
	return nil
}
