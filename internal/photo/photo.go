// Package photo stores uploaded machine photos and hands back a reference
// that clients can load the image from.
package photo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/google/uuid"

	"repair-tracker-backend/config"
)

// ErrForeignRef is returned by Delete for a reference the store did not issue.
var ErrForeignRef = errors.New("photo reference not owned by this store")

// Store persists photo bytes.
type Store interface {
	// Save writes the photo of machine machineID and returns its reference.
	Save(ctx context.Context, machineID uint, ext string, r io.Reader, size int64, contentType string) (string, error)
	// Delete removes the photo behind a reference returned by Save. A photo
	// that is already gone is not an error.
	Delete(ctx context.Context, ref string) error
}

// New builds the store selected by cfg.Backend.
func New(ctx context.Context, cfg config.PhotoConfig) (Store, error) {
	switch cfg.Backend {
	case "local", "":
		s, err := NewLocalStore(cfg.Dir, cfg.URLPrefix)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "minio":
		s, err := NewMinIOStore(ctx, cfg.MinIO)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unsupported photo backend %q", cfg.Backend)
}

// objectName returns a collision-free name for a new photo of machineID.
func objectName(machineID uint, ext string) string {
	return path.Join("machines", fmt.Sprint(machineID), uuid.New().String()+ext)
}
