// Package storage provides the backends holding locally stored book artifacts.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned when no artifact exists under a key.
var ErrObjectNotFound = errors.New("object not found")

// ErrInvalidKey is returned for keys that are empty or carry path components.
var ErrInvalidKey = errors.New("invalid object key")

// ObjectInfo describes a stored artifact.
type ObjectInfo struct {
	Key string
	// Size is the length in bytes.
	Size int64
	// ContentType is what the backend detected or recorded, not the declared type.
	ContentType string
	ModTime     time.Time
}

// Backend stores artifacts under flat keys (file base names).
type Backend interface {
	Name() string
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
	Open(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error)
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}
