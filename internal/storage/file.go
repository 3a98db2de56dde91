package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// FileBackend serves artifacts from a fixed directory.
type FileBackend struct {
	root string
}

// NewFileBackend creates the root directory if needed.
func NewFileBackend(root string) (*FileBackend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &FileBackend{root: root}, nil
}

// Name implements Backend.
func (b *FileBackend) Name() string { return "fs" }

// Root returns the artifact directory.
func (b *FileBackend) Root() string { return b.root }

func (b *FileBackend) path(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(b.root, key), nil
}

// Stat reports size and sniffed content type.
func (b *FileBackend) Stat(_ context.Context, key string) (*ObjectInfo, error) {
	p, err := b.path(key)
	if err != nil {
		return nil, err
	}
	return statFile(key, p)
}

func statFile(key, p string) (*ObjectInfo, error) {
	fi, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("stat artifact: %w", err)
	}
	if fi.IsDir() {
		return nil, ErrObjectNotFound
	}

	info := &ObjectInfo{Key: key, Size: fi.Size(), ModTime: fi.ModTime()}
	if mtype, err := mimetype.DetectFile(p); err == nil {
		info.ContentType = mtype.String()
	}
	return info, nil
}

// Open returns a reader for the artifact. The caller closes it.
func (b *FileBackend) Open(_ context.Context, key string) (io.ReadCloser, *ObjectInfo, error) {
	p, err := b.path(key)
	if err != nil {
		return nil, nil, err
	}
	info, err := statFile(key, p)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open artifact: %w", err)
	}
	return f, info, nil
}

// Put writes an artifact atomically through a temp file.
func (b *FileBackend) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(b.root, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}
