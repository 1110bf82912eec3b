// Package fsys is the filesystem collaborator used by runners and the
// cluster enumerator.
package fsys

import (
	"fmt"
	"os"
	"path/filepath"
)

// Filesystem is everything the forge runner needs from the filesystem.
type Filesystem interface {
	Write(name string, contents []byte) error
	Read(name string) ([]byte, error)

	// TempFile creates an empty scratch file and returns its path. The
	// caller owns the file and must Unlink it.
	TempFile() (string, error)

	// Rlimit sets the soft and hard limits of a process resource.
	Rlimit(resource int, soft, hard uint64) error

	Unlink(name string) error
}

// LocalFilesystem is backed by the OS.
type LocalFilesystem struct {
	// Dir holds scratch files. Empty means os.TempDir().
	Dir string
}

// NewLocalFilesystem creates a LocalFilesystem using the default temp dir.
func NewLocalFilesystem() *LocalFilesystem {
	return &LocalFilesystem{}
}

func (l *LocalFilesystem) Write(name string, contents []byte) error {
	return os.WriteFile(name, contents, 0o644)
}

func (l *LocalFilesystem) Read(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func (l *LocalFilesystem) TempFile() (string, error) {
	f, err := os.CreateTemp(l.Dir, "forge-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return filepath.Clean(f.Name()), nil
}

func (l *LocalFilesystem) Rlimit(resource int, soft, hard uint64) error {
	return setRlimit(resource, soft, hard)
}

func (l *LocalFilesystem) Unlink(name string) error {
	return os.Remove(name)
}
