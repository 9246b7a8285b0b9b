// Package blobstore persists pack tarballs keyed by pack name and version.
package blobstore

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrNotFound   = errors.New("blob_not_found")
	ErrInvalidKey = errors.New("invalid_blob_key")
)

// Object describes one stored tarball.
type Object struct {
	Name     string
	Version  string
	Location string
	Size     int64
	ModTime  time.Time
}

// Store is the blob storage port. A location returned by Put stays readable
// through Get with the same name and version until Delete is called.
type Store interface {
	// Location is the value Put returns for name and version, computed without I/O.
	Location(name, version string) (string, error)
	Put(ctx context.Context, name, version string, r io.Reader) (string, error)
	Get(ctx context.Context, name, version string) (io.ReadCloser, error)
	Delete(ctx context.Context, name, version string) error
	List(ctx context.Context) ([]Object, error)
}
