package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/afero"
)

const tarballExt = ".tgz"

// AferoStore lays tarballs out as /<escaped name>/<version>.tgz on an afero filesystem.
// Locations are the same path without the leading slash.
type AferoStore struct {
	fs afero.Fs
}

func NewAferoStore(fs afero.Fs) *AferoStore {
	return &AferoStore{fs: fs}
}

// NewOsStore roots the store at dir on the local disk.
func NewOsStore(dir string) (*AferoStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("blob root dir is required")
	}
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return NewAferoStore(afero.NewBasePathFs(osFs, dir)), nil
}

func (s *AferoStore) Location(name, version string) (string, error) {
	key, err := objectKey(name, version)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(key, "/"), nil
}

func (s *AferoStore) Put(ctx context.Context, name, version string, r io.Reader) (string, error) {
	key, err := objectKey(name, version)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.fs.MkdirAll(path.Dir(key), 0o755); err != nil {
		return "", err
	}

	tmp := key + ".tmp-" + ulid.Make().String()
	f, err := s.fs.Create(tmp)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return "", err
	}
	if err := s.fs.Rename(tmp, key); err != nil {
		_ = s.fs.Remove(tmp)
		return "", err
	}
	return strings.TrimPrefix(key, "/"), nil
}

func (s *AferoStore) Get(ctx context.Context, name, version string) (io.ReadCloser, error) {
	key, err := objectKey(name, version)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := s.fs.Open(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

func (s *AferoStore) Delete(ctx context.Context, name, version string) error {
	key, err := objectKey(name, version)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fs.Remove(key); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *AferoStore) List(ctx context.Context) ([]Object, error) {
	var objects []Object
	err := afero.Walk(s.fs, "/", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() || !strings.HasSuffix(p, tarballExt) {
			return nil
		}
		name, version, ok := parseKey(p)
		if !ok {
			return nil
		}
		objects = append(objects, Object{
			Name:     name,
			Version:  version,
			Location: strings.TrimPrefix(p, "/"),
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		})
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return objects, nil
}

func objectKey(name, version string) (string, error) {
	name = strings.TrimSpace(name)
	version = strings.TrimSpace(version)
	if name == "" || version == "" || strings.ContainsAny(version, `/\`) || strings.HasPrefix(version, ".") {
		return "", ErrInvalidKey
	}
	return "/" + url.PathEscape(name) + "/" + version + tarballExt, nil
}

func parseKey(p string) (string, string, bool) {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	dir, file := path.Split(p)
	dir = strings.TrimSuffix(dir, "/")
	if dir == "" || strings.Contains(dir, "/") {
		return "", "", false
	}
	name, err := url.PathUnescape(dir)
	if err != nil {
		return "", "", false
	}
	version := strings.TrimSuffix(file, tarballExt)
	if version == "" {
		return "", "", false
	}
	return name, version, true
}

var _ Store = (*AferoStore)(nil)
