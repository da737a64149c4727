package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidObjectName is returned for names escaping the directory.
var ErrInvalidObjectName = errors.New("invalid object name")

// Directory is a Client serving objects from a local directory.  Buckets are
// its subdirectories.
type Directory struct {
	root string
}

// NewDirectoryClient returns a Client reading objects below root.
func NewDirectoryClient(root string) *Directory {
	return &Directory{root: root}
}

// Factory returns a Factory always producing d.
func (d *Directory) Factory() Factory {
	return func(*http.Request) (Client, http.Header, error) {
		return d, nil, nil
	}
}

func (d *Directory) NewObjectHandle(bucket, object string) ObjectHandle {
	return fileHandle{root: d.root, bucket: bucket, object: object}
}

type fileHandle struct {
	root, bucket, object string
}

func (h fileHandle) path() (string, error) {
	for _, part := range []string{h.bucket, h.object} {
		if part == "" || strings.HasPrefix(part, "/") {
			return "", fmt.Errorf("%w %q", ErrInvalidObjectName, part)
		}
		for _, elem := range strings.Split(part, "/") {
			if elem == ".." {
				return "", fmt.Errorf("%w %q", ErrInvalidObjectName, part)
			}
		}
	}
	return filepath.Join(h.root, h.bucket, filepath.FromSlash(h.object)), nil
}

type limitedFile struct {
	io.Reader
	*os.File
}

func (f limitedFile) Read(b []byte) (int, error) { return f.Reader.Read(b) }

func (h fileHandle) NewRangeReader(_ context.Context, offset, length int64) (io.ReadCloser, error) {
	path, err := h.path()
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrObjectNotExist
	}
	if err != nil {
		return nil, err
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		file.Close()
		return nil, fmt.Errorf("seeking to %d: %v", offset, err)
	}
	if length < 0 {
		return file, nil
	}
	return limitedFile{Reader: io.LimitReader(file, length), File: file}, nil
}
