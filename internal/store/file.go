package store

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// FileMedium implements Medium with one file per key inside a directory.
// Writes go to a temporary file that is renamed over the target, so
// readers never observe a partial blob.
//
// Files carry no writer id. The revision is a hash of the file contents,
// so two writes that land within the same mtime tick still differ unless
// they stored identical bytes.
type FileMedium struct {
	fs  afero.Fs
	dir string
}

// NewFileMedium returns a FileMedium rooted at dir on fsys, creating the
// directory if needed.
func NewFileMedium(fsys afero.Fs, dir string) (*FileMedium, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory %s: %w", dir, err)
	}
	return &FileMedium{fs: fsys, dir: dir}, nil
}

// PathFor returns the file holding key.
func (m *FileMedium) PathFor(key string) string {
	return filepath.Join(m.dir, sanitizeKey(key)+".json")
}

// Get returns the blob stored under key.
func (m *FileMedium) Get(_ context.Context, key string) ([]byte, Revision, error) {
	path := m.PathFor(key)

	info, err := m.fs.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, Revision{}, ErrNotFound
	}
	if err != nil {
		return nil, Revision{}, fmt.Errorf("stat %s: %w", path, err)
	}

	data, err := afero.ReadFile(m.fs, path)
	if err != nil {
		return nil, Revision{}, fmt.Errorf("reading %s: %w", path, err)
	}

	return data, fileRevision(info, data), nil
}

// Set atomically replaces the file holding key.
func (m *FileMedium) Set(_ context.Context, key string, value []byte, _ string) (Revision, error) {
	path := m.PathFor(key)

	tmp, err := afero.TempFile(m.fs, m.dir, "."+sanitizeKey(key)+"-*.tmp")
	if err != nil {
		return Revision{}, fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		m.fs.Remove(tmpName)
		return Revision{}, fmt.Errorf("writing temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		m.fs.Remove(tmpName)
		return Revision{}, fmt.Errorf("closing temp file for %s: %w", path, err)
	}

	if err := m.fs.Rename(tmpName, path); err != nil {
		m.fs.Remove(tmpName)
		return Revision{}, fmt.Errorf("renaming into %s: %w", path, err)
	}

	info, err := m.fs.Stat(path)
	if err != nil {
		return Revision{}, fmt.Errorf("stat %s: %w", path, err)
	}

	return fileRevision(info, value), nil
}

// Revision returns the current revision of key.
func (m *FileMedium) Revision(_ context.Context, key string) (Revision, error) {
	path := m.PathFor(key)

	info, err := m.fs.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Revision{}, ErrNotFound
	}
	if err != nil {
		return Revision{}, fmt.Errorf("stat %s: %w", path, err)
	}

	data, err := afero.ReadFile(m.fs, path)
	if errors.Is(err, fs.ErrNotExist) {
		return Revision{}, ErrNotFound
	}
	if err != nil {
		return Revision{}, fmt.Errorf("reading %s: %w", path, err)
	}

	return fileRevision(info, data), nil
}

// Close is a no-op; files are not held open between calls.
func (m *FileMedium) Close() error {
	return nil
}

// fileRevision keys the revision on the stored bytes rather than on
// file metadata.
func fileRevision(info fs.FileInfo, data []byte) Revision {
	h := fnv.New64a()
	h.Write(data)
	return Revision{
		Seq:       int64(h.Sum64()),
		UpdatedAt: info.ModTime(),
	}
}

// sanitizeKey maps a key onto a safe file name.
func sanitizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, key)
}
