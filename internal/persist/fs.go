package persist

import (
	"context"
	"encoding/hex"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jmgilman/go/errors"
)

const (
	tmpPrefix = ".tmp-"
	fileExt   = ".v"

	// Hex chunk length per path segment; keeps every name well under the
	// 255 byte limit of common filesystems.
	segmentLen = 200
)

// FileBackend stores each key as a file under a root directory. File names
// are the hex encoding of the key, so any non-empty key is representable
// and no key can collide with another or escape root. Hex longer than one
// segment is split into nested directories.
type FileBackend struct {
	root string
}

var _ Backend = (*FileBackend)(nil)

// NewFileBackend creates the root directory if needed and returns a backend
// rooted there.
func NewFileBackend(root string) (*FileBackend, error) {
	if root == "" {
		return nil, errors.New(errors.CodeInvalidConfig, "filesystem backend requires a root directory")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to create storage root")
	}
	return &FileBackend{root: root}, nil
}

// path maps key to its file path under root.
func (b *FileBackend) path(key string) (string, error) {
	if key == "" {
		return "", errors.New(errors.CodeInvalidInput, "key must not be empty")
	}
	h := hex.EncodeToString([]byte(key))
	segs := []string{b.root}
	for len(h) > segmentLen {
		segs = append(segs, h[:segmentLen])
		h = h[segmentLen:]
	}
	segs = append(segs, h+fileExt)
	return filepath.Join(segs...), nil
}

// keyOf reverses path for a file below root. ok is false for files the
// backend did not write.
func keyOf(rel string) (string, bool) {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	last := len(parts) - 1
	name, ok := strings.CutSuffix(parts[last], fileExt)
	if !ok {
		return "", false
	}
	parts[last] = name
	for _, p := range parts[:last] {
		if len(p) != segmentLen {
			return "", false
		}
	}
	raw, err := hex.DecodeString(strings.Join(parts, ""))
	if err != nil || len(raw) == 0 {
		return "", false
	}
	return string(raw), true
}

func (b *FileBackend) Save(_ context.Context, key string, data []byte) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, errors.CodeInternal, "save failed: %s", key)
	}

	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return errors.Wrapf(err, errors.CodeInternal, "save failed: %s", key)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(err, errors.CodeInternal, "save failed: %s", key)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, errors.CodeInternal, "save failed: %s", key)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, errors.CodeInternal, "save failed: %s", key)
	}
	return nil
}

func (b *FileBackend) Load(_ context.Context, key string) ([]byte, error) {
	p, err := b.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, notFound(key)
		}
		return nil, errors.Wrapf(err, errors.CodeInternal, "load failed: %s", key)
	}
	return data, nil
}

func (b *FileBackend) Remove(_ context.Context, key string) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return notFound(key)
		}
		return errors.Wrapf(err, errors.CodeInternal, "remove failed: %s", key)
	}

	// Prune directories left empty by the removal.
	root := filepath.Clean(b.root)
	for dir := filepath.Dir(p); dir != root; dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			break
		}
	}
	return nil
}

func (b *FileBackend) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string

	err := filepath.WalkDir(b.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if stderrors.Is(err, fs.ErrNotExist) && p == b.root {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tmpPrefix) {
			return nil
		}

		rel, err := filepath.Rel(b.root, p)
		if err != nil {
			return err
		}
		key, ok := keyOf(rel)
		if ok && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "list failed")
	}

	sort.Strings(keys)
	return keys, nil
}

// Close is a no-op; files are closed after every call.
func (b *FileBackend) Close() error { return nil }
