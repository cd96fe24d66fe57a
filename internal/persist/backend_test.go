package persist

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	dir := t.TempDir()

	fsb, err := NewFileBackend(filepath.Join(dir, "fs"))
	require.NoError(t, err)
	bb, err := NewBoltBackend(filepath.Join(dir, "bolt", "opus.db"))
	require.NoError(t, err)
	sb, err := NewSQLiteBackend(filepath.Join(dir, "opus.sqlite"))
	require.NoError(t, err)

	all := map[string]Backend{"fs": fsb, "bolt": bb, "sqlite": sb}
	t.Cleanup(func() {
		for _, b := range all {
			_ = b.Close()
		}
	})
	return all
}

func TestBackend_Contract(t *testing.T) {
	ctx := context.Background()

	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			keys, err := b.List(ctx, "")
			require.NoError(t, err)
			assert.Empty(t, keys)

			require.NoError(t, b.Save(ctx, "user/1", []byte("alice")))
			require.NoError(t, b.Save(ctx, "user/2", []byte("bob")))
			require.NoError(t, b.Save(ctx, "session", []byte("x")))

			data, err := b.Load(ctx, "user/1")
			require.NoError(t, err)
			assert.Equal(t, []byte("alice"), data)

			require.NoError(t, b.Save(ctx, "user/1", []byte("alice2")), "save overwrites")
			data, err = b.Load(ctx, "user/1")
			require.NoError(t, err)
			assert.Equal(t, []byte("alice2"), data)

			keys, err = b.List(ctx, "user/")
			require.NoError(t, err)
			assert.Equal(t, []string{"user/1", "user/2"}, keys)

			keys, err = b.List(ctx, "")
			require.NoError(t, err)
			assert.Equal(t, []string{"session", "user/1", "user/2"}, keys)

			require.NoError(t, b.Remove(ctx, "user/1"))
			_, err = b.Load(ctx, "user/1")
			require.Error(t, err)
			assert.True(t, IsNotFound(err))

			err = b.Remove(ctx, "user/1")
			require.Error(t, err)
			assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
		})
	}
}

func TestBackend_ArbitraryKeys(t *testing.T) {
	ctx := context.Background()
	keys := []string{
		"../x", "/etc/passwd", "a//b", `a\b`, ".tmp-1", ".", "a", "a/b", "100%_", "ключ",
		strings.Repeat("k", 300),
	}

	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range keys {
				require.NoError(t, b.Save(ctx, key, []byte(key)), key)
			}
			for _, key := range keys {
				data, err := b.Load(ctx, key)
				require.NoError(t, err, key)
				assert.Equal(t, []byte(key), data)
			}

			listed, err := b.List(ctx, "")
			require.NoError(t, err)
			assert.ElementsMatch(t, keys, listed)

			listed, err = b.List(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "a//b", "a/b", `a\b`}, listed)
		})
	}
}

func TestFileBackend_StaysUnderRoot(t *testing.T) {
	root := t.TempDir()
	b, err := NewFileBackend(filepath.Join(root, "data"))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.Save(ctx, "../escape", []byte("x")))
	_, err = os.Stat(filepath.Join(root, "escape"))
	assert.True(t, os.IsNotExist(err))

	err = b.Save(ctx, "", []byte("x"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	// Files the backend did not write are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(root, "data", "notes.txt"), []byte("x"), 0o600))
	keys, err := b.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"../escape"}, keys)
}

func TestFileBackend_RemovePrunesEmptyDirs(t *testing.T) {
	root := t.TempDir()
	b, err := NewFileBackend(root)
	require.NoError(t, err)
	ctx := context.Background()

	long := strings.Repeat("x", 250)
	require.NoError(t, b.Save(ctx, long, []byte("x")))
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsDir(), "long keys nest")

	require.NoError(t, b.Remove(ctx, long))
	entries, err = os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSQLiteBackend_PrefixIsLiteral(t *testing.T) {
	b, err := NewSQLiteBackend(":memory:")
	require.NoError(t, err)
	defer b.Close()
	ctx := context.Background()

	require.NoError(t, b.Save(ctx, "a_b", []byte("1")))
	require.NoError(t, b.Save(ctx, "axb", []byte("2")))
	require.NoError(t, b.Save(ctx, "A_b", []byte("3")))

	keys, err := b.List(ctx, "a_")
	require.NoError(t, err)
	assert.Equal(t, []string{"a_b"}, keys)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	b, err := Open("none", "")
	require.NoError(t, err)
	assert.Nil(t, b)

	b, err = Open("FS", filepath.Join(dir, "data"))
	require.NoError(t, err)
	assert.IsType(t, &FileBackend{}, b)

	_, err = Open("redis", dir)
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))

	_, err = Open("bolt", "")
	require.Error(t, err)
}
