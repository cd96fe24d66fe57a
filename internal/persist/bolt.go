package persist

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"github.com/jmgilman/go/errors"
)

var entriesBucket = []byte("entries")

// BoltBackend stores entries in a single bolt bucket.
type BoltBackend struct {
	db *bolt.DB
}

var _ Backend = (*BoltBackend)(nil)

// NewBoltBackend opens (or creates) the bolt database at path.
func NewBoltBackend(path string) (*BoltBackend, error) {
	if path == "" {
		return nil, errors.New(errors.CodeInvalidConfig, "bolt backend requires a database path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to create database directory")
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabase, "failed to open bolt database")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(entriesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.CodeDatabase, "failed to create bucket")
	}
	return &BoltBackend{db: db}, nil
}

func (b *BoltBackend) Save(_ context.Context, key string, data []byte) error {
	if key == "" {
		return errors.New(errors.CodeInvalidInput, "empty key")
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(entriesBucket).Put([]byte(key), data)
	})
	if err != nil {
		return errors.Wrapf(err, errors.CodeDatabase, "save failed: %s", key)
	}
	return nil
}

func (b *BoltBackend) Load(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(entriesBucket).Get([]byte(key)); v != nil {
			// Bolt values are only valid for the life of the transaction.
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeDatabase, "load failed: %s", key)
	}
	if out == nil {
		return nil, notFound(key)
	}
	return out, nil
}

func (b *BoltBackend) Remove(_ context.Context, key string) error {
	found := false
	err := b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(entriesBucket)
		if bk.Get([]byte(key)) == nil {
			return nil
		}
		found = true
		return bk.Delete([]byte(key))
	})
	if err != nil {
		return errors.Wrapf(err, errors.CodeDatabase, "remove failed: %s", key)
	}
	if !found {
		return notFound(key)
	}
	return nil
}

func (b *BoltBackend) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	p := []byte(prefix)
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(entriesBucket).Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabase, "list failed")
	}
	return keys, nil
}

func (b *BoltBackend) Close() error {
	return b.db.Close()
}
