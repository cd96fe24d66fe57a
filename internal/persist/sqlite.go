package persist

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/jmgilman/go/errors"
	_ "modernc.org/sqlite" // SQLite driver (pure Go)
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS entries (
	key  TEXT PRIMARY KEY,
	data BLOB NOT NULL
)`

// SQLiteBackend stores entries in a single sqlite table.
type SQLiteBackend struct {
	db *sql.DB
}

var _ Backend = (*SQLiteBackend)(nil)

// NewSQLiteBackend opens the sqlite database at dsn and creates the schema.
// Use ":memory:" for a throwaway database.
func NewSQLiteBackend(dsn string) (*SQLiteBackend, error) {
	if dsn == "" {
		return nil, errors.New(errors.CodeInvalidConfig, "sqlite backend requires a database path")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabase, "failed to open sqlite database")
	}
	// A :memory: database exists per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.CodeDatabase, "failed to initialize schema")
	}
	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) Save(ctx context.Context, key string, data []byte) error {
	if key == "" {
		return errors.New(errors.CodeInvalidInput, "empty key")
	}
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO entries (key, data) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET data = excluded.data`,
		key, data,
	)
	if err != nil {
		return errors.Wrapf(err, errors.CodeDatabase, "save failed: %s", key)
	}
	return nil
}

func (b *SQLiteBackend) Load(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := b.db.QueryRowContext(ctx, `SELECT data FROM entries WHERE key = ?`, key).Scan(&data)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeDatabase, "load failed: %s", key)
	}
	return data, nil
}

func (b *SQLiteBackend) Remove(ctx context.Context, key string) error {
	res, err := b.db.ExecContext(ctx, `DELETE FROM entries WHERE key = ?`, key)
	if err != nil {
		return errors.Wrapf(err, errors.CodeDatabase, "remove failed: %s", key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, errors.CodeDatabase, "remove failed: %s", key)
	}
	if n == 0 {
		return notFound(key)
	}
	return nil
}

func (b *SQLiteBackend) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT key FROM entries WHERE substr(key, 1, length(?)) = ? ORDER BY key`,
		prefix, prefix,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabase, "list failed")
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errors.Wrap(err, errors.CodeDatabase, "list failed")
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabase, "list failed")
	}
	return keys, nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
