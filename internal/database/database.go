package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("key not found")

type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// immediate transactions take the write lock up front, so read-modify-write
	// cycles from other processes queue behind each other instead of failing to upgrade
	db, err := sql.Open("sqlite3", path+"?_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serializes writers anyway; one connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{DB: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS kv_store (
            key TEXT PRIMARY KEY,
            value BLOB NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// GetValue returns the value stored under key or ErrNotFound.
func (db *DB) GetValue(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

const upsertValue = `
        INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
    `

// PutValue replaces the value stored under key.
func (db *DB) PutValue(ctx context.Context, key string, value []byte) error {
	if _, err := db.ExecContext(ctx, upsertValue, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// UpdateValue reads and rewrites key inside one transaction. fn receives nil when
// the key is missing; returning an error rolls the transaction back.
func (db *DB) UpdateValue(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update %s: %w", key, err)
	}
	defer tx.Rollback()

	var current []byte
	err = tx.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, key).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("get %s: %w", key, err)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, upsertValue, key, next, time.Now().UTC()); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update %s: %w", key, err)
	}
	return nil
}

// UpdatedAt reports when key was last written.
func (db *DB) UpdatedAt(ctx context.Context, key string) (time.Time, error) {
	var ts time.Time
	err := db.QueryRowContext(ctx, `SELECT updated_at FROM kv_store WHERE key = ?`, key).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("updated_at %s: %w", key, err)
	}
	return ts, nil
}

func (db *DB) DeleteValue(ctx context.Context, key string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
