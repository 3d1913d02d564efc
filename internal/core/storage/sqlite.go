package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/volundmush/moonsilver/internal/core/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS components (
	key        TEXT    NOT NULL,
	kind       TEXT    NOT NULL,
	entity     INTEGER NOT NULL,
	data       TEXT    NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (key, kind)
);`

const sqliteUpsert = `
INSERT INTO components (key, kind, entity, data, updated_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (key, kind) DO UPDATE SET
	entity = excluded.entity,
	data = excluded.data,
	updated_at = excluded.updated_at`

// SQLite stores exports as JSON rows, one per (key, kind).
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path; ":memory:" is allowed.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: empty path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: an in-memory database lives and dies with it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA synchronous=NORMAL;", sqliteSchema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite init: %w", err)
		}
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Backend() models.Backend { return models.BackendSQLite }

func (s *SQLite) Write(ctx context.Context, recs []Record) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, sqliteUpsert)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for _, rec := range recs {
		data, err := json.Marshal(rec.Export)
		if err != nil {
			return fmt.Errorf("encode %s/%s: %w", rec.Key, rec.Kind, err)
		}
		if _, err := stmt.ExecContext(ctx, rec.Key, string(rec.Kind), int64(rec.Entity), string(data), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLite) Read(ctx context.Context, key string, kind models.Kind) (models.Export, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM components WHERE key = ? AND kind = ?`, key, string(kind)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var exp models.Export
	if err := json.Unmarshal([]byte(data), &exp); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", key, kind, err)
	}
	return exp, nil
}

// Count returns the number of stored rows.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM components`).Scan(&n)
	return n, err
}

func (s *SQLite) Close() error { return s.db.Close() }
