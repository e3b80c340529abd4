package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// kvSchemaVersion is the latest SQLite schema version.
const kvSchemaVersion = 1

// sqlDialect captures what differs between the supported databases.
type sqlDialect struct {
	driver   string
	schema   string
	upsert   string
	numbered bool // $1, $2 placeholders instead of ?
}

var sqlDialects = map[string]sqlDialect{
	"sqlite": {
		driver: "sqlite",
		schema: `CREATE TABLE IF NOT EXISTS kv_entries (
			kv_key     TEXT PRIMARY KEY,
			kv_value   TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		upsert: `INSERT INTO kv_entries (kv_key, kv_value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(kv_key) DO UPDATE SET kv_value = excluded.kv_value, updated_at = excluded.updated_at`,
	},
	"postgres": {
		driver: "pgx",
		schema: `CREATE TABLE IF NOT EXISTS kv_entries (
			kv_key     TEXT PRIMARY KEY,
			kv_value   TEXT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		upsert: `INSERT INTO kv_entries (kv_key, kv_value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT (kv_key) DO UPDATE SET kv_value = EXCLUDED.kv_value, updated_at = EXCLUDED.updated_at`,
		numbered: true,
	},
	"mysql": {
		driver: "mysql",
		schema: `CREATE TABLE IF NOT EXISTS kv_entries (
			kv_key     VARCHAR(255) PRIMARY KEY,
			kv_value   LONGTEXT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		upsert: `INSERT INTO kv_entries (kv_key, kv_value, updated_at) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE kv_value = VALUES(kv_value), updated_at = VALUES(updated_at)`,
	},
}

var placeholderRegexp = regexp.MustCompile(`\?`)

// rewrite converts ? placeholders to $1, $2... when the dialect needs it.
func (d sqlDialect) rewrite(query string) string {
	if !d.numbered {
		return query
	}
	n := 0
	return placeholderRegexp.ReplaceAllStringFunc(query, func(string) string {
		n++
		return "$" + strconv.Itoa(n)
	})
}

// SQLKV stores keys in a single SQL table.
type SQLKV struct {
	db      *sql.DB
	dialect sqlDialect
}

// OpenSQLKV opens the database and applies the schema.
// For sqlite the dsn is a file path; its directory is created if needed.
func OpenSQLKV(ctx context.Context, driver, dsn string) (*SQLKV, error) {
	dialect, ok := sqlDialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	if driver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open(dialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	kv := &SQLKV{db: db, dialect: dialect}
	if err := kv.migrate(ctx, driver); err != nil {
		db.Close()
		return nil, err
	}
	return kv, nil
}

func (s *SQLKV) migrate(ctx context.Context, driver string) error {
	if driver != "sqlite" {
		if _, err := s.db.ExecContext(ctx, s.dialect.schema); err != nil {
			return fmt.Errorf("create kv table: %w", err)
		}
		return nil
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < 1 {
		if _, err := s.db.ExecContext(ctx, s.dialect.schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version=%d", kvSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

func (s *SQLKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		s.dialect.rewrite(`SELECT kv_value FROM kv_entries WHERE kv_key = ?`), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return []byte(value), true, nil
}

func (s *SQLKV) Set(ctx context.Context, key string, value []byte) error {
	return s.Apply(ctx, []Op{SetOp(key, value)})
}

func (s *SQLKV) Remove(ctx context.Context, key string) error {
	return s.Apply(ctx, []Op{RemoveOp(key)})
}

// Apply runs the batch in one transaction.
func (s *SQLKV) Apply(ctx context.Context, ops []Op) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	for _, op := range ops {
		switch op.Kind {
		case OpSet:
			_, err = tx.ExecContext(ctx, s.dialect.rewrite(s.dialect.upsert), op.Key, string(op.Value), now)
		case OpRemove:
			_, err = tx.ExecContext(ctx, s.dialect.rewrite(`DELETE FROM kv_entries WHERE kv_key = ?`), op.Key)
		}
		if err != nil {
			return fmt.Errorf("write %s: %w", op.Key, err)
		}
	}
	return tx.Commit()
}

func (s *SQLKV) Close() error {
	return s.db.Close()
}
