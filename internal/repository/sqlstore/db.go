// Package sqlstore implements the chat repositories on database/sql for the
// embedded SQLite backend and for MySQL.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Dialect captures the SQL differences between the supported engines
type Dialect struct {
	Name             string
	driver           string
	schema           []string
	insertIgnore     string
	upsertPreference string
}

var SQLite = Dialect{
	Name:         "sqlite",
	driver:       "sqlite",
	insertIgnore: "INSERT OR IGNORE",
	upsertPreference: `
		INSERT INTO user_preferences (user_id, chat_retention_period, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			chat_retention_period = excluded.chat_retention_period,
			updated_at = excluded.updated_at`,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			session_name TEXT NOT NULL,
			messages TEXT NOT NULL DEFAULT '[]',
			retention_period TEXT NOT NULL,
			expires_at INTEGER NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_sessions_user_updated ON chat_sessions(user_id, updated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_sessions_expires_at ON chat_sessions(expires_at)`,
		`CREATE TABLE IF NOT EXISTS user_preferences (
			user_id TEXT PRIMARY KEY,
			chat_retention_period TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	},
}

var MySQL = Dialect{
	Name:         "mysql",
	driver:       "mysql",
	insertIgnore: "INSERT IGNORE",
	upsertPreference: `
		INSERT INTO user_preferences (user_id, chat_retention_period, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			chat_retention_period = VALUES(chat_retention_period),
			updated_at = VALUES(updated_at)`,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			id CHAR(36) PRIMARY KEY,
			user_id VARCHAR(191) NOT NULL,
			session_name VARCHAR(255) NOT NULL,
			messages LONGTEXT NOT NULL,
			retention_period VARCHAR(16) NOT NULL,
			expires_at BIGINT NOT NULL,
			version BIGINT NOT NULL DEFAULT 1,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			INDEX idx_chat_sessions_user_updated (user_id, updated_at),
			INDEX idx_chat_sessions_expires_at (expires_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS user_preferences (
			user_id VARCHAR(191) PRIMARY KEY,
			chat_retention_period VARCHAR(16) NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
}

// DB wraps a database/sql handle together with its dialect
type DB struct {
	SQL     *sql.DB
	Dialect Dialect
}

// OpenSQLite opens (and creates) a SQLite database file. ":memory:" gives a
// private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*DB, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open(SQLite.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// one writer at a time; this also keeps a single shared in-memory database alive
	db.SetMaxOpenConns(1)

	return initDB(ctx, db, SQLite)
}

// OpenMySQL connects to MySQL using a go-sql-driver DSN
func OpenMySQL(ctx context.Context, dsn string, maxConns int) (*DB, error) {
	db, err := sql.Open(MySQL.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql database: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	return initDB(ctx, db, MySQL)
}

func initDB(ctx context.Context, db *sql.DB, d Dialect) (*DB, error) {
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", d.Name, err)
	}
	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize %s schema: %w", d.Name, err)
		}
	}
	return &DB{SQL: db, Dialect: d}, nil
}

// Close closes the underlying handle
func (db *DB) Close() error {
	return db.SQL.Close()
}

// Ping verifies database connectivity
func (db *DB) Ping(ctx context.Context) error {
	return db.SQL.PingContext(ctx)
}

func isSQLiteConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
