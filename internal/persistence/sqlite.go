// Package persistence provides the Comment Store and session history on SQLite
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// timeLayout is fixed-width so lexical order in SQLite matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteDB implements the Database interface for SQLite
type SQLiteDB struct {
	db       *sql.DB
	comments CommentRepository
	sessions SessionRepository
}

// NewSQLiteDB opens (creating if needed) the database at path and applies
// pending migrations. Use ":memory:" for a private in-memory database.
func NewSQLiteDB(ctx context.Context, path string) (*SQLiteDB, error) {
	dsn := "file::memory:?_foreign_keys=on"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteDB{db: db}
	s.comments = &sqliteCommentRepo{db: db}
	s.sessions = &sqliteSessionRepo{db: db}

	if err := NewMigrationManager(s).Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) Comments() CommentRepository { return s.comments }
func (s *SQLiteDB) Sessions() SessionRepository { return s.sessions }

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteDB) BeginTx(ctx context.Context) (Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{
		tx:       tx,
		comments: &sqliteCommentRepo{db: s.db, tx: tx},
		sessions: &sqliteSessionRepo{db: s.db, tx: tx},
	}, nil
}

// sqliteTx implements Transaction interface
type sqliteTx struct {
	tx       *sql.Tx
	comments CommentRepository
	sessions SessionRepository
}

func (t *sqliteTx) Commit() error               { return t.tx.Commit() }
func (t *sqliteTx) Rollback() error             { return t.tx.Rollback() }
func (t *sqliteTx) Comments() CommentRepository { return t.comments }
func (t *sqliteTx) Sessions() SessionRepository { return t.sessions }

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func pick(db *sql.DB, tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return db
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
