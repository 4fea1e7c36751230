// Package sqlstore is a database/sql implementation of the application
// stores for SQLite and MySQL.
//
// SQLite is meant for development and tests (":memory:" works); it runs
// on a single connection, so every transaction is serialized. MySQL locks
// the conversation row with SELECT ... FOR UPDATE. Both back the appeal
// round counter with UNIQUE(conversation_id, round).
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type dialect struct {
	name              string
	schema            []string
	forUpdate         string
	isUniqueViolation func(error) bool
}

var sqliteDialect = dialect{
	name:      "sqlite",
	forUpdate: "",
	isUniqueViolation: func(err error) bool {
		return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
	},
	schema: []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			super_admin INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			last_login TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS profiles (
			user_id INTEGER PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			income_type TEXT NOT NULL CHECK (income_type IN ('variable', 'fixed')),
			risk_tolerance TEXT NOT NULL CHECK (risk_tolerance IN ('low', 'medium', 'high')),
			financial_goal TEXT NOT NULL DEFAULT '',
			monthly_income REAL NOT NULL CHECK (monthly_income >= 0),
			monthly_expenses REAL NOT NULL CHECK (monthly_expenses >= 0),
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			amount REAL NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL CHECK (source IN ('uploaded', 'logged')),
			date TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_user_date ON transactions(user_id, date)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			query TEXT NOT NULL,
			amount REAL,
			cautious_opinion TEXT NOT NULL,
			growth_opinion TEXT NOT NULL,
			synthesis_opinion TEXT NOT NULL,
			verdict TEXT NOT NULL,
			outcome TEXT NOT NULL,
			appeal_count INTEGER NOT NULL DEFAULT 0,
			last_verdict TEXT NOT NULL,
			state TEXT NOT NULL,
			context TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS appeal_rounds (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			round INTEGER NOT NULL CHECK (round >= 1),
			justification TEXT NOT NULL,
			prior_transcript TEXT NOT NULL,
			new_transcript TEXT NOT NULL,
			verdict TEXT NOT NULL,
			outcome TEXT NOT NULL,
			context TEXT NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE(conversation_id, round)
		)`,
		`CREATE TABLE IF NOT EXISTS transaction_rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			conditions TEXT NOT NULL,
			category TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
	},
}

var mysqlDialect = dialect{
	name:      "mysql",
	forUpdate: " FOR UPDATE",
	isUniqueViolation: func(err error) bool {
		var myErr *mysql.MySQLError
		return errors.As(err, &myErr) && myErr.Number == 1062
	},
	schema: []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			username VARCHAR(64) NOT NULL UNIQUE,
			email VARCHAR(255) NOT NULL UNIQUE,
			password_hash VARCHAR(255) NOT NULL,
			super_admin BOOLEAN NOT NULL DEFAULT FALSE,
			created_at VARCHAR(40) NOT NULL,
			last_login VARCHAR(40) NULL
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS profiles (
			user_id BIGINT PRIMARY KEY,
			income_type VARCHAR(16) NOT NULL,
			risk_tolerance VARCHAR(16) NOT NULL,
			financial_goal TEXT NOT NULL,
			monthly_income DOUBLE NOT NULL,
			monthly_expenses DOUBLE NOT NULL,
			created_at VARCHAR(40) NOT NULL,
			updated_at VARCHAR(40) NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id VARCHAR(36) PRIMARY KEY,
			user_id BIGINT NOT NULL,
			amount DOUBLE NOT NULL,
			description TEXT NOT NULL,
			category VARCHAR(128) NOT NULL,
			source VARCHAR(16) NOT NULL,
			date VARCHAR(40) NOT NULL,
			created_at VARCHAR(40) NOT NULL,
			INDEX idx_transactions_user_date (user_id, date),
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id VARCHAR(36) PRIMARY KEY,
			user_id BIGINT NOT NULL,
			query TEXT NOT NULL,
			amount DOUBLE NULL,
			cautious_opinion TEXT NOT NULL,
			growth_opinion TEXT NOT NULL,
			synthesis_opinion TEXT NOT NULL,
			verdict VARCHAR(16) NOT NULL,
			outcome VARCHAR(16) NOT NULL,
			appeal_count INT NOT NULL DEFAULT 0,
			last_verdict VARCHAR(16) NOT NULL,
			state VARCHAR(32) NOT NULL,
			context LONGTEXT NOT NULL,
			created_at VARCHAR(40) NOT NULL,
			updated_at VARCHAR(40) NOT NULL,
			INDEX idx_conversations_user (user_id, created_at),
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS appeal_rounds (
			id VARCHAR(36) PRIMARY KEY,
			conversation_id VARCHAR(36) NOT NULL,
			user_id BIGINT NOT NULL,
			round INT NOT NULL,
			justification TEXT NOT NULL,
			prior_transcript LONGTEXT NOT NULL,
			new_transcript LONGTEXT NOT NULL,
			verdict VARCHAR(16) NOT NULL,
			outcome VARCHAR(16) NOT NULL,
			context LONGTEXT NOT NULL,
			created_at VARCHAR(40) NOT NULL,
			UNIQUE KEY unique_conversation_round (conversation_id, round),
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS transaction_rules (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			name VARCHAR(255) NOT NULL,
			conditions LONGTEXT NOT NULL,
			category VARCHAR(128) NOT NULL,
			created_at VARCHAR(40) NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		) ENGINE=InnoDB`,
	},
}

// Store implements the workflow and handler stores over database/sql.
type Store struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// OpenSQLite opens (and creates if needed) a SQLite database at path.
// ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to run %q: %w", pragma, err)
		}
	}

	return newStore(ctx, db, sqliteDialect)
}

func OpenMySQL(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	// RowsAffected must count matched rows, not changed ones.
	cfg.ClientFoundRows = true
	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	return newStore(ctx, db, mysqlDialect)
}

func newStore(ctx context.Context, db *sql.DB, d dialect) (*Store, error) {
	s := &Store{db: db, dialect: d, now: func() time.Time { return time.Now().UTC() }}
	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create %s tables: %w", d.name, err)
		}
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func jsonOrEmpty(b []byte) string {
	if len(b) == 0 {
		return "{}"
	}
	return string(b)
}
