// Package sqlite is the local credential gateway: identities, one-time code
// challenges, user profiles and specification records in one SQLite file.
//
// WHY A LOCAL GATEWAY?
// In production the hosted gateway (see gateway/supabase) owns all of this.
// Running against it during development means real emails and real rate
// limits. The local gateway implements the same interfaces, hashes codes
// with bcrypt, and hands them to a CodeDelivery (the logger, by default)
// instead of an inbox.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so no C compiler
// is needed to build or cross-compile.
package sqlite

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"

	"github.com/sakif/snuffspec/internal/auth"
)

const (
	// DefaultCodeTTL is how long an issued code stays valid.
	DefaultCodeTTL = 10 * time.Minute
	// DefaultResendWindow is the minimum gap between two codes for one email.
	DefaultResendWindow = 60 * time.Second
	// MaxVerifyAttempts burns a challenge after this many wrong guesses.
	MaxVerifyAttempts = 5
)

// DB wraps a sql.DB connection pool and implements the repository and
// gateway interfaces.
type DB struct {
	conn   *sql.DB
	codes  *auth.CodeHasher
	sender CodeDelivery
	logger *slog.Logger
	now    func() time.Time

	codeTTL      time.Duration
	resendWindow time.Duration
}

// Option customises a DB at construction time.
type Option func(*DB)

// WithCodeDelivery replaces the default log-based delivery.
func WithCodeDelivery(d CodeDelivery) Option {
	return func(db *DB) { db.sender = d }
}

// WithCodeHasher is mostly for tests, which use a low bcrypt cost.
func WithCodeHasher(h *auth.CodeHasher) Option {
	return func(db *DB) { db.codes = h }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(db *DB) { db.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(db *DB) { db.logger = logger }
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/snuffspec.db" → file-based database (persistent)
//   - ":memory:"          → in-memory database (tests)
func New(dbPath string, opts ...Option) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// One connection: every ":memory:" connection is its own database, and
	// PRAGMA foreign_keys is per connection.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Deleting an identity removes its profile and records.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := newWithConn(conn, opts...)

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// newWithConn wraps an existing pool without migrating it. Tests use it
// with go-sqlmock to assert the exact SQL we send.
func newWithConn(conn *sql.DB, opts ...Option) *DB {
	db := &DB{
		conn:         conn,
		codes:        auth.NewCodeHasher(),
		logger:       slog.Default(),
		now:          time.Now,
		codeTTL:      DefaultCodeTTL,
		resendWindow: DefaultResendWindow,
	}
	for _, opt := range opts {
		opt(db)
	}
	if db.sender == nil {
		db.sender = LogDelivery{Logger: db.logger}
	}
	return db
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it idempotent.
//
// Timestamps on otp_challenges are unix seconds so expiry can be compared
// in SQL without caring how the driver formats time.Time.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS identities (
			id         TEXT PRIMARY KEY,
			email      TEXT NOT NULL UNIQUE,
			full_name  TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating identities table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS otp_challenges (
			email      TEXT PRIMARY KEY,
			code_hash  TEXT NOT NULL,
			sent_at    INTEGER NOT NULL,
			expires_at INTEGER NOT NULL,
			attempts   INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_otp_challenges_expires_at ON otp_challenges(expires_at);
	`)
	if err != nil {
		return fmt.Errorf("creating otp_challenges table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS user_profiles (
			id         TEXT PRIMARY KEY REFERENCES identities(id) ON DELETE CASCADE,
			full_name  TEXT NOT NULL DEFAULT '',
			role       TEXT NOT NULL CHECK (role IN ('admin', 'user')),
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating user_profiles table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS snuff_specifications (
			id               TEXT PRIMARY KEY,
			product_id       INTEGER NOT NULL,
			product_title    TEXT NOT NULL DEFAULT '',
			ease_of_use      TEXT NOT NULL,
			nicotine_content TEXT NOT NULL,
			user_id          TEXT NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
			created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_specifications_product_id ON snuff_specifications(product_id);
		CREATE INDEX IF NOT EXISTS idx_specifications_user_id ON snuff_specifications(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating snuff_specifications table: %w", err)
	}

	return nil
}
