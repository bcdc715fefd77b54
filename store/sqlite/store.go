// Package sqlite provides a durable UserStore on an embedded SQLite
// database. It uses the pure-Go modernc.org/sqlite driver, so deployments
// need no cgo toolchain.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/lockstep-auth/lockstep"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id                TEXT PRIMARY KEY,
	username          TEXT NOT NULL UNIQUE,
	password_hash     TEXT NOT NULL,
	totp_secret       TEXT NOT NULL DEFAULT '',
	totp_enabled      INTEGER NOT NULL DEFAULT 0,
	totp_last_counter INTEGER NOT NULL DEFAULT 0,
	created_at        INTEGER NOT NULL
);
`

// Store is a SQLite-backed UserStore. Safe for concurrent use; SQLite
// serializes writers and WAL mode keeps readers unblocked while they run.
type Store struct {
	db *sql.DB
}

var _ lockstep.UserStore = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the
// schema. Pass ":memory:" for an ephemeral database in tests.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// The driver opens one connection per statement otherwise; a single
	// writer avoids SQLITE_BUSY churn under concurrent engine calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetByUsername(ctx context.Context, username string) (lockstep.Identity, error) {
	return s.get(ctx, "SELECT id, username, password_hash, totp_secret, totp_enabled, totp_last_counter, created_at FROM users WHERE username = ?", username)
}

func (s *Store) GetByID(ctx context.Context, userID string) (lockstep.Identity, error) {
	return s.get(ctx, "SELECT id, username, password_hash, totp_secret, totp_enabled, totp_last_counter, created_at FROM users WHERE id = ?", userID)
}

func (s *Store) get(ctx context.Context, query string, arg any) (lockstep.Identity, error) {
	var (
		identity  lockstep.Identity
		enabled   int
		createdAt int64
	)

	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&identity.UserID,
		&identity.Username,
		&identity.PasswordHash,
		&identity.TOTPSecret,
		&enabled,
		&identity.TOTPLastCounter,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return lockstep.Identity{}, lockstep.ErrUserNotFound
		}
		return lockstep.Identity{}, err
	}

	identity.TOTPEnabled = enabled != 0
	identity.CreatedAt = time.Unix(createdAt, 0).UTC()

	return identity, nil
}

func (s *Store) Create(ctx context.Context, identity lockstep.Identity) (lockstep.Identity, error) {
	if identity.UserID == "" {
		identity.UserID = uuid.NewString()
	}
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, username, password_hash, totp_secret, totp_enabled, totp_last_counter, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		identity.UserID,
		identity.Username,
		identity.PasswordHash,
		identity.TOTPSecret,
		boolToInt(identity.TOTPEnabled),
		identity.TOTPLastCounter,
		identity.CreatedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return lockstep.Identity{}, lockstep.ErrAccountExists
		}
		return lockstep.Identity{}, err
	}

	return identity, nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	return s.update(ctx, "UPDATE users SET password_hash = ? WHERE id = ?", newHash, userID)
}

// SetTOTP writes secret and flag in a single UPDATE, so concurrent readers
// see either the old pair or the new pair, never a mix. Clearing the secret
// also rewinds the replay counter.
func (s *Store) SetTOTP(ctx context.Context, userID, secret string, enabled bool) error {
	if secret == "" {
		return s.update(ctx, "UPDATE users SET totp_secret = '', totp_enabled = 0, totp_last_counter = 0 WHERE id = ?", userID)
	}
	return s.update(ctx, "UPDATE users SET totp_secret = ?, totp_enabled = ? WHERE id = ?", secret, boolToInt(enabled), userID)
}

func (s *Store) UpdateTOTPCounter(ctx context.Context, userID string, counter int64) error {
	return s.update(ctx, "UPDATE users SET totp_last_counter = ? WHERE id = ?", counter, userID)
}

func (s *Store) update(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return lockstep.ErrUserNotFound
	}

	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
