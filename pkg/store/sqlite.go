package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sajilochat/relay/pkg/model"
)

// SQLStore is the SQLite-backed CredentialStore.
type SQLStore struct {
	db *sql.DB
}

var _ CredentialStore = (*SQLStore)(nil)

// OpenSQL opens (or creates) the credentials database and runs migrations.
func OpenSQL(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}

	ctx := context.Background()

	// WAL keeps concurrent handshake reads from blocking on writes.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set busy_timeout: %w", err)
	}

	s := &SQLStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		username      TEXT    NOT NULL UNIQUE CHECK(length(username) > 0 AND length(username) <= 32),
		password_hash BLOB    NOT NULL,
		created_at    TEXT    NOT NULL DEFAULT (datetime('now'))
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Get returns the stored password hash for username.
func (s *SQLStore) Get(username string) ([]byte, error) {
	var hash []byte
	err := s.db.QueryRowContext(context.Background(),
		"SELECT password_hash FROM users WHERE username = ?", username).Scan(&hash)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get user: %w", err)
	}
	return hash, nil
}

// Put inserts a new credential record. An existing username fails with
// ErrAlreadyExists and leaves the stored row untouched.
func (s *SQLStore) Put(username string, passwordHash []byte) error {
	if err := validate(username); err != nil {
		return fmt.Errorf("store: put user: %w", err)
	}

	_, err := s.db.ExecContext(context.Background(),
		"INSERT INTO users (username, password_hash) VALUES (?, ?)", username, passwordHash)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrAlreadyExists
		}
		return fmt.Errorf("store: put user: %w", err)
	}
	return nil
}

// GetUser returns the full record for username, or ErrNotFound. Used by
// admin tooling; the relay itself only needs Get.
func (s *SQLStore) GetUser(username string) (*model.User, error) {
	u := &model.User{}
	var created string
	err := s.db.QueryRowContext(context.Background(),
		"SELECT id, username, password_hash, created_at FROM users WHERE username = ?",
		username).Scan(&u.ID, &u.Username, &u.PasswordHash, &created)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get user: %w", err)
	}
	if t, err := time.Parse("2006-01-02 15:04:05", created); err == nil {
		u.CreatedAt = t
	}
	return u, nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
