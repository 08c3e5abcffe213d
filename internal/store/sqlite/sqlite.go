package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/santipan2003/palmtagram-chatsync/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS credentials (
	id        INTEGER PRIMARY KEY CHECK (id = 1),
	token     TEXT NOT NULL,
	user_id   TEXT NOT NULL,
	username  TEXT NOT NULL,
	saved_at  DATETIME NOT NULL
);
`

// Store implements store.Store on a local SQLite file.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at dbPath and applies the schema.
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &Store{db: db}, nil
}

// SaveCredentials replaces the single stored identity record.
func (s *Store) SaveCredentials(ctx context.Context, creds store.Credentials) error {
	savedAt := creds.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (id, token, user_id, username, saved_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			user_id = excluded.user_id,
			username = excluded.username,
			saved_at = excluded.saved_at
	`, creds.Token, creds.UserID, creds.Username, savedAt)
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

// LoadCredentials returns the stored record or store.ErrNoCredentials.
func (s *Store) LoadCredentials(ctx context.Context) (store.Credentials, error) {
	var creds store.Credentials
	err := s.db.QueryRowContext(ctx, `
		SELECT token, user_id, username, saved_at FROM credentials WHERE id = 1
	`).Scan(&creds.Token, &creds.UserID, &creds.Username, &creds.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Credentials{}, store.ErrNoCredentials
	}
	if err != nil {
		return store.Credentials{}, fmt.Errorf("load credentials: %w", err)
	}
	return creds, nil
}

// ClearCredentials removes the stored record.
func (s *Store) ClearCredentials(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = 1`); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
