package store

import (
	"context"
	"errors"
	"time"
)

// Credentials is the minimal identity record persisted between runs: the auth
// token plus the `{_id, username}` pair the engine needs before any socket
// attempt.
type Credentials struct {
	Token    string
	UserID   string
	Username string
	SavedAt  time.Time
}

// ErrNoCredentials is returned when nothing has been persisted yet, or after
// a logout cleared the record.
var ErrNoCredentials = errors.New("no stored credentials")

// Store persists client state across runs.
type Store interface {
	// SaveCredentials replaces the stored identity record.
	SaveCredentials(ctx context.Context, creds Credentials) error
	// LoadCredentials returns the stored identity record or ErrNoCredentials.
	LoadCredentials(ctx context.Context) (Credentials, error)
	// ClearCredentials removes the stored record. Clearing an empty store is
	// not an error.
	ClearCredentials(ctx context.Context) error

	Close() error
}
