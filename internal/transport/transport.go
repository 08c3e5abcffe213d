// Package transport owns the websocket link to the chat backend: dialing with
// the auth handshake, the request/acknowledgement correlation layer, and
// bounded automatic reconnection.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// State describes the transport-level connection state.
type State string

const (
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateError        State = "error"
)

// Conn is the engine's view of an established socket session. The session
// owns the underlying handle exclusively; consumers only issue requests and
// drain the event channels.
type Conn interface {
	// Request sends a frame and blocks until the matching ack arrives. A
	// failed ack is returned as *AckError carrying the server's error string.
	Request(ctx context.Context, event string, data any) (json.RawMessage, error)
	// Emit sends a fire-and-forget frame.
	Emit(ctx context.Context, event string, data any) error
	// Events delivers server pushes. Closed when the connection is done.
	Events() <-chan Push
	// States delivers connection-state transitions.
	States() <-chan State
	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// Push is a server-initiated event.
type Push struct {
	Event string
	Data  json.RawMessage
}

// AckError is a server acknowledgement reporting failure. Error() returns the
// server-provided string verbatim so callers can surface it unchanged.
type AckError struct {
	Event  string
	Reason string
}

func (e *AckError) Error() string {
	return e.Reason
}

// ErrClosed reports an operation on a connection that has been torn down.
var ErrClosed = errors.New("transport closed")

// Options configures a socket connection.
type Options struct {
	URL               string
	Token             string
	DialTimeout       time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	Logger            *zerolog.Logger
}

// Dialer establishes a connection. The engine takes one so tests can inject
// an in-memory transport.
type Dialer func(ctx context.Context, opts Options) (Conn, error)
