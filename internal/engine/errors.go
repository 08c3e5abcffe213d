package engine

import "errors"

// Error codes surfaced to callers and logs.
const (
	ErrCodeAuthMissing         = "auth_missing"
	ErrCodeNotAMember          = "not_a_member"
	ErrCodeJoinFailed          = "join_failed"
	ErrCodeTransportError      = "transport_error"
	ErrCodeRpcError            = "rpc_error"
	ErrCodeProfileLookupFailed = "profile_lookup_failed"
)

var (
	// ErrAuthMissing reports that no usable token exists; no connection is
	// attempted in that case.
	ErrAuthMissing = errors.New("auth missing")
	// ErrNotAMember reports that the membership guard rejected the room.
	ErrNotAMember = errors.New("not a member of room")
	// ErrJoinFailed reports that the bounded join retries were exhausted.
	ErrJoinFailed = errors.New("room join failed")
	// ErrSessionClosed reports an operation on a torn-down session.
	ErrSessionClosed = errors.New("session closed")
)

// SyncError wraps a machine-readable code with a human-readable message.
type SyncError struct {
	Code    string
	Message string
	err     error
}

func (e *SyncError) Error() string {
	return e.Message
}

func (e *SyncError) Unwrap() error {
	return e.err
}

func syncError(code, msg string, err error) *SyncError {
	return &SyncError{Code: code, Message: msg, err: err}
}
