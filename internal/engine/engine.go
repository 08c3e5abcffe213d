// Package engine implements the realtime chat state-synchronization engine:
// socket session lifecycle, the message stream reducer, presence and typing
// tracking, unread-count reconciliation, and the roster/notification bridges.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/santipan2003/palmtagram-chatsync/internal/bus"
	"github.com/santipan2003/palmtagram-chatsync/internal/log"
	"github.com/santipan2003/palmtagram-chatsync/internal/proto"
	"github.com/santipan2003/palmtagram-chatsync/internal/retry"
	"github.com/santipan2003/palmtagram-chatsync/internal/store"
	"github.com/santipan2003/palmtagram-chatsync/internal/transport"
)

// API is the REST surface the engine reconciles against.
type API interface {
	GetRoom(ctx context.Context, roomID string) (*proto.Room, error)
	GetUnreadCount(ctx context.Context, roomID string) (int, error)
	GetAllUnreadCounts(ctx context.Context) ([]proto.RoomUnread, error)
	GetProfile(ctx context.Context, userID string) (*proto.Participant, error)
	ListNotifications(ctx context.Context) ([]proto.Notification, error)
}

// Options configures an Engine. API, Store, and SocketURL are required; zero
// values elsewhere fall back to production defaults.
type Options struct {
	API       API
	Store     store.Store
	Bus       *bus.Bus
	Logger    *zerolog.Logger
	SocketURL string

	// Dial is swappable so tests can inject an in-memory transport.
	Dial transport.Dialer

	DialTimeout       time.Duration
	RequestTimeout    time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration

	JoinRetry retry.Policy

	TypingDebounce time.Duration
	TypingTTL      time.Duration
	SweepInterval  time.Duration

	// HistoryPageSize is the page size of the initial history fetch on join.
	HistoryPageSize int
}

// Engine creates socket sessions and owns the cross-component signal
// surfaces (notices, bus topics).
type Engine struct {
	opts    Options
	log     *zerolog.Logger
	bus     *bus.Bus
	notices chan Notice
}

// New builds an engine from options, applying defaults.
func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Bus == nil {
		opts.Bus = bus.New()
	}
	if opts.Dial == nil {
		opts.Dial = transport.Dial
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if opts.ReconnectAttempts <= 0 {
		opts.ReconnectAttempts = 5
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 2 * time.Second
	}
	if opts.JoinRetry.MaxAttempts <= 0 {
		opts.JoinRetry = retry.Policy{
			MaxAttempts: 5,
			Backoff:     retry.Exponential(2*time.Second, 8*time.Second),
		}
	}
	if opts.TypingDebounce <= 0 {
		opts.TypingDebounce = 500 * time.Millisecond
	}
	if opts.TypingTTL <= 0 {
		opts.TypingTTL = 5 * time.Minute
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 5 * time.Minute
	}
	if opts.HistoryPageSize <= 0 {
		opts.HistoryPageSize = 50
	}

	return &Engine{
		opts:    opts,
		log:     opts.Logger,
		bus:     opts.Bus,
		notices: make(chan Notice, 32),
	}
}

// Bus exposes the engine's publish/subscribe bus.
func (e *Engine) Bus() *bus.Bus {
	return e.bus
}

// Notices delivers UI-facing signals: connection state, toasts, redirects.
func (e *Engine) Notices() <-chan Notice {
	return e.notices
}

// ScopeMode selects what a session is for.
type ScopeMode string

const (
	// ScopeGlobal is a presence-only session with no active room.
	ScopeGlobal ScopeMode = "global"
	// ScopeRoom is a session bound to one active chat room.
	ScopeRoom ScopeMode = "room"
)

// Scope describes the session target.
type Scope struct {
	Mode   ScopeMode
	RoomID string
}

// Global returns a presence-only scope.
func Global() Scope {
	return Scope{Mode: ScopeGlobal}
}

// Room returns a scope bound to roomID.
func Room(roomID string) Scope {
	return Scope{Mode: ScopeRoom, RoomID: roomID}
}

// VerifyMembership checks via REST whether the current user belongs to the
// room. The fetched room survives a negative verdict so callers can still
// render it before redirecting.
func (e *Engine) VerifyMembership(ctx context.Context, userID, roomID string) (bool, *proto.Room, error) {
	room, err := e.opts.API.GetRoom(ctx, roomID)
	if err != nil {
		return false, nil, err
	}
	for _, p := range room.Participants {
		if p.ID == userID {
			return true, room, nil
		}
	}
	return false, room, nil
}

// Connect establishes a socket session for the given scope.
//
// The token is resolved from the persistent store; absence fails with
// ErrAuthMissing before any dial. For room scope the membership guard runs
// after the transport connects and before the join; guard failure and join
// exhaustion both schedule a redirect instead of leaving a broken in-room
// state.
func (e *Engine) Connect(ctx context.Context, scope Scope) (*Session, error) {
	creds, err := e.resolveCredentials(ctx)
	if err != nil {
		return nil, err
	}

	conn, err := e.opts.Dial(ctx, transport.Options{
		URL:               e.opts.SocketURL,
		Token:             creds.Token,
		DialTimeout:       e.opts.DialTimeout,
		ReconnectAttempts: e.opts.ReconnectAttempts,
		ReconnectDelay:    e.opts.ReconnectDelay,
		Logger:            e.log,
	})
	if err != nil {
		e.notify(Notice{Kind: NoticeToast, Text: "connection failed", Code: ErrCodeTransportError})
		return nil, syncError(ErrCodeTransportError, "connect: "+err.Error(), err)
	}

	s := newSession(e, creds, scope, conn)

	if scope.Mode == ScopeRoom {
		if err := e.enterRoom(ctx, s, scope.RoomID); err != nil {
			conn.Close()
			return nil, err
		}
	}

	go s.loop()
	s.bootstrap(scope)

	return s, nil
}

// resolveCredentials loads and sanity-checks the persisted identity.
func (e *Engine) resolveCredentials(ctx context.Context) (store.Credentials, error) {
	creds, err := e.opts.Store.LoadCredentials(ctx)
	if errors.Is(err, store.ErrNoCredentials) {
		return store.Credentials{}, syncError(ErrCodeAuthMissing, "no stored auth token", ErrAuthMissing)
	}
	if err != nil {
		return store.Credentials{}, err
	}
	if creds.Token == "" {
		return store.Credentials{}, syncError(ErrCodeAuthMissing, "no stored auth token", ErrAuthMissing)
	}
	return creds, nil
}

// enterRoom runs the membership guard and the bounded join.
func (e *Engine) enterRoom(ctx context.Context, s *Session, roomID string) error {
	isMember, room, err := e.VerifyMembership(ctx, s.self.UserID, roomID)
	if err != nil {
		e.notify(Notice{Kind: NoticeToast, Text: "could not verify room access", Code: ErrCodeTransportError})
		return syncError(ErrCodeTransportError, "verify membership: "+err.Error(), err)
	}
	if !isMember {
		e.scheduleRedirect("you are not a member of this room", ErrCodeNotAMember)
		return syncError(ErrCodeNotAMember, "not a member of room "+roomID, ErrNotAMember)
	}
	s.st.room = room

	joinErr := e.opts.JoinRetry.Do(ctx, func(ctx context.Context) error {
		reqCtx, cancel := context.WithTimeout(ctx, e.opts.RequestTimeout)
		defer cancel()
		_, err := s.conn.Request(reqCtx, proto.EventJoinRoom, proto.JoinRoomData{
			RoomID:    roomID,
			UserID:    s.self.UserID,
			Timestamp: time.Now().UnixMilli(),
		})
		if err != nil {
			e.log.Warn().Err(err).Str("room_id", roomID).Msg("join attempt failed")
		}
		return err
	})
	if joinErr != nil {
		e.scheduleRedirect("could not join the room", ErrCodeJoinFailed)
		return syncError(ErrCodeJoinFailed, "join room "+roomID+": "+joinErr.Error(), ErrJoinFailed)
	}

	e.log.Info().Str("room_id", roomID).Msg("joined room")
	return nil
}

// scheduleRedirect emits the navigation signal on both the notice stream and
// the bus so any mounted surface can react.
func (e *Engine) scheduleRedirect(reason, code string) {
	n := Notice{Kind: NoticeRedirect, Path: redirectPath, Text: reason, Code: code}
	e.notify(n)
	e.bus.Publish(TopicRedirect, n)
}

func (e *Engine) notify(n Notice) {
	select {
	case e.notices <- n:
	default:
		// Drop if slow consumer.
	}
}

// OnRoomParticipantsChanged subscribes to roster changes for any room the
// user can see. Returns an unsubscribe function. No replay for late
// subscribers; resync via REST on mount.
func (e *Engine) OnRoomParticipantsChanged(cb func(proto.RoomParticipantsChangedEvent)) func() {
	return e.bus.Subscribe(TopicRoomParticipantsChanged, func(payload any) {
		if ev, ok := payload.(proto.RoomParticipantsChangedEvent); ok {
			cb(ev)
		}
	})
}

// OnUserRoomsChanged subscribes to changes of the user's room list.
func (e *Engine) OnUserRoomsChanged(cb func(proto.UserRoomsChangedEvent)) func() {
	return e.bus.Subscribe(TopicUserRoomsChanged, func(payload any) {
		if ev, ok := payload.(proto.UserRoomsChangedEvent); ok {
			cb(ev)
		}
	})
}
