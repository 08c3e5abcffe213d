package engine

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/santipan2003/palmtagram-chatsync/internal/proto"
	"github.com/santipan2003/palmtagram-chatsync/internal/store"
	"github.com/santipan2003/palmtagram-chatsync/internal/transport"
)

// TypingUser is one entry of the typing indicator map.
type TypingUser struct {
	UserID      string
	Username    string
	Name        string
	AvatarURL   string
	LastUpdated time.Time
}

type typingStamp struct {
	isTyping bool
	at       time.Time
}

// state is the session's in-memory world. It is owned by the loop goroutine;
// everything else reaches it through posted commands and value snapshots.
type state struct {
	room     *proto.Room
	messages []proto.Message
	seen     map[string]struct{}

	online       map[string]struct{}
	typing       map[string]TypingUser
	typingStamps map[string]typingStamp

	unread      map[string]int
	totalUnread int

	notifications       []proto.Notification
	unreadNotifications int
}

func newState() *state {
	return &state{
		seen:         make(map[string]struct{}),
		online:       make(map[string]struct{}),
		typing:       make(map[string]TypingUser),
		typingStamps: make(map[string]typingStamp),
		unread:       make(map[string]int),
	}
}

// Session is one live socket scope. It exclusively owns its transport handle
// and all in-memory maps.
type Session struct {
	engine *Engine
	self   store.Credentials
	scope  Scope
	conn   transport.Conn

	st   *state
	cmds chan func(*state)

	// resyncNeeded is set on a disconnect and consumed on the next connected
	// transition. Loop goroutine only.
	resyncNeeded bool

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(e *Engine, creds store.Credentials, scope Scope, conn transport.Conn) *Session {
	return &Session{
		engine: e,
		self:   creds,
		scope:  scope,
		conn:   conn,
		st:     newState(),
		cmds:   make(chan func(*state), 32),
		done:   make(chan struct{}),
	}
}

// Self returns the session's identity record.
func (s *Session) Self() store.Credentials {
	return s.self
}

// ActiveRoomID returns the room the session is scoped to, or "".
func (s *Session) ActiveRoomID() string {
	return s.scope.RoomID
}

// loop is the session's single event loop. All socket pushes, posted
// commands, and sweep ticks interleave here; there is no other writer.
func (s *Session) loop() {
	sweep := time.NewTicker(s.engine.opts.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case fn := <-s.cmds:
			fn(s.st)
		case push, ok := <-s.conn.Events():
			if !ok {
				return
			}
			s.handlePush(push)
		case connState := <-s.conn.States():
			s.handleConnState(connState)
		case <-sweep.C:
			s.sweepStale(s.st, time.Now())
		case <-s.done:
			return
		}
	}
}

// post hands a command to the loop; returns false if the session is closed.
func (s *Session) post(fn func(*state)) bool {
	select {
	case s.cmds <- fn:
		return true
	case <-s.done:
		return false
	}
}

// read runs fn on the loop and waits for it, so callers get a consistent
// snapshot.
func (s *Session) read(fn func(*state)) error {
	ran := make(chan struct{})
	if !s.post(func(st *state) {
		fn(st)
		close(ran)
	}) {
		return ErrSessionClosed
	}
	select {
	case <-ran:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

// bootstrap kicks off the initial authoritative fetches: history page for
// room scope, online set, unread resync, and the notification list seed.
func (s *Session) bootstrap(scope Scope) {
	go s.syncAll(scope)
}

func (s *Session) syncAll(scope Scope) {
	if scope.Mode == ScopeRoom {
		if err := s.LoadPage(context.Background(), s.engine.opts.HistoryPageSize, ""); err != nil {
			s.engine.log.Warn().Err(err).Msg("history load failed")
		}
	}
	if err := s.refreshOnlineUsers(context.Background()); err != nil {
		s.engine.log.Debug().Err(err).Msg("online users fetch failed")
	}
	if err := s.RefreshAllUnread(context.Background()); err != nil {
		s.engine.log.Debug().Err(err).Msg("unread resync failed")
	}
	if err := s.seedNotifications(context.Background()); err != nil {
		s.engine.log.Debug().Err(err).Msg("notification seed failed")
	}
}

// resync recovers server-side state after a transport reconnect. The join is
// re-emitted for room scope so the fresh connection is routed room pushes
// again, then the authoritative fetches run to pick up anything missed during
// the outage. The membership guard is not re-run; removal while offline
// arrives as a roomParticipantsChanged event on the resynced roster.
func (s *Session) resync() {
	go func() {
		if s.scope.Mode == ScopeRoom {
			ctx, cancel := s.reqCtx(context.Background())
			_, err := s.conn.Request(ctx, proto.EventJoinRoom, proto.JoinRoomData{
				RoomID:    s.scope.RoomID,
				UserID:    s.self.UserID,
				Timestamp: time.Now().UnixMilli(),
			})
			cancel()
			if err != nil {
				s.engine.log.Warn().Err(err).Str("room_id", s.scope.RoomID).Msg("rejoin after reconnect failed")
			}
		}
		s.syncAll(s.scope)
	}()
}

// Close tears the session down. For room scope a leave notification is
// emitted first; teardown runs on every exit path.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.scope.Mode == ScopeRoom {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := s.conn.Emit(ctx, proto.EventLeaveRoom, proto.LeaveRoomData{RoomID: s.scope.RoomID}); err != nil {
				s.engine.log.Debug().Err(err).Msg("leave room emit failed")
			}
			cancel()
		}
		close(s.done)
		_ = s.conn.Close()
		s.engine.log.Info().Str("scope", string(s.scope.Mode)).Msg("session closed")
	})
	return nil
}

func (s *Session) handleConnState(connState transport.State) {
	switch connState {
	case transport.StateConnected:
		s.engine.notify(Notice{Kind: NoticeConnState, ConnState: connState})
		if s.resyncNeeded {
			s.resyncNeeded = false
			s.resync()
		}
	case transport.StateDisconnected:
		s.resyncNeeded = true
		s.engine.notify(Notice{Kind: NoticeConnState, ConnState: connState, Text: "connection lost, reconnecting"})
	case transport.StateError:
		s.engine.notify(Notice{Kind: NoticeConnState, ConnState: connState, Text: "connection lost", Code: ErrCodeTransportError})
	}
}

// handlePush decodes a server event and applies it on the loop goroutine.
func (s *Session) handlePush(push transport.Push) {
	switch push.Event {
	case proto.EventMessageCreated:
		var msg proto.Message
		if !s.decode(push, &msg) {
			return
		}
		s.applyCreated(s.st, msg)
	case proto.EventMessageUpdated:
		var msg proto.Message
		if !s.decode(push, &msg) {
			return
		}
		s.applyUpdated(s.st, msg)
	case proto.EventMessageDeleted:
		var ev proto.MessageDeletedEvent
		if !s.decode(push, &ev) {
			return
		}
		s.applyDeleted(s.st, ev.ID)
	case proto.EventMessagesRead:
		var ev proto.MessagesReadEvent
		if !s.decode(push, &ev) {
			return
		}
		s.applyMessagesRead(s.st, ev)
	case proto.EventUserTyping:
		var ev proto.UserTypingEvent
		if !s.decode(push, &ev) {
			return
		}
		s.applyTyping(s.st, ev, time.Now())
	case proto.EventUserJoined:
		var ev proto.UserPresenceEvent
		if !s.decode(push, &ev) {
			return
		}
		s.engine.notify(Notice{Kind: NoticeRoomActivity, Text: ev.Username + " joined"})
	case proto.EventUserLeft:
		var ev proto.UserPresenceEvent
		if !s.decode(push, &ev) {
			return
		}
		s.engine.notify(Notice{Kind: NoticeRoomActivity, Text: ev.Username + " left"})
	case proto.EventOnlineUsers:
		var ids []string
		if !s.decode(push, &ids) {
			return
		}
		s.applyOnlineSet(s.st, ids)
	case proto.EventUserStatus:
		var ev proto.UserStatusEvent
		if !s.decode(push, &ev) {
			return
		}
		s.applyUserStatus(s.st, ev)
	case proto.EventRoomParticipantsChanged:
		var ev proto.RoomParticipantsChangedEvent
		if !s.decode(push, &ev) {
			return
		}
		s.applyParticipantsChanged(s.st, ev)
	case proto.EventUserRoomsChanged:
		var ev proto.UserRoomsChangedEvent
		if !s.decode(push, &ev) {
			return
		}
		s.applyUserRoomsChanged(ev)
	case proto.EventNotification:
		var n proto.Notification
		if !s.decode(push, &n) {
			return
		}
		s.applyNotification(s.st, n)
	case proto.EventNotificationsDeleted:
		var ev proto.NotificationsDeletedEvent
		if !s.decode(push, &ev) {
			return
		}
		s.applyNotificationsDeleted(s.st, ev)
	case proto.EventRoomLastMessageUpdated:
		var ev proto.RoomLastMessageUpdatedEvent
		if !s.decode(push, &ev) {
			return
		}
		s.applyRoomLastMessage(s.st, ev)
	default:
		s.engine.log.Debug().Str("event", push.Event).Msg("unhandled push")
	}
}

func (s *Session) decode(push transport.Push, out any) bool {
	if err := json.Unmarshal(push.Data, out); err != nil {
		s.engine.log.Warn().Err(err).Str("event", push.Event).Msg("malformed push payload")
		return false
	}
	return true
}

// sweepStale bounds memory over long sessions: typing entries and dedupe
// stamps older than the TTL are purged.
func (s *Session) sweepStale(st *state, now time.Time) {
	ttl := s.engine.opts.TypingTTL
	for id, entry := range st.typing {
		if now.Sub(entry.LastUpdated) > ttl {
			delete(st.typing, id)
		}
	}
	for id, stamp := range st.typingStamps {
		if now.Sub(stamp.at) > ttl {
			delete(st.typingStamps, id)
		}
	}
}

// reqCtx derives a bounded context for a socket RPC or REST call.
func (s *Session) reqCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.engine.opts.RequestTimeout)
}
