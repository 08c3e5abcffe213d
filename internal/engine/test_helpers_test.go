package engine

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/santipan2003/palmtagram-chatsync/internal/proto"
	"github.com/santipan2003/palmtagram-chatsync/internal/retry"
	"github.com/santipan2003/palmtagram-chatsync/internal/store"
	"github.com/santipan2003/palmtagram-chatsync/internal/store/sqlite"
	"github.com/santipan2003/palmtagram-chatsync/internal/transport"
)

// fakeConn is a scripted in-memory transport. Handlers answer requests by
// event name; unscripted requests succeed with an empty payload.
type fakeConn struct {
	mu       sync.Mutex
	handlers map[string]func(data json.RawMessage) (any, error)
	requests []string
	emits    []transport.Push
	closed   bool

	events chan transport.Push
	states chan transport.State
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		handlers: make(map[string]func(data json.RawMessage) (any, error)),
		events:   make(chan transport.Push, 64),
		states:   make(chan transport.State, 8),
	}
}

func (f *fakeConn) handle(event string, fn func(data json.RawMessage) (any, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = fn
}

func (f *fakeConn) Request(_ context.Context, event string, data any) (json.RawMessage, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.requests = append(f.requests, event)
	fn := f.handlers[event]
	f.mu.Unlock()

	if fn == nil {
		return nil, nil
	}
	out, err := fn(raw)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	return json.Marshal(out)
}

func (f *fakeConn) Emit(_ context.Context, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emits = append(f.emits, transport.Push{Event: event, Data: raw})
	return nil
}

func (f *fakeConn) Events() <-chan transport.Push { return f.events }

func (f *fakeConn) States() <-chan transport.State { return f.states }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// pushConnState injects a transport state transition.
func (f *fakeConn) pushConnState(state transport.State) {
	f.states <- state
}

// push injects a server event as the wire would deliver it.
func (f *fakeConn) push(t *testing.T, event string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal push payload: %v", err)
	}
	f.events <- transport.Push{Event: event, Data: raw}
}

func (f *fakeConn) requestCount(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, name := range f.requests {
		if name == event {
			count++
		}
	}
	return count
}

func (f *fakeConn) emitted(event string) []transport.Push {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []transport.Push
	for _, p := range f.emits {
		if p.Event == event {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeConn) closedNow(t *testing.T) bool {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeAPI is a scripted REST surface.
type fakeAPI struct {
	mu sync.Mutex

	getRoom           func(roomID string) (*proto.Room, error)
	getUnread         func(roomID string) (int, error)
	getAllUnread      func() ([]proto.RoomUnread, error)
	getProfile        func(userID string) (*proto.Participant, error)
	listNotifications func() ([]proto.Notification, error)

	unreadCalls []string
}

func (f *fakeAPI) GetRoom(_ context.Context, roomID string) (*proto.Room, error) {
	if f.getRoom == nil {
		return &proto.Room{ID: roomID, Type: proto.RoomTypeGroup}, nil
	}
	return f.getRoom(roomID)
}

func (f *fakeAPI) GetUnreadCount(_ context.Context, roomID string) (int, error) {
	f.mu.Lock()
	f.unreadCalls = append(f.unreadCalls, roomID)
	f.mu.Unlock()
	if f.getUnread == nil {
		return 0, nil
	}
	return f.getUnread(roomID)
}

func (f *fakeAPI) GetAllUnreadCounts(_ context.Context) ([]proto.RoomUnread, error) {
	if f.getAllUnread == nil {
		return nil, nil
	}
	return f.getAllUnread()
}

func (f *fakeAPI) GetProfile(_ context.Context, userID string) (*proto.Participant, error) {
	if f.getProfile == nil {
		return &proto.Participant{ID: userID, Username: userID}, nil
	}
	return f.getProfile(userID)
}

func (f *fakeAPI) ListNotifications(_ context.Context) ([]proto.Notification, error) {
	if f.listNotifications == nil {
		return nil, nil
	}
	return f.listNotifications()
}

func (f *fakeAPI) unreadCallsFor(roomID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, id := range f.unreadCalls {
		if id == roomID {
			count++
		}
	}
	return count
}

const (
	testUserID   = "u-self"
	testUsername = "alice"
)

// selfParticipant returns the test user as a room participant.
func selfParticipant() proto.Participant {
	return proto.Participant{ID: testUserID, Username: testUsername}
}

// memberRoom returns a room that includes the test user.
func memberRoom(roomID string) *proto.Room {
	return &proto.Room{
		ID:   roomID,
		Type: proto.RoomTypeGroup,
		Participants: []proto.Participant{
			selfParticipant(),
			{ID: "u-other", Username: "bob"},
		},
	}
}

// newTestEngine wires an engine with fast tunables, stored credentials, and
// the given fakes.
func newTestEngine(t *testing.T, conn *fakeConn, api *fakeAPI) *Engine {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	creds := store.Credentials{Token: "test-token", UserID: testUserID, Username: testUsername}
	if err := st.SaveCredentials(context.Background(), creds); err != nil {
		t.Fatalf("save credentials: %v", err)
	}

	return New(Options{
		API:       api,
		Store:     st,
		SocketURL: "ws://fake",
		Dial: func(context.Context, transport.Options) (transport.Conn, error) {
			return conn, nil
		},
		RequestTimeout: 2 * time.Second,
		JoinRetry:      retry.Policy{MaxAttempts: 5, Backoff: retry.Fixed(0)},
		TypingDebounce: 500 * time.Millisecond,
	})
}

func connectRoom(t *testing.T, e *Engine, conn *fakeConn, roomID string) *Session {
	t.Helper()

	s, err := e.Connect(context.Background(), Room(roomID))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	_ = conn
	return s
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

// mustNotice waits for a notice of the given kind on the engine stream.
func mustNotice(t *testing.T, e *Engine, kind NoticeKind) Notice {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case n := <-e.Notices():
			if n.Kind == kind {
				return n
			}
		case <-deadline:
			t.Fatalf("expected notice kind %v not received", kind)
			return Notice{}
		}
	}
}

// ts returns a deterministic timestamp n seconds into a fixed day.
func ts(n int) time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(n) * time.Second)
}

func messageAt(ts time.Time, id, roomID, senderID, content string) proto.Message {
	return proto.Message{
		ID:      id,
		RoomID:  roomID,
		Content: content,
		Type:    proto.MessageTypeText,
		Sender: &proto.Participant{
			ID:       senderID,
			Username: senderID,
		},
		CreatedAt: ts,
		UpdatedAt: ts,
	}
}
