package stub

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/santipan2003/palmtagram-chatsync/internal/proto"
	"github.com/santipan2003/palmtagram-chatsync/internal/rest"
	"github.com/santipan2003/palmtagram-chatsync/internal/transport"
)

type world struct {
	srv     *Server
	http    *httptest.Server
	aliceID string
	bobID   string
	roomID  string
}

func newWorld(t *testing.T) *world {
	t.Helper()

	logger := zerolog.Nop()
	srv := New("test-secret", logger)

	aliceID, err := srv.SeedUser("alice", "password1", "Alice A")
	if err != nil {
		t.Fatalf("seed alice: %v", err)
	}
	bobID, err := srv.SeedUser("bob", "password2", "Bob B")
	if err != nil {
		t.Fatalf("seed bob: %v", err)
	}
	roomID := srv.SeedRoom("general", proto.RoomTypeGroup, aliceID, bobID)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &world{srv: srv, http: ts, aliceID: aliceID, bobID: bobID, roomID: roomID}
}

func (w *world) wsURL() string {
	return "ws" + strings.TrimPrefix(w.http.URL, "http") + "/ws"
}

func (w *world) login(t *testing.T, username, password string) (*rest.Client, string) {
	t.Helper()

	logger := zerolog.Nop()
	client := rest.New(w.http.URL, 5*time.Second, &logger)
	result, err := client.Login(context.Background(), username, password)
	if err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
	client.SetToken(result.Token)
	return client, result.Token
}

func (w *world) dial(t *testing.T, token string) transport.Conn {
	t.Helper()

	logger := zerolog.Nop()
	conn, err := transport.Dial(context.Background(), transport.Options{
		URL:         w.wsURL(),
		Token:       token,
		DialTimeout: 5 * time.Second,
		Logger:      &logger,
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func decode(raw json.RawMessage, out any) error {
	return json.Unmarshal(raw, out)
}

func waitPush(t *testing.T, conn transport.Conn, event string) transport.Push {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case push, ok := <-conn.Events():
			if !ok {
				t.Fatalf("event channel closed waiting for %s", event)
			}
			if push.Event == event {
				return push
			}
		case <-deadline:
			t.Fatalf("no %s push within deadline", event)
		}
	}
}

func TestLogin_RejectsBadPassword(t *testing.T) {
	w := newWorld(t)

	logger := zerolog.Nop()
	client := rest.New(w.http.URL, 5*time.Second, &logger)
	if _, err := client.Login(context.Background(), "alice", "wrong"); err == nil {
		t.Fatal("expected login failure")
	}
}

func TestLogin_ReturnsIdentity(t *testing.T) {
	w := newWorld(t)

	logger := zerolog.Nop()
	client := rest.New(w.http.URL, 5*time.Second, &logger)
	result, err := client.Login(context.Background(), "alice", "password1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.User.ID != w.aliceID || result.User.Username != "alice" {
		t.Fatalf("unexpected identity %+v", result.User)
	}
	if result.Token == "" {
		t.Fatal("empty token")
	}
}

func TestREST_RequiresToken(t *testing.T) {
	w := newWorld(t)

	logger := zerolog.Nop()
	client := rest.New(w.http.URL, 5*time.Second, &logger)
	if _, err := client.ListRooms(context.Background()); err == nil {
		t.Fatal("expected unauthorized error")
	}
}

func TestREST_RoomsAndProfile(t *testing.T) {
	w := newWorld(t)
	client, _ := w.login(t, "alice", "password1")

	rooms, err := client.ListRooms(context.Background())
	if err != nil {
		t.Fatalf("list rooms: %v", err)
	}
	if len(rooms) != 1 || rooms[0].ID != w.roomID {
		t.Fatalf("unexpected rooms %+v", rooms)
	}

	room, err := client.GetRoom(context.Background(), w.roomID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if len(room.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(room.Participants))
	}

	profile, err := client.GetProfile(context.Background(), w.bobID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if profile.Username != "bob" || profile.Profile == nil || profile.Profile.Name != "Bob B" {
		t.Fatalf("unexpected profile %+v", profile)
	}

	if _, err := client.GetRoom(context.Background(), "missing"); !rest.IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestWS_RejectsBadToken(t *testing.T) {
	w := newWorld(t)

	logger := zerolog.Nop()
	if _, err := transport.Dial(context.Background(), transport.Options{
		URL:         w.wsURL(),
		Token:       "garbage",
		DialTimeout: 2 * time.Second,
		Logger:      &logger,
	}); err == nil {
		t.Fatal("expected handshake rejection")
	}
}

func TestWS_JoinDeniedForNonMember(t *testing.T) {
	w := newWorld(t)
	outsiderID, err := w.srv.SeedUser("mallory", "password3", "")
	if err != nil {
		t.Fatalf("seed outsider: %v", err)
	}
	_, token := w.login(t, "mallory", "password3")
	conn := w.dial(t, token)

	_, err = conn.Request(context.Background(), proto.EventJoinRoom, proto.JoinRoomData{
		RoomID: w.roomID,
		UserID: outsiderID,
	})
	if err == nil {
		t.Fatal("expected join rejection")
	}
	if err.Error() != "not a member of this room" {
		t.Fatalf("ack reason not passed through verbatim: %q", err.Error())
	}
}

func TestWS_MessageFlowBetweenTwoClients(t *testing.T) {
	w := newWorld(t)
	_, aliceToken := w.login(t, "alice", "password1")
	_, bobToken := w.login(t, "bob", "password2")

	alice := w.dial(t, aliceToken)
	bob := w.dial(t, bobToken)

	for _, c := range []struct {
		conn   transport.Conn
		userID string
	}{{alice, w.aliceID}, {bob, w.bobID}} {
		if _, err := c.conn.Request(context.Background(), proto.EventJoinRoom, proto.JoinRoomData{
			RoomID: w.roomID,
			UserID: c.userID,
		}); err != nil {
			t.Fatalf("join: %v", err)
		}
	}

	raw, err := alice.Request(context.Background(), proto.EventCreateMessage, proto.CreateMessageData{
		RoomID:  w.roomID,
		Content: "hello bob",
		Type:    proto.MessageTypeText,
	})
	if err != nil {
		t.Fatalf("create message: %v", err)
	}
	var created proto.Message
	if err := decode(raw, &created); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if created.ID == "" || created.Sender == nil || created.Sender.ID != w.aliceID {
		t.Fatalf("unexpected created message %+v", created)
	}

	push := waitPush(t, bob, proto.EventMessageCreated)
	var received proto.Message
	if err := decode(push.Data, &received); err != nil {
		t.Fatalf("decode push: %v", err)
	}
	if received.ID != created.ID || received.Content != "hello bob" {
		t.Fatalf("unexpected pushed message %+v", received)
	}
	waitPush(t, bob, proto.EventRoomLastMessageUpdated)

	// Bob's unread count reflects the message until he reports reading it.
	bobClient, _ := w.login(t, "bob", "password2")
	count, err := bobClient.GetUnreadCount(context.Background(), w.roomID)
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected unread 1, got %d", count)
	}

	if err := bob.Emit(context.Background(), proto.EventMarkAsRead, proto.MarkAsReadData{
		RoomID:     w.roomID,
		MessageIDs: []string{created.ID},
	}); err != nil {
		t.Fatalf("mark as read: %v", err)
	}

	readPush := waitPush(t, alice, proto.EventMessagesRead)
	var readEv proto.MessagesReadEvent
	if err := decode(readPush.Data, &readEv); err != nil {
		t.Fatalf("decode read event: %v", err)
	}
	if readEv.UserID != w.bobID || len(readEv.MessageIDs) != 1 {
		t.Fatalf("unexpected read event %+v", readEv)
	}
}

func TestWS_TypingRelayedToPeers(t *testing.T) {
	w := newWorld(t)
	_, aliceToken := w.login(t, "alice", "password1")
	_, bobToken := w.login(t, "bob", "password2")

	alice := w.dial(t, aliceToken)
	bob := w.dial(t, bobToken)

	if err := alice.Emit(context.Background(), proto.EventTyping, proto.TypingData{
		RoomID:   w.roomID,
		IsTyping: true,
		Profile:  &proto.Profile{Name: "Alice A"},
	}); err != nil {
		t.Fatalf("emit typing: %v", err)
	}

	push := waitPush(t, bob, proto.EventUserTyping)
	var ev proto.UserTypingEvent
	if err := decode(push.Data, &ev); err != nil {
		t.Fatalf("decode typing: %v", err)
	}
	if ev.UserID != w.aliceID || !ev.IsTyping || ev.Profile == nil || ev.Profile.Name != "Alice A" {
		t.Fatalf("unexpected typing event %+v", ev)
	}
}

func TestWS_HistoryPaging(t *testing.T) {
	w := newWorld(t)
	_, aliceToken := w.login(t, "alice", "password1")
	alice := w.dial(t, aliceToken)

	for _, content := range []string{"one", "two", "three"} {
		if _, err := alice.Request(context.Background(), proto.EventCreateMessage, proto.CreateMessageData{
			RoomID:  w.roomID,
			Content: content,
		}); err != nil {
			t.Fatalf("create %s: %v", content, err)
		}
	}

	raw, err := alice.Request(context.Background(), proto.EventFindRoomMessages, proto.FindRoomMessagesData{
		RoomID: w.roomID,
		Limit:  2,
	})
	if err != nil {
		t.Fatalf("find messages: %v", err)
	}
	var page []proto.Message
	if err := decode(raw, &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page) != 2 || page[0].Content != "three" || page[1].Content != "two" {
		t.Fatalf("expected newest-first page [three two], got %+v", page)
	}

	raw, err = alice.Request(context.Background(), proto.EventFindRoomMessages, proto.FindRoomMessagesData{
		RoomID: w.roomID,
		Limit:  2,
		Before: page[1].ID,
	})
	if err != nil {
		t.Fatalf("find older: %v", err)
	}
	var older []proto.Message
	if err := decode(raw, &older); err != nil {
		t.Fatalf("decode older: %v", err)
	}
	if len(older) != 1 || older[0].Content != "one" {
		t.Fatalf("expected [one], got %+v", older)
	}
}

func TestNotifications_ReadAndDelete(t *testing.T) {
	w := newWorld(t)
	nID := w.srv.SeedNotification(w.aliceID, "comment", "bob commented")
	client, _ := w.login(t, "alice", "password1")

	items, err := client.ListNotifications(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].ID != nID || items[0].Read {
		t.Fatalf("unexpected notifications %+v", items)
	}

	if err := client.MarkNotificationRead(context.Background(), nID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	items, err = client.ListNotifications(context.Background())
	if err != nil {
		t.Fatalf("list again: %v", err)
	}
	if !items[0].Read {
		t.Fatal("notification not marked read")
	}

	if err := client.DeleteNotification(context.Background(), nID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	items, err = client.ListNotifications(context.Background())
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty list, got %+v", items)
	}
}
