package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/santipan2003/palmtagram-chatsync/internal/proto"
	"github.com/santipan2003/palmtagram-chatsync/internal/store/sqlite"
	"github.com/santipan2003/palmtagram-chatsync/internal/transport"
)

func TestConnect_NoStoredToken(t *testing.T) {
	conn := newFakeConn()
	api := &fakeAPI{}

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	e := New(Options{
		API:       api,
		Store:     st,
		SocketURL: "ws://fake",
		Dial: func(context.Context, transport.Options) (transport.Conn, error) {
			t.Fatal("dial must not be attempted without a token")
			return nil, nil
		},
	})

	_, err = e.Connect(context.Background(), Room("r1"))
	if !errors.Is(err, ErrAuthMissing) {
		t.Fatalf("expected ErrAuthMissing, got %v", err)
	}
	_ = conn
}

func TestConnect_JoinSuccessLoadsHistory(t *testing.T) {
	conn := newFakeConn()
	api := &fakeAPI{getRoom: func(string) (*proto.Room, error) { return memberRoom("r1"), nil }}

	page := []proto.Message{
		messageAt(ts(3), "m3", "r1", "u-other", "three"),
		messageAt(ts(2), "m2", "r1", "u-other", "two"),
		messageAt(ts(1), "m1", "r1", "u-other", "one"),
	}
	conn.handle(proto.EventFindRoomMessages, func(json.RawMessage) (any, error) {
		return page, nil
	})

	e := newTestEngine(t, conn, api)
	s := connectRoom(t, e, conn, "r1")

	if got := conn.requestCount(proto.EventJoinRoom); got != 1 {
		t.Fatalf("expected one join attempt, got %d", got)
	}

	eventually(t, func() bool {
		msgs, _ := s.Messages()
		return len(msgs) == 3
	}, "history page applied")

	msgs, err := s.Messages()
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if msgs[i].ID != want {
			t.Fatalf("expected oldest-first order, got %v at %d", msgs[i].ID, i)
		}
	}
}

func TestConnect_MembershipDenied(t *testing.T) {
	conn := newFakeConn()
	api := &fakeAPI{getRoom: func(roomID string) (*proto.Room, error) {
		// Room exists but the current user is not among its participants.
		return &proto.Room{
			ID:           roomID,
			Type:         proto.RoomTypeGroup,
			Participants: []proto.Participant{{ID: "u-other", Username: "bob"}},
		}, nil
	}}

	e := newTestEngine(t, conn, api)
	_, err := e.Connect(context.Background(), Room("r2"))
	if !errors.Is(err, ErrNotAMember) {
		t.Fatalf("expected ErrNotAMember, got %v", err)
	}

	if got := conn.requestCount(proto.EventJoinRoom); got != 0 {
		t.Fatalf("expected no join attempt, got %d", got)
	}

	notice := mustNotice(t, e, NoticeRedirect)
	if notice.Path != "/chat" || notice.Code != ErrCodeNotAMember {
		t.Fatalf("unexpected redirect notice: %+v", notice)
	}
	if !conn.closedNow(t) {
		t.Fatal("transport must be torn down after guard failure")
	}
}

func TestConnect_JoinRetriesExhausted(t *testing.T) {
	conn := newFakeConn()
	api := &fakeAPI{getRoom: func(string) (*proto.Room, error) { return memberRoom("r1"), nil }}

	conn.handle(proto.EventJoinRoom, func(json.RawMessage) (any, error) {
		return nil, &transport.AckError{Event: proto.EventJoinRoom, Reason: "join rejected"}
	})

	e := newTestEngine(t, conn, api)
	_, err := e.Connect(context.Background(), Room("r1"))
	if !errors.Is(err, ErrJoinFailed) {
		t.Fatalf("expected ErrJoinFailed, got %v", err)
	}

	if got := conn.requestCount(proto.EventJoinRoom); got != 5 {
		t.Fatalf("expected exactly 5 join attempts, got %d", got)
	}

	notice := mustNotice(t, e, NoticeRedirect)
	if notice.Path != "/chat" || notice.Code != ErrCodeJoinFailed {
		t.Fatalf("unexpected redirect notice: %+v", notice)
	}
}

func TestMembershipVerdictKeepsRoomData(t *testing.T) {
	conn := newFakeConn()
	api := &fakeAPI{getRoom: func(roomID string) (*proto.Room, error) {
		return &proto.Room{
			ID:           roomID,
			Name:         "design team",
			Type:         proto.RoomTypeGroup,
			Participants: []proto.Participant{{ID: "u-other", Username: "bob"}},
		}, nil
	}}
	e := newTestEngine(t, conn, api)

	isMember, room, err := e.VerifyMembership(context.Background(), testUserID, "r2")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if isMember {
		t.Fatal("expected isMember=false")
	}
	if room == nil || room.Name != "design team" {
		t.Fatalf("room data must survive a negative verdict, got %+v", room)
	}
}

func TestClose_EmitsLeaveRoomAndTearsDown(t *testing.T) {
	conn := newFakeConn()
	api := &fakeAPI{getRoom: func(string) (*proto.Room, error) { return memberRoom("r1"), nil }}

	e := newTestEngine(t, conn, api)
	s := connectRoom(t, e, conn, "r1")

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("double close must be harmless: %v", err)
	}

	leaves := conn.emitted(proto.EventLeaveRoom)
	if len(leaves) != 1 {
		t.Fatalf("expected one leaveRoom emit, got %d", len(leaves))
	}
	var leave proto.LeaveRoomData
	if err := json.Unmarshal(leaves[0].Data, &leave); err != nil {
		t.Fatalf("decode leave payload: %v", err)
	}
	if leave.RoomID != "r1" {
		t.Fatalf("unexpected leave payload: %+v", leave)
	}
	if !conn.closedNow(t) {
		t.Fatal("transport must be closed")
	}
}

func TestConnState_SurfacedAsNotices(t *testing.T) {
	conn := newFakeConn()
	api := &fakeAPI{getRoom: func(string) (*proto.Room, error) { return memberRoom("r1"), nil }}

	e := newTestEngine(t, conn, api)
	connectRoom(t, e, conn, "r1")

	conn.states <- transport.StateDisconnected

	notice := mustNotice(t, e, NoticeConnState)
	if notice.ConnState != transport.StateDisconnected {
		t.Fatalf("unexpected conn-state notice: %+v", notice)
	}
}
