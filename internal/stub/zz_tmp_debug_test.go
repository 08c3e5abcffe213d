package stub

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/santipan2003/palmtagram-chatsync/internal/proto"
)

func TestZZDebugRawJoinDenied(t *testing.T) {
	w := newWorld(t)
	if _, err := w.srv.SeedUser("mallory", "password3", ""); err != nil {
		t.Fatal(err)
	}
	_, token := w.login(t, "mallory", "password3")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.Dial(ctx, w.wsURL(), &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	req, _ := proto.MakeReq("req-1", proto.EventJoinRoom, proto.JoinRoomData{RoomID: w.roomID, UserID: "whoever"})
	if err := wsjson.Write(ctx, conn, req); err != nil {
		t.Fatalf("write: %v", err)
	}
	for i := 0; i < 3; i++ {
		var raw map[string]any
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			t.Logf("read err after %d frames: %v", i, err)
			return
		}
		t.Logf("frame %d: %+v", i, raw)
		if raw["type"] == "ack" {
			return
		}
	}
}
