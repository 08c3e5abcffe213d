package engine

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/santipan2003/palmtagram-chatsync/internal/proto"
	"github.com/santipan2003/palmtagram-chatsync/internal/transport"
)

// Messages returns a snapshot of the active room's message list, oldest
// first.
func (s *Session) Messages() ([]proto.Message, error) {
	var out []proto.Message
	err := s.read(func(st *state) {
		out = append(out, st.messages...)
	})
	return out, err
}

// Send creates a message in the active room. There is no local echo: the
// list only changes when the server's messageCreated push arrives, so the ack
// is the sole success signal. On failure the returned error carries the
// server's error string.
func (s *Session) Send(ctx context.Context, content, msgType string) error {
	if msgType == "" {
		msgType = proto.MessageTypeText
	}
	reqCtx, cancel := s.reqCtx(ctx)
	defer cancel()

	_, err := s.conn.Request(reqCtx, proto.EventCreateMessage, proto.CreateMessageData{
		RoomID:  s.scope.RoomID,
		Content: content,
		Type:    msgType,
	})
	return s.rpcResult("send message", err)
}

// UpdateMessage edits a message. Ack-driven like Send.
func (s *Session) UpdateMessage(ctx context.Context, id, content string) error {
	reqCtx, cancel := s.reqCtx(ctx)
	defer cancel()

	_, err := s.conn.Request(reqCtx, proto.EventUpdateMessage, proto.UpdateMessageData{ID: id, Content: content})
	return s.rpcResult("edit message", err)
}

// RemoveMessage deletes a message. Ack-driven like Send.
func (s *Session) RemoveMessage(ctx context.Context, id string) error {
	reqCtx, cancel := s.reqCtx(ctx)
	defer cancel()

	_, err := s.conn.Request(reqCtx, proto.EventRemoveMessage, proto.RemoveMessageData{ID: id})
	return s.rpcResult("delete message", err)
}

// rpcResult maps a socket RPC outcome to the error taxonomy, surfacing
// failures as toasts.
func (s *Session) rpcResult(action string, err error) error {
	if err == nil {
		return nil
	}
	var ack *transport.AckError
	if errors.As(err, &ack) {
		s.engine.notify(Notice{Kind: NoticeToast, Text: ack.Reason, Code: ErrCodeRpcError})
		return syncError(ErrCodeRpcError, ack.Reason, err)
	}
	s.engine.notify(Notice{Kind: NoticeToast, Text: action + " failed", Code: ErrCodeTransportError})
	return syncError(ErrCodeTransportError, action+": "+err.Error(), err)
}

// LoadPage fetches a page of history over the socket RPC. The server returns
// newest first; the first page replaces the list (deduplicated and reversed
// to oldest-first), later pages prepend only unseen messages.
func (s *Session) LoadPage(ctx context.Context, limit int, before string) error {
	reqCtx, cancel := s.reqCtx(ctx)
	defer cancel()

	raw, err := s.conn.Request(reqCtx, proto.EventFindRoomMessages, proto.FindRoomMessagesData{
		RoomID: s.scope.RoomID,
		Limit:  limit,
		Before: before,
	})
	if err != nil {
		return s.rpcResult("load messages", err)
	}

	var page []proto.Message
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &page); err != nil {
			return syncError(ErrCodeRpcError, "malformed history page", err)
		}
	}

	applied := s.post(func(st *state) {
		s.applyPage(st, page, before == "")
	})
	if !applied {
		return ErrSessionClosed
	}
	return nil
}

// applyPage installs a history page. Runs on the loop.
func (s *Session) applyPage(st *state, page []proto.Message, firstPage bool) {
	if firstPage {
		st.messages = st.messages[:0]
		st.seen = make(map[string]struct{})
		// Newest-first from the server; walk backwards to store oldest-first,
		// keeping a single copy per id.
		for i := len(page) - 1; i >= 0; i-- {
			msg := page[i]
			if _, dup := st.seen[msg.ID]; dup {
				continue
			}
			st.seen[msg.ID] = struct{}{}
			st.messages = append(st.messages, msg)
		}
		return
	}

	var older []proto.Message
	for i := len(page) - 1; i >= 0; i-- {
		msg := page[i]
		if _, dup := st.seen[msg.ID]; dup {
			continue
		}
		st.seen[msg.ID] = struct{}{}
		older = append(older, msg)
	}
	if len(older) > 0 {
		st.messages = append(older, st.messages...)
	}
}

// applyCreated appends a server-confirmed message. Idempotent by id. Events
// for other rooms never touch the visible list; they refresh that room's
// unread count instead, keyed by the event's own room id.
func (s *Session) applyCreated(st *state, msg proto.Message) {
	if msg.RoomID != s.scope.RoomID {
		if msg.Sender == nil || msg.Sender.ID != s.self.UserID {
			s.refreshRoomUnread(msg.RoomID)
		}
		return
	}
	if _, dup := st.seen[msg.ID]; dup {
		return
	}
	st.seen[msg.ID] = struct{}{}
	st.messages = append(st.messages, msg)

	if st.room != nil {
		copied := msg
		st.room.LastMessage = &copied
	}
}

// applyUpdated replaces the matching entry in place; ordering is preserved.
// Unknown ids are ignored.
func (s *Session) applyUpdated(st *state, msg proto.Message) {
	if msg.RoomID != s.scope.RoomID {
		return
	}
	for i := range st.messages {
		if st.messages[i].ID == msg.ID {
			st.messages[i] = msg
			return
		}
	}
}

// applyDeleted removes the matching entry; a miss is a no-op.
func (s *Session) applyDeleted(st *state, id string) {
	for i := range st.messages {
		if st.messages[i].ID == id {
			st.messages = append(st.messages[:i], st.messages[i+1:]...)
			delete(st.seen, id)
			return
		}
	}
}

// applyMessagesRead folds reader ids into each message's readBy set, which
// only ever grows.
func (s *Session) applyMessagesRead(st *state, ev proto.MessagesReadEvent) {
	ids := make(map[string]struct{}, len(ev.MessageIDs))
	for _, id := range ev.MessageIDs {
		ids[id] = struct{}{}
	}
	for i := range st.messages {
		if _, ok := ids[st.messages[i].ID]; !ok {
			continue
		}
		if !containsString(st.messages[i].ReadBy, ev.UserID) {
			st.messages[i].ReadBy = append(st.messages[i].ReadBy, ev.UserID)
		}
	}
}

func containsString(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
