package stub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/santipan2003/palmtagram-chatsync/internal/proto"
)

var errBadAuthHeader = errors.New("bad authorization header")

func nowUnixMilli() int64 {
	return time.Now().UnixMilli()
}

// session is one live websocket connection.
type session struct {
	userID   string
	username string
	events   chan proto.Frame
}

// send queues a push frame, dropping it if the session cannot keep up.
func (sess *session) send(event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	select {
	case sess.events <- proto.Frame{Type: proto.FrameEvent, Event: event, Data: raw}:
	default:
	}
}

// GET /ws
func (s *Server) handleWS(c *gin.Context) {
	claims, err := s.claimsFromHeader(c.GetHeader("Authorization"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	sess := &session{
		userID:   claims.UserID,
		username: claims.Username,
		events:   make(chan proto.Frame, 64),
	}
	println("DEBUG: registering")
	s.register(sess)
	println("DEBUG: registered")
	defer s.unregister(sess)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	println("DEBUG: starting loops")
	errCh := make(chan error, 2)
	go func() {
		errCh <- s.readLoop(ctx, conn, sess)
	}()
	go func() {
		errCh <- s.writeLoop(ctx, conn, sess)
	}()

	<-errCh
	cancel()
	<-errCh

	conn.Close(websocket.StatusNormalClosure, "closing")
}

func (s *Server) register(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess] = struct{}{}
	s.broadcastAllLocked(proto.EventUserStatus, proto.UserStatusEvent{
		UserID:   sess.userID,
		IsOnline: true,
	}, sess)
}

func (s *Server) unregister(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sess)

	for other := range s.sessions {
		if other.userID == sess.userID {
			return // another session keeps the user online
		}
	}
	s.broadcastAllLocked(proto.EventUserStatus, proto.UserStatusEvent{
		UserID:   sess.userID,
		IsOnline: false,
	}, nil)
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, sess *session) error {
	for {
		var frame proto.Frame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			println("DEBUG: server read err:", err.Error())
			return err
		}
		println("DEBUG: server got frame", frame.Type, frame.Event)

		switch frame.Type {
		case proto.FrameReq:
			ack := s.handleRequest(sess, frame)
			select {
			case sess.events <- ack:
			case <-ctx.Done():
				return ctx.Err()
			}
		case proto.FrameEmit:
			s.handleEmit(sess, frame)
		default:
			s.log.Warn().Str("type", frame.Type).Msg("unexpected frame type")
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, sess *session) error {
	for {
		select {
		case frame := <-sess.events:
			println("DEBUG: server writing", frame.Type, frame.Event)
			if err := wsjson.Write(ctx, conn, frame); err != nil {
				println("DEBUG: server write err:", err.Error())
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func ackOK(id string, data any) proto.Frame {
	raw, _ := json.Marshal(data)
	return proto.Frame{Type: proto.FrameAck, ID: id, Success: true, Data: raw}
}

func ackErr(id, reason string) proto.Frame {
	return proto.Frame{Type: proto.FrameAck, ID: id, Error: reason}
}

func (s *Server) handleRequest(sess *session, frame proto.Frame) proto.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch frame.Event {
	case proto.EventJoinRoom:
		var data proto.JoinRoomData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return ackErr(frame.ID, "malformed payload")
		}
		if !s.isMemberLocked(data.RoomID, sess.userID) {
			return ackErr(frame.ID, "not a member of this room")
		}
		s.broadcastRoomLocked(data.RoomID, proto.EventUserJoined, proto.UserPresenceEvent{
			RoomID:   data.RoomID,
			Username: sess.username,
		}, sess)
		return ackOK(frame.ID, nil)

	case proto.EventFindRoomMessages:
		var data proto.FindRoomMessagesData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return ackErr(frame.ID, "malformed payload")
		}
		return ackOK(frame.ID, s.pageLocked(data))

	case proto.EventCreateMessage:
		var data proto.CreateMessageData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return ackErr(frame.ID, "malformed payload")
		}
		if !s.isMemberLocked(data.RoomID, sess.userID) {
			return ackErr(frame.ID, "not a member of this room")
		}
		msg := s.createMessageLocked(sess, data)
		return ackOK(frame.ID, msg)

	case proto.EventUpdateMessage:
		var data proto.UpdateMessageData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return ackErr(frame.ID, "malformed payload")
		}
		msg, ok := s.updateMessageLocked(sess.userID, data)
		if !ok {
			return ackErr(frame.ID, "message not found")
		}
		return ackOK(frame.ID, msg)

	case proto.EventRemoveMessage:
		var data proto.RemoveMessageData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return ackErr(frame.ID, "malformed payload")
		}
		if !s.removeMessageLocked(sess.userID, data.ID) {
			return ackErr(frame.ID, "message not found")
		}
		return ackOK(frame.ID, nil)

	case proto.EventGetOnlineUsers:
		return ackOK(frame.ID, s.onlineUserIDsLocked())

	case proto.EventGetUnreadCountForRoom:
		var data proto.GetUnreadCountForRoomData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return ackErr(frame.ID, "malformed payload")
		}
		return ackOK(frame.ID, proto.UnreadCount{Count: s.unread[sess.userID][data.RoomID]})

	case proto.EventGetUnreadCountForAllRooms:
		counts := make([]proto.RoomUnread, 0)
		for roomID, count := range s.unread[sess.userID] {
			if count > 0 {
				counts = append(counts, proto.RoomUnread{RoomID: roomID, Count: count})
			}
		}
		return ackOK(frame.ID, counts)

	default:
		return ackErr(frame.ID, "unknown event "+frame.Event)
	}
}

func (s *Server) handleEmit(sess *session, frame proto.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch frame.Event {
	case proto.EventTyping:
		var data proto.TypingData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return
		}
		s.broadcastRoomLocked(data.RoomID, proto.EventUserTyping, proto.UserTypingEvent{
			RoomID:   data.RoomID,
			UserID:   sess.userID,
			Username: sess.username,
			Profile:  data.Profile,
			IsTyping: data.IsTyping,
		}, sess)

	case proto.EventMarkAsRead:
		var data proto.MarkAsReadData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return
		}
		s.markReadLocked(sess, data)

	case proto.EventLeaveRoom:
		var data proto.LeaveRoomData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return
		}
		s.broadcastRoomLocked(data.RoomID, proto.EventUserLeft, proto.UserPresenceEvent{
			RoomID:   data.RoomID,
			Username: sess.username,
		}, sess)

	default:
		s.log.Warn().Str("event", frame.Event).Msg("unexpected emit")
	}
}

// pageLocked returns up to limit messages newest first, older than the
// message named by Before when set.
func (s *Server) pageLocked(data proto.FindRoomMessagesData) []proto.Message {
	history := s.messages[data.RoomID]

	end := len(history)
	if data.Before != "" {
		for i, msg := range history {
			if msg.ID == data.Before {
				end = i
				break
			}
		}
	}

	limit := data.Limit
	if limit <= 0 || limit > end {
		limit = end
	}

	page := make([]proto.Message, 0, limit)
	for i := end - 1; i >= end-limit; i-- {
		page = append(page, history[i])
	}
	return page
}

func (s *Server) createMessageLocked(sess *session, data proto.CreateMessageData) proto.Message {
	msgType := data.Type
	if msgType == "" {
		msgType = proto.MessageTypeText
	}

	now := time.Now().UTC()
	sender := proto.Participant{ID: sess.userID, Username: sess.username}
	if u, ok := s.usersByID[sess.userID]; ok {
		sender = s.participantLocked(u)
	}
	msg := proto.Message{
		ID:        uuid.NewString(),
		RoomID:    data.RoomID,
		Content:   data.Content,
		Type:      msgType,
		Sender:    &sender,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.messages[data.RoomID] = append(s.messages[data.RoomID], msg)
	s.bumpUnreadLocked(data.RoomID, sess.userID)

	if room, ok := s.rooms[data.RoomID]; ok {
		room.LastMessage = &msg
		room.UpdatedAt = now
	}

	s.broadcastRoomLocked(data.RoomID, proto.EventMessageCreated, msg, nil)
	s.broadcastRoomLocked(data.RoomID, proto.EventRoomLastMessageUpdated, proto.RoomLastMessageUpdatedEvent{
		RoomID:      data.RoomID,
		LastMessage: &msg,
	}, nil)
	return msg
}

func (s *Server) updateMessageLocked(userID string, data proto.UpdateMessageData) (proto.Message, bool) {
	for roomID, history := range s.messages {
		for i := range history {
			if history[i].ID != data.ID {
				continue
			}
			if history[i].Sender == nil || history[i].Sender.ID != userID {
				return proto.Message{}, false
			}
			history[i].Content = data.Content
			history[i].UpdatedAt = time.Now().UTC()
			msg := history[i]
			s.broadcastRoomLocked(roomID, proto.EventMessageUpdated, msg, nil)
			return msg, true
		}
	}
	return proto.Message{}, false
}

func (s *Server) removeMessageLocked(userID, id string) bool {
	for roomID, history := range s.messages {
		for i := range history {
			if history[i].ID != id {
				continue
			}
			if history[i].Sender == nil || history[i].Sender.ID != userID {
				return false
			}
			s.messages[roomID] = append(history[:i], history[i+1:]...)
			s.broadcastRoomLocked(roomID, proto.EventMessageDeleted, proto.MessageDeletedEvent{ID: id}, nil)
			return true
		}
	}
	return false
}

func (s *Server) markReadLocked(sess *session, data proto.MarkAsReadData) {
	wanted := make(map[string]struct{}, len(data.MessageIDs))
	for _, id := range data.MessageIDs {
		wanted[id] = struct{}{}
	}

	var marked []string
	history := s.messages[data.RoomID]
	for i := range history {
		if _, ok := wanted[history[i].ID]; !ok {
			continue
		}
		history[i].ReadBy = append(history[i].ReadBy, sess.userID)
		marked = append(marked, history[i].ID)
	}
	if len(marked) == 0 {
		return
	}

	if counts, ok := s.unread[sess.userID]; ok {
		delete(counts, data.RoomID)
	}

	s.broadcastRoomLocked(data.RoomID, proto.EventMessagesRead, proto.MessagesReadEvent{
		UserID:     sess.userID,
		MessageIDs: marked,
	}, sess)
}
