package proto

import "encoding/json"

// Frame is the envelope for every payload crossing the socket, in both
// directions. Requests carry a correlation ID which the server echoes back in
// the matching ack frame.
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Event   string          `json:"event,omitempty"`
	Success bool            `json:"success,omitempty"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

const (
	// FrameReq is a client request expecting an acknowledgement.
	FrameReq = "req"
	// FrameEmit is a fire-and-forget client event.
	FrameEmit = "emit"
	// FrameAck is the server's answer to a req, matched by ID.
	FrameAck = "ack"
	// FrameEvent is a server push.
	FrameEvent = "event"
)

// Outbound event names (client -> server).
const (
	EventJoinRoom                  = "joinRoom"
	EventLeaveRoom                 = "leaveRoom"
	EventFindRoomMessages          = "findRoomMessages"
	EventCreateMessage             = "createMessage"
	EventUpdateMessage             = "updateMessage"
	EventRemoveMessage             = "removeMessage"
	EventTyping                    = "typing"
	EventMarkAsRead                = "markAsRead"
	EventGetOnlineUsers            = "getOnlineUsers"
	EventGetUnreadCountForRoom     = "getUnreadCountForRoom"
	EventGetUnreadCountForAllRooms = "getUnreadCountForAllRooms"
)

// Inbound event names (server -> client).
const (
	EventMessageCreated          = "messageCreated"
	EventMessageUpdated          = "messageUpdated"
	EventMessageDeleted          = "messageDeleted"
	EventUserTyping              = "userTyping"
	EventUserJoined              = "userJoined"
	EventUserLeft                = "userLeft"
	EventMessagesRead            = "messagesRead"
	EventRoomParticipantsChanged = "roomParticipantsChanged"
	EventUserRoomsChanged        = "userRoomsChanged"
	EventOnlineUsers             = "onlineUsers"
	EventUserStatus              = "userStatus"
	EventNotification            = "notification"
	EventNotificationsDeleted    = "notificationsDeleted"
	EventRoomLastMessageUpdated  = "roomLastMessageUpdated"
)

// MakeReq builds a request frame with a marshaled payload.
func MakeReq(id, event string, data any) (Frame, error) {
	raw, err := marshalData(data)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameReq, ID: id, Event: event, Data: raw}, nil
}

// MakeEmit builds a fire-and-forget frame with a marshaled payload.
func MakeEmit(event string, data any) (Frame, error) {
	raw, err := marshalData(data)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameEmit, Event: event, Data: raw}, nil
}

func marshalData(data any) (json.RawMessage, error) {
	if data == nil {
		return nil, nil
	}
	return json.Marshal(data)
}
