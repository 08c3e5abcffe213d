package proto

import "time"

// Profile carries display fields for a user.
type Profile struct {
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Bio       string `json:"bio,omitempty"`
}

// Participant is a room member as it appears on the wire.
type Participant struct {
	ID         string     `json:"_id"`
	Username   string     `json:"username"`
	Profile    *Profile   `json:"profile,omitempty"`
	LastActive *time.Time `json:"lastActive,omitempty"`
	IsOnline   *bool      `json:"isOnline,omitempty"`
}

// Message is a chat message as it appears on the wire. Sender is nil for
// system messages.
type Message struct {
	ID        string               `json:"_id"`
	RoomID    string               `json:"roomId"`
	Content   string               `json:"content"`
	Type      string               `json:"type"`
	Sender    *Participant         `json:"sender,omitempty"`
	ReadBy    []string             `json:"readBy,omitempty"`
	ReadAt    map[string]time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time            `json:"createdAt"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

// Room is a chat room as it appears on the wire.
type Room struct {
	ID           string        `json:"_id"`
	Type         string        `json:"type"`
	Name         string        `json:"name,omitempty"`
	AvatarURL    string        `json:"avatarUrl,omitempty"`
	Participants []Participant `json:"participants"`
	LastMessage  *Message      `json:"lastMessage,omitempty"`
	UnreadCount  *int          `json:"unreadCount,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// Message type values.
const (
	MessageTypeText   = "text"
	MessageTypeImage  = "image"
	MessageTypeFile   = "file"
	MessageTypeSystem = "system"
)

// Room type values.
const (
	RoomTypePrivate = "private"
	RoomTypeGroup   = "group"
)

// JoinRoomData requests to join a room-scoped channel.
type JoinRoomData struct {
	RoomID    string `json:"roomId"`
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}

// LeaveRoomData notifies the server that the client leaves a room.
type LeaveRoomData struct {
	RoomID string `json:"roomId"`
}

// FindRoomMessagesData requests a page of history, newest first.
type FindRoomMessagesData struct {
	RoomID string `json:"roomId"`
	Limit  int    `json:"limit"`
	Before string `json:"before,omitempty"`
}

// CreateMessageData requests creation of a message.
type CreateMessageData struct {
	RoomID  string `json:"roomId"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

// UpdateMessageData requests an edit of an existing message.
type UpdateMessageData struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// RemoveMessageData requests deletion of a message.
type RemoveMessageData struct {
	ID string `json:"id"`
}

// TypingData broadcasts the local user's typing state to the room.
type TypingData struct {
	RoomID   string   `json:"roomId"`
	IsTyping bool     `json:"isTyping"`
	Profile  *Profile `json:"profile,omitempty"`
}

// MarkAsReadData reports messages the local user has read.
type MarkAsReadData struct {
	RoomID     string   `json:"roomId"`
	MessageIDs []string `json:"messageIds"`
}

// GetUnreadCountForRoomData requests the authoritative count for one room.
type GetUnreadCountForRoomData struct {
	RoomID string `json:"roomId"`
}

// UnreadCount is the ack payload for a per-room unread query.
type UnreadCount struct {
	Count int `json:"count"`
}

// RoomUnread pairs a room with its unread count.
type RoomUnread struct {
	RoomID string `json:"roomId"`
	Count  int    `json:"count"`
}

// UserTypingEvent reports a remote user's typing state.
type UserTypingEvent struct {
	RoomID   string   `json:"roomId"`
	UserID   string   `json:"userId"`
	Username string   `json:"username"`
	Profile  *Profile `json:"profile,omitempty"`
	IsTyping bool     `json:"isTyping"`
}

// UserPresenceEvent reports a user joining or leaving the active room.
type UserPresenceEvent struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

// MessageDeletedEvent reports a message removal.
type MessageDeletedEvent struct {
	ID string `json:"id"`
}

// MessagesReadEvent reports that a user read a set of messages.
type MessagesReadEvent struct {
	UserID     string   `json:"userId"`
	MessageIDs []string `json:"messageIds"`
}

// RoomParticipantsChangedEvent reports a roster change in one room.
type RoomParticipantsChangedEvent struct {
	RoomID            string        `json:"roomId"`
	Action            string        `json:"action"`
	TargetUser        *Participant  `json:"targetUser,omitempty"`
	Participants      []Participant `json:"participants,omitempty"`
	ParticipantsCount int           `json:"participantsCount"`
}

// UserRoomsChangedEvent reports that the user's room list changed, e.g. the
// user was added to or removed from a room by someone else.
type UserRoomsChangedEvent struct {
	Action   string `json:"action"`
	RoomID   string `json:"roomId"`
	RoomName string `json:"roomName,omitempty"`
	By       string `json:"by,omitempty"`
	ByName   string `json:"byName,omitempty"`
	Room     *Room  `json:"room,omitempty"`
}

// UserStatusEvent patches a single user's online flag.
type UserStatusEvent struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

// Notification is a server-pushed notification.
type Notification struct {
	ID        string    `json:"_id"`
	Type      string    `json:"type"`
	Actor     string    `json:"actor,omitempty"`
	ActorName string    `json:"actorName,omitempty"`
	Content   string    `json:"content,omitempty"`
	TargetURL string    `json:"targetUrl,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// NotificationsDeletedEvent reports server-side notification removal.
type NotificationsDeletedEvent struct {
	NotificationIDs []string `json:"notificationIds"`
	Timestamp       int64    `json:"timestamp"`
}

// RoomLastMessageUpdatedEvent refreshes a room's last-message preview.
type RoomLastMessageUpdatedEvent struct {
	RoomID      string   `json:"roomId"`
	LastMessage *Message `json:"lastMessage,omitempty"`
}
