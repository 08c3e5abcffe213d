package engine

import "github.com/santipan2003/palmtagram-chatsync/internal/transport"

// NoticeKind distinguishes what a Notice asks the UI to do.
type NoticeKind int

const (
	// NoticeConnState signals a connection-state transition (banner).
	NoticeConnState NoticeKind = iota
	// NoticeToast is a transient user-facing message, usually a failure.
	NoticeToast
	// NoticeRedirect schedules navigation away from the current view.
	NoticeRedirect
	// NoticeRoomActivity reports a user joining or leaving the active room.
	NoticeRoomActivity
)

// Notice is a UI-facing signal emitted by the engine. The engine never
// navigates or renders; it only describes what should happen.
type Notice struct {
	Kind      NoticeKind
	ConnState transport.State
	Text      string
	// Path is the navigation target for NoticeRedirect.
	Path string
	// Code carries the SyncError code behind a toast or redirect.
	Code string
}

// Bus topics published by the engine for components outside the chat
// subsystem.
const (
	TopicRoomParticipantsChanged = "chat:room-participants-changed"
	TopicUserRoomsChanged        = "chat:user-rooms-changed"
	TopicNotificationReceived    = "user:notification-received"
	TopicNotificationsDeleted    = "user:notifications-deleted"
	TopicRedirect                = "ui:redirect"
)

// redirectPath is where access-loss scenarios send the user.
const redirectPath = "/chat"
