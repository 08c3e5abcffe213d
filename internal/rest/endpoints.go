package rest

import (
	"context"
	"net/http"

	"github.com/santipan2003/palmtagram-chatsync/internal/proto"
)

// LoginResult carries the token and identity returned by a successful login.
type LoginResult struct {
	Token string            `json:"token"`
	User  proto.Participant `json:"user"`
}

// Login exchanges credentials for a token and identity record.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResult, error) {
	body := map[string]string{"username": username, "password": password}
	var result LoginResult
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &result); err != nil {
		return LoginResult{}, err
	}
	return result, nil
}

// ListRooms returns all rooms the current user belongs to.
func (c *Client) ListRooms(ctx context.Context) ([]proto.Room, error) {
	var rooms []proto.Room
	if err := c.do(ctx, http.MethodGet, "/chat/rooms", nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// GetRoom fetches one room with its participant roster.
func (c *Client) GetRoom(ctx context.Context, roomID string) (*proto.Room, error) {
	var room proto.Room
	if err := c.do(ctx, http.MethodGet, "/chat/rooms/"+pathEscape(roomID), nil, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// GetUnreadCount fetches the authoritative unread count for one room.
func (c *Client) GetUnreadCount(ctx context.Context, roomID string) (int, error) {
	var payload proto.UnreadCount
	if err := c.do(ctx, http.MethodGet, "/chat/rooms/"+pathEscape(roomID)+"/unread-count", nil, &payload); err != nil {
		return 0, err
	}
	return payload.Count, nil
}

// GetAllUnreadCounts fetches unread counts for every room of the user.
func (c *Client) GetAllUnreadCounts(ctx context.Context) ([]proto.RoomUnread, error) {
	var counts []proto.RoomUnread
	if err := c.do(ctx, http.MethodGet, "/chat/unread-counts", nil, &counts); err != nil {
		return nil, err
	}
	return counts, nil
}

// GetProfile looks up a user's display fields, used to enrich typing
// indicators that arrive with only a raw user ID.
func (c *Client) GetProfile(ctx context.Context, userID string) (*proto.Participant, error) {
	var user proto.Participant
	if err := c.do(ctx, http.MethodGet, "/users/"+pathEscape(userID)+"/profile", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListNotifications returns the user's notifications, newest first.
func (c *Client) ListNotifications(ctx context.Context) ([]proto.Notification, error) {
	var items []proto.Notification
	if err := c.do(ctx, http.MethodGet, "/notifications", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// MarkNotificationRead flags one notification as read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPatch, "/notifications/"+pathEscape(id)+"/read", nil, nil)
}

// DeleteNotification removes one notification.
func (c *Client) DeleteNotification(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/notifications/"+pathEscape(id), nil, nil)
}
