package engine

import (
	"context"

	"github.com/santipan2003/palmtagram-chatsync/internal/proto"
)

// Notifications returns a snapshot of the mirrored notification list, newest
// first, plus the unread-notification count.
func (s *Session) Notifications() ([]proto.Notification, int, error) {
	var out []proto.Notification
	var unread int
	err := s.read(func(st *state) {
		out = append(out, st.notifications...)
		unread = st.unreadNotifications
	})
	return out, unread, err
}

// seedNotifications loads the initial list via REST so pushes have a base to
// reconcile against.
func (s *Session) seedNotifications(ctx context.Context) error {
	reqCtx, cancel := s.reqCtx(ctx)
	defer cancel()

	items, err := s.engine.opts.API.ListNotifications(reqCtx)
	if err != nil {
		return err
	}

	if !s.post(func(st *state) {
		st.notifications = items
		st.unreadNotifications = 0
		for _, n := range items {
			if !n.Read {
				st.unreadNotifications++
			}
		}
	}) {
		return ErrSessionClosed
	}
	return nil
}

// applyNotification mirrors a server push into local state and onto the bus
// so components outside the chat subsystem can react without importing it.
func (s *Session) applyNotification(st *state, n proto.Notification) {
	for _, existing := range st.notifications {
		if existing.ID == n.ID {
			return
		}
	}
	st.notifications = append([]proto.Notification{n}, st.notifications...)
	if !n.Read {
		st.unreadNotifications++
	}

	s.engine.bus.Publish(TopicNotificationReceived, n)
}

// applyNotificationsDeleted removes deleted notifications. The unread counter
// only drops for entries that were unread at deletion time, so local state is
// inspected before removal.
func (s *Session) applyNotificationsDeleted(st *state, ev proto.NotificationsDeletedEvent) {
	deleted := make(map[string]struct{}, len(ev.NotificationIDs))
	for _, id := range ev.NotificationIDs {
		deleted[id] = struct{}{}
	}

	kept := st.notifications[:0]
	for _, n := range st.notifications {
		if _, gone := deleted[n.ID]; !gone {
			kept = append(kept, n)
			continue
		}
		if !n.Read && st.unreadNotifications > 0 {
			st.unreadNotifications--
		}
	}
	st.notifications = kept

	s.engine.bus.Publish(TopicNotificationsDeleted, ev)
}
