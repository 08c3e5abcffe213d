package engine

import (
	"context"

	"github.com/santipan2003/palmtagram-chatsync/internal/proto"
)

// UnreadCounts returns a snapshot of per-room unread counts and the derived
// total.
func (s *Session) UnreadCounts() (map[string]int, int, error) {
	out := make(map[string]int)
	var total int
	err := s.read(func(st *state) {
		for roomID, count := range st.unread {
			out[roomID] = count
		}
		total = st.totalUnread
	})
	return out, total, err
}

// setUnread is the single mutation path for unread state, keeping the total
// equal to the sum of per-room counts.
func (s *Session) setUnread(st *state, roomID string, count int) {
	if count < 0 {
		count = 0
	}
	st.totalUnread += count - st.unread[roomID]
	if count == 0 {
		delete(st.unread, roomID)
	} else {
		st.unread[roomID] = count
	}
}

// refreshRoomUnread re-fetches one room's authoritative count via REST and
// overwrites the local entry. Blind increments would drift on missed events,
// so the count is never bumped locally. Called from the loop; the fetch runs
// off-loop and posts its result back. A REST response always wins over an
// earlier optimistic update because it is applied later on the loop.
func (s *Session) refreshRoomUnread(roomID string) {
	go func() {
		ctx, cancel := s.reqCtx(context.Background())
		defer cancel()

		count, err := s.engine.opts.API.GetUnreadCount(ctx, roomID)
		if err != nil {
			s.engine.log.Debug().Err(err).Str("room_id", roomID).Msg("unread refresh failed")
			return
		}
		s.post(func(st *state) { s.setUnread(st, roomID, count) })
	}()
}

// RefreshAllUnread replaces all unread state from the authoritative REST
// aggregate. Expected on initial mount and on window-focus regain.
func (s *Session) RefreshAllUnread(ctx context.Context) error {
	reqCtx, cancel := s.reqCtx(ctx)
	defer cancel()

	counts, err := s.engine.opts.API.GetAllUnreadCounts(reqCtx)
	if err != nil {
		return err
	}

	applied := s.post(func(st *state) {
		for roomID := range st.unread {
			s.setUnread(st, roomID, 0)
		}
		for _, entry := range counts {
			s.setUnread(st, entry.RoomID, entry.Count)
		}
	})
	if !applied {
		return ErrSessionClosed
	}
	return nil
}

// MarkAsRead reports the given messages as read. Ids authored by the local
// user or already carrying its read mark are filtered out. The room's badge
// is zeroed immediately; the server confirmation is not awaited.
func (s *Session) MarkAsRead(ctx context.Context, messageIDs []string) error {
	var filtered []string
	err := s.read(func(st *state) {
		wanted := make(map[string]struct{}, len(messageIDs))
		for _, id := range messageIDs {
			wanted[id] = struct{}{}
		}
		for i := range st.messages {
			msg := &st.messages[i]
			if _, ok := wanted[msg.ID]; !ok {
				continue
			}
			if msg.Sender != nil && msg.Sender.ID == s.self.UserID {
				continue
			}
			if containsString(msg.ReadBy, s.self.UserID) {
				continue
			}
			filtered = append(filtered, msg.ID)
		}
	})
	if err != nil {
		return err
	}
	if len(filtered) == 0 {
		return nil
	}

	if err := s.conn.Emit(ctx, proto.EventMarkAsRead, proto.MarkAsReadData{
		RoomID:     s.scope.RoomID,
		MessageIDs: filtered,
	}); err != nil {
		return syncError(ErrCodeTransportError, "mark as read: "+err.Error(), err)
	}

	applied := s.post(func(st *state) {
		ids := make(map[string]struct{}, len(filtered))
		for _, id := range filtered {
			ids[id] = struct{}{}
		}
		for i := range st.messages {
			if _, ok := ids[st.messages[i].ID]; ok {
				st.messages[i].ReadBy = append(st.messages[i].ReadBy, s.self.UserID)
			}
		}
		s.setUnread(st, s.scope.RoomID, 0)
	})
	if !applied {
		return ErrSessionClosed
	}
	return nil
}
