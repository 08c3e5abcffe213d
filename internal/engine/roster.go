package engine

import "github.com/santipan2003/palmtagram-chatsync/internal/proto"

// Room returns a snapshot of the active room, or nil for global scope.
func (s *Session) Room() (*proto.Room, error) {
	var out *proto.Room
	err := s.read(func(st *state) {
		if st.room == nil {
			return
		}
		copied := *st.room
		copied.Participants = append([]proto.Participant(nil), st.room.Participants...)
		out = &copied
	})
	return out, err
}

// applyParticipantsChanged updates the active room's roster and bridges the
// event onto the bus for surfaces that are not mounted on this session.
// Losing one's own membership escalates to a redirect.
func (s *Session) applyParticipantsChanged(st *state, ev proto.RoomParticipantsChangedEvent) {
	if st.room != nil && st.room.ID == ev.RoomID && ev.Participants != nil {
		st.room.Participants = append([]proto.Participant(nil), ev.Participants...)
	}

	if ev.RoomID == s.scope.RoomID && ev.Action == "removed" &&
		ev.TargetUser != nil && ev.TargetUser.ID == s.self.UserID {
		s.engine.scheduleRedirect("you were removed from this room", ErrCodeNotAMember)
	}

	s.engine.bus.Publish(TopicRoomParticipantsChanged, ev)
}

// applyUserRoomsChanged bridges room-list changes onto the bus. Removal from
// the active room escalates to a redirect.
func (s *Session) applyUserRoomsChanged(ev proto.UserRoomsChangedEvent) {
	if ev.Action == "removed" && ev.RoomID == s.scope.RoomID {
		s.engine.scheduleRedirect("you no longer have access to this room", ErrCodeNotAMember)
	}

	s.engine.bus.Publish(TopicUserRoomsChanged, ev)
}

// applyRoomLastMessage refreshes the active room's last-message preview.
func (s *Session) applyRoomLastMessage(st *state, ev proto.RoomLastMessageUpdatedEvent) {
	if st.room == nil || st.room.ID != ev.RoomID {
		return
	}
	st.room.LastMessage = ev.LastMessage
}
