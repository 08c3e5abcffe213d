package engine

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/santipan2003/palmtagram-chatsync/internal/proto"
)

// OnlineUsers returns a snapshot of the online user id set, sorted for
// stable rendering.
func (s *Session) OnlineUsers() ([]string, error) {
	var out []string
	err := s.read(func(st *state) {
		for id := range st.online {
			out = append(out, id)
		}
	})
	sort.Strings(out)
	return out, err
}

// TypingUsers returns a snapshot of users currently typing in the active
// room.
func (s *Session) TypingUsers() ([]TypingUser, error) {
	var out []TypingUser
	err := s.read(func(st *state) {
		for _, entry := range st.typing {
			out = append(out, entry)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, err
}

// SendTyping broadcasts the local user's typing state. Scheduling the
// automatic isTyping=false after the idle window is the caller's job.
func (s *Session) SendTyping(ctx context.Context, isTyping bool) error {
	return s.conn.Emit(ctx, proto.EventTyping, proto.TypingData{
		RoomID:   s.scope.RoomID,
		IsTyping: isTyping,
		Profile:  &proto.Profile{Name: s.self.Username},
	})
}

// refreshOnlineUsers pulls the authoritative online set over the socket RPC.
func (s *Session) refreshOnlineUsers(ctx context.Context) error {
	reqCtx, cancel := s.reqCtx(ctx)
	defer cancel()

	raw, err := s.conn.Request(reqCtx, proto.EventGetOnlineUsers, nil)
	if err != nil {
		return err
	}
	var ids []string
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &ids); err != nil {
			return syncError(ErrCodeRpcError, "malformed online users payload", err)
		}
	}

	if !s.post(func(st *state) { s.applyOnlineSet(st, ids) }) {
		return ErrSessionClosed
	}
	return nil
}

// applyOnlineSet replaces the online set wholesale.
func (s *Session) applyOnlineSet(st *state, ids []string) {
	st.online = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		st.online[id] = struct{}{}
	}
}

// applyUserStatus patches a single user's online flag.
func (s *Session) applyUserStatus(st *state, ev proto.UserStatusEvent) {
	if ev.IsOnline {
		st.online[ev.UserID] = struct{}{}
	} else {
		delete(st.online, ev.UserID)
	}
}

// applyTyping upserts or removes a typing entry. A duplicate event with the
// same flag inside the debounce window is suppressed to avoid redundant
// renders. An entry missing a resolved display name is inserted provisionally
// and enriched via REST without blocking.
func (s *Session) applyTyping(st *state, ev proto.UserTypingEvent, now time.Time) {
	if ev.UserID == "" || ev.UserID == s.self.UserID {
		return
	}

	if stamp, ok := st.typingStamps[ev.UserID]; ok {
		if stamp.isTyping == ev.IsTyping && now.Sub(stamp.at) < s.engine.opts.TypingDebounce {
			return
		}
	}
	st.typingStamps[ev.UserID] = typingStamp{isTyping: ev.IsTyping, at: now}

	if !ev.IsTyping {
		delete(st.typing, ev.UserID)
		return
	}

	entry := TypingUser{
		UserID:      ev.UserID,
		Username:    ev.Username,
		LastUpdated: now,
	}
	if entry.Username == "" {
		entry.Username = ev.UserID
	}
	if ev.Profile != nil {
		entry.Name = ev.Profile.Name
		entry.AvatarURL = ev.Profile.AvatarURL
	}
	st.typing[ev.UserID] = entry

	// A username equal to the raw id means the server had no profile at hand.
	if entry.Name == "" && entry.Username == ev.UserID {
		go s.enrichTypingUser(ev.UserID)
	}
}

// enrichTypingUser resolves display fields via REST and patches the entry if
// the user is still typing. Lookup failure degrades to the raw username.
func (s *Session) enrichTypingUser(userID string) {
	ctx, cancel := s.reqCtx(context.Background())
	defer cancel()

	user, err := s.engine.opts.API.GetProfile(ctx, userID)
	if err != nil {
		s.engine.log.Debug().Err(err).Str("user_id", userID).Str("code", ErrCodeProfileLookupFailed).
			Msg("typing profile lookup failed")
		return
	}

	s.post(func(st *state) {
		entry, ok := st.typing[userID]
		if !ok {
			return
		}
		if user.Username != "" {
			entry.Username = user.Username
		}
		if user.Profile != nil {
			entry.Name = user.Profile.Name
			entry.AvatarURL = user.Profile.AvatarURL
		}
		st.typing[userID] = entry
	})
}
