// Package stub is an in-memory chat backend for development and tests. It
// serves the REST surface and the websocket frame protocol against seeded
// users, rooms, and notifications, with no persistence.
package stub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/santipan2003/palmtagram-chatsync/internal/auth"
	"github.com/santipan2003/palmtagram-chatsync/internal/proto"
)

// User is a seeded account.
type User struct {
	ID       string
	Username string
	Name     string
	hash     []byte
}

// Server holds the whole world state behind one mutex. Traffic volumes here
// are interactive, not production; contention is not a concern.
type Server struct {
	log zerolog.Logger
	jwt *auth.JWTConfig

	mu            sync.Mutex
	usersByName   map[string]*User
	usersByID     map[string]*User
	rooms         map[string]*proto.Room
	messages      map[string][]proto.Message      // roomID -> oldest first
	unread        map[string]map[string]int       // userID -> roomID -> count
	notifications map[string][]proto.Notification // userID -> newest first
	sessions      map[*session]struct{}
}

// New builds an empty stub backend signing tokens with the given secret.
func New(secret string, logger zerolog.Logger) *Server {
	return &Server{
		log: logger,
		jwt: &auth.JWTConfig{
			Secret:   []byte(secret),
			Issuer:   "palmtagram-stub",
			Audience: "palmtagram",
			TTL:      24 * time.Hour,
		},
		usersByName:   make(map[string]*User),
		usersByID:     make(map[string]*User),
		rooms:         make(map[string]*proto.Room),
		messages:      make(map[string][]proto.Message),
		unread:        make(map[string]map[string]int),
		notifications: make(map[string][]proto.Notification),
		sessions:      make(map[*session]struct{}),
	}
}

// SeedUser registers an account with a bcrypt-hashed password and returns its
// generated ID.
func (s *Server) SeedUser(username, password, name string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return "", err
	}

	u := &User{
		ID:       uuid.NewString(),
		Username: username,
		Name:     name,
		hash:     hash,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.usersByName[username] = u
	s.usersByID[u.ID] = u
	return u.ID, nil
}

// SeedRoom creates a room containing the given user IDs and returns its ID.
func (s *Server) SeedRoom(name, roomType string, userIDs ...string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	room := &proto.Room{
		ID:        uuid.NewString(),
		Type:      roomType,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, id := range userIDs {
		if u, ok := s.usersByID[id]; ok {
			room.Participants = append(room.Participants, s.participantLocked(u))
		}
	}
	s.rooms[room.ID] = room
	return room.ID
}

// SeedNotification appends a notification for one user and returns its ID.
func (s *Server) SeedNotification(userID, kind, content string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := proto.Notification{
		ID:        uuid.NewString(),
		Type:      kind,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	s.notifications[userID] = append([]proto.Notification{n}, s.notifications[userID]...)
	return n.ID
}

func (s *Server) participantLocked(u *User) proto.Participant {
	p := proto.Participant{ID: u.ID, Username: u.Username}
	if u.Name != "" {
		p.Profile = &proto.Profile{Name: u.Name}
	}
	return p
}

func (s *Server) isMemberLocked(roomID, userID string) bool {
	room, ok := s.rooms[roomID]
	if !ok {
		return false
	}
	for _, p := range room.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

// broadcastRoomLocked pushes an event to every connected session whose user
// belongs to the room, except the excluded one.
func (s *Server) broadcastRoomLocked(roomID, event string, payload any, except *session) {
	for sess := range s.sessions {
		if sess == except {
			continue
		}
		if !s.isMemberLocked(roomID, sess.userID) {
			continue
		}
		sess.send(event, payload)
	}
}

// broadcastUserLocked pushes an event to every session of one user.
func (s *Server) broadcastUserLocked(userID, event string, payload any) {
	for sess := range s.sessions {
		if sess.userID == userID {
			sess.send(event, payload)
		}
	}
}

// broadcastAllLocked pushes an event to every connected session.
func (s *Server) broadcastAllLocked(event string, payload any, except *session) {
	for sess := range s.sessions {
		if sess != except {
			sess.send(event, payload)
		}
	}
}

func (s *Server) bumpUnreadLocked(roomID, senderID string) {
	room, ok := s.rooms[roomID]
	if !ok {
		return
	}
	for _, p := range room.Participants {
		if p.ID == senderID {
			continue
		}
		counts, ok := s.unread[p.ID]
		if !ok {
			counts = make(map[string]int)
			s.unread[p.ID] = counts
		}
		counts[roomID]++
	}
}

func (s *Server) onlineUserIDsLocked() []string {
	seen := make(map[string]struct{})
	var ids []string
	for sess := range s.sessions {
		if _, dup := seen[sess.userID]; dup {
			continue
		}
		seen[sess.userID] = struct{}{}
		ids = append(ids, sess.userID)
	}
	return ids
}
