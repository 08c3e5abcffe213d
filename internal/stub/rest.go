package stub

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/santipan2003/palmtagram-chatsync/internal/auth"
	"github.com/santipan2003/palmtagram-chatsync/internal/proto"
)

const contextKeyUserID = "user_id"

// LoginRequest represents the login request body.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the token and identity of the logged-in user.
type LoginResponse struct {
	Token string            `json:"token"`
	User  proto.Participant `json:"user"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Handler builds the full HTTP surface: REST routes plus the websocket
// endpoint at /ws.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.POST("/auth/login", s.handleLogin)
	r.GET("/ws", s.handleWS)

	authed := r.Group("/", s.authMiddleware())
	authed.GET("/chat/rooms", s.handleListRooms)
	authed.GET("/chat/rooms/:id", s.handleGetRoom)
	authed.GET("/chat/rooms/:id/unread-count", s.handleRoomUnread)
	authed.GET("/chat/unread-counts", s.handleAllUnread)
	authed.GET("/users/:id/profile", s.handleProfile)
	authed.GET("/notifications", s.handleListNotifications)
	authed.PATCH("/notifications/:id/read", s.handleReadNotification)
	authed.DELETE("/notifications/:id", s.handleDeleteNotification)

	return r
}

// POST /auth/login
func (s *Server) handleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	s.mu.Lock()
	u, ok := s.usersByName[req.Username]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(u.hash, []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
		return
	}

	token, err := auth.GenerateToken(s.jwt, u.ID, u.Username)
	if err != nil {
		s.log.Error().Err(err).Str("username", req.Username).Msg("sign token")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	s.mu.Lock()
	user := s.participantLocked(u)
	s.mu.Unlock()

	s.log.Info().Str("username", req.Username).Msg("user logged in")
	c.JSON(http.StatusOK, LoginResponse{Token: token, User: user})
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := s.claimsFromHeader(c.GetHeader("Authorization"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			c.Abort()
			return
		}
		c.Set(contextKeyUserID, claims.UserID)
		c.Next()
	}
}

func (s *Server) claimsFromHeader(header string) (*auth.Claims, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, errBadAuthHeader
	}
	return auth.ValidateToken(s.jwt, parts[1])
}

// GET /chat/rooms
func (s *Server) handleListRooms(c *gin.Context) {
	userID := c.GetString(contextKeyUserID)

	s.mu.Lock()
	rooms := make([]proto.Room, 0)
	for id, room := range s.rooms {
		if s.isMemberLocked(id, userID) {
			rooms = append(rooms, *room)
		}
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, rooms)
}

// GET /chat/rooms/:id
func (s *Server) handleGetRoom(c *gin.Context) {
	s.mu.Lock()
	room, ok := s.rooms[c.Param("id")]
	var out proto.Room
	if ok {
		out = *room
	}
	s.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// GET /chat/rooms/:id/unread-count
func (s *Server) handleRoomUnread(c *gin.Context) {
	userID := c.GetString(contextKeyUserID)

	s.mu.Lock()
	count := s.unread[userID][c.Param("id")]
	s.mu.Unlock()

	c.JSON(http.StatusOK, proto.UnreadCount{Count: count})
}

// GET /chat/unread-counts
func (s *Server) handleAllUnread(c *gin.Context) {
	userID := c.GetString(contextKeyUserID)

	s.mu.Lock()
	counts := make([]proto.RoomUnread, 0)
	for roomID, count := range s.unread[userID] {
		if count > 0 {
			counts = append(counts, proto.RoomUnread{RoomID: roomID, Count: count})
		}
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, counts)
}

// GET /users/:id/profile
func (s *Server) handleProfile(c *gin.Context) {
	s.mu.Lock()
	u, ok := s.usersByID[c.Param("id")]
	var out proto.Participant
	if ok {
		out = s.participantLocked(u)
	}
	s.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// GET /notifications
func (s *Server) handleListNotifications(c *gin.Context) {
	userID := c.GetString(contextKeyUserID)

	s.mu.Lock()
	items := append([]proto.Notification(nil), s.notifications[userID]...)
	s.mu.Unlock()

	if items == nil {
		items = []proto.Notification{}
	}
	c.JSON(http.StatusOK, items)
}

// PATCH /notifications/:id/read
func (s *Server) handleReadNotification(c *gin.Context) {
	userID := c.GetString(contextKeyUserID)
	id := c.Param("id")

	s.mu.Lock()
	found := false
	items := s.notifications[userID]
	for i := range items {
		if items[i].ID == id {
			items[i].Read = true
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "notification not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// DELETE /notifications/:id
func (s *Server) handleDeleteNotification(c *gin.Context) {
	userID := c.GetString(contextKeyUserID)
	id := c.Param("id")

	s.mu.Lock()
	items := s.notifications[userID]
	found := false
	for i := range items {
		if items[i].ID == id {
			s.notifications[userID] = append(items[:i], items[i+1:]...)
			found = true
			break
		}
	}
	if found {
		s.broadcastUserLocked(userID, proto.EventNotificationsDeleted, proto.NotificationsDeletedEvent{
			NotificationIDs: []string{id},
			Timestamp:       nowUnixMilli(),
		})
	}
	s.mu.Unlock()

	if !found {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "notification not found"})
		return
	}
	c.Status(http.StatusNoContent)
}
