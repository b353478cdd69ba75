package handlers

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

// Close code sent when a connection fails authentication before joining a group.
const closeCodeUnauthorized = 4001

// Close code sent when a job room is requested for a job the caller cannot see.
const closeCodeNotFound = 4004

// WSMessage is the envelope for every frame pushed to clients.
type WSMessage struct {
	Type    string      `json:"type"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// JobStatusUpdate is the payload of job_status_update frames.
type JobStatusUpdate struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// WebSocketHandler fans job status events out to connected clients. Each
// connection joins one group: the user feed (all of a user's jobs) or a
// single job's room. Delivery is best effort with no replay.
type WebSocketHandler struct {
	logger       arbor.ILogger
	authService  interfaces.AuthService
	jobStorage   interfaces.JobStorage
	upgrader     websocket.Upgrader
	groups       map[string]map[*websocket.Conn]bool
	clientMutex  map[*websocket.Conn]*sync.Mutex
	mu           sync.RWMutex
	pingInterval time.Duration
	writeTimeout time.Duration
}

func NewWebSocketHandler(authService interfaces.AuthService, jobStorage interfaces.JobStorage, eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:       logger,
		authService:  authService,
		jobStorage:   jobStorage,
		groups:       make(map[string]map[*websocket.Conn]bool),
		clientMutex:  make(map[*websocket.Conn]*sync.Mutex),
		pingInterval: 30 * time.Second,
		writeTimeout: 10 * time.Second,
	}

	allowedOrigins := []string{}
	if config != nil {
		allowedOrigins = config.AllowedOrigins
		if d, err := time.ParseDuration(config.PingInterval); err == nil && d > 0 {
			h.pingInterval = d
		}
		if d, err := time.ParseDuration(config.WriteTimeout); err == nil && d > 0 {
			h.writeTimeout = d
		}
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if allowed == "*" || strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}

	if eventService != nil {
		eventService.Subscribe(h.onJobStatusEvent)
	}

	return h
}

// HandleUserFeed handles GET /ws - the authenticated user's live job feed.
// The connection is upgraded first so auth failures can be reported with a
// proper close code instead of a plain HTTP error.
func (h *WebSocketHandler) HandleUserFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	userID, err := h.authenticate(r)
	if err != nil {
		h.closeWith(conn, closeCodeUnauthorized, "authentication failed")
		return
	}

	h.serve(conn, models.UserGroup(userID))
}

// HandleJobRoom handles GET /ws/jobs/{id} - updates for a single job. The
// caller must own the job; a job owned by someone else looks like a missing
// job.
func (h *WebSocketHandler) HandleJobRoom(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimPrefix(r.URL.Path, "/ws/jobs/")
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	userID, err := h.authenticate(r)
	if err != nil {
		h.closeWith(conn, closeCodeUnauthorized, "authentication failed")
		return
	}

	if jobID == "" {
		h.closeWith(conn, closeCodeNotFound, "job not found")
		return
	}
	if _, err := h.jobStorage.GetJobOwned(r.Context(), jobID, userID); err != nil {
		h.closeWith(conn, closeCodeNotFound, "job not found")
		return
	}

	h.serve(conn, models.JobGroup(jobID))
}

// authenticate resolves the API key from the token query parameter or the
// Authorization header.
func (h *WebSocketHandler) authenticate(r *http.Request) (string, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	return h.authService.Authenticate(r.Context(), token)
}

// serve registers the connection in its group, acks, and blocks on the read
// loop until the client goes away.
func (h *WebSocketHandler) serve(conn *websocket.Conn, group string) {
	h.mu.Lock()
	if h.groups[group] == nil {
		h.groups[group] = make(map[*websocket.Conn]bool)
	}
	h.groups[group][conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	memberCount := len(h.groups[group])
	h.mu.Unlock()

	h.logger.Debug().
		Str("group", group).
		Int("members", memberCount).
		Msg("WebSocket client connected")

	h.sendToConn(conn, WSMessage{Type: "connection", Message: "subscribed"})

	done := make(chan struct{})
	go h.pingLoop(conn, done)

	defer func() {
		close(done)
		h.mu.Lock()
		if members, ok := h.groups[group]; ok {
			delete(members, conn)
			if len(members) == 0 {
				delete(h.groups, group)
			}
		}
		delete(h.clientMutex, conn)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Str("group", group).Msg("WebSocket client disconnected")
	}()

	// Read messages from client (keep connection alive)
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// pingLoop keeps the connection alive through proxies and detects dead peers.
func (h *WebSocketHandler) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			h.mu.RLock()
			mutex, ok := h.clientMutex[conn]
			h.mu.RUnlock()
			if !ok {
				return
			}

			mutex.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout))
			mutex.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// onJobStatusEvent broadcasts a status transition to the owner's feed and the
// job's room.
func (h *WebSocketHandler) onJobStatusEvent(event models.JobStatusEvent) {
	msg := WSMessage{
		Type: "job_status_update",
		Data: JobStatusUpdate{
			JobID:     event.JobID,
			Status:    string(event.Status),
			Timestamp: event.Timestamp,
		},
		Message: event.Message,
	}

	h.Broadcast(models.UserGroup(event.UserID), msg)
	h.Broadcast(models.JobGroup(event.JobID), msg)
}

// Broadcast sends a message to every connection in the group.
func (h *WebSocketHandler) Broadcast(group string, msg WSMessage) {
	h.mu.RLock()
	members := h.groups[group]
	clients := make([]*websocket.Conn, 0, len(members))
	mutexes := make([]*sync.Mutex, 0, len(members))
	for conn := range members {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutex := mutexes[i]
		mutex.Lock()
		conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		err := conn.WriteJSON(msg)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Str("group", group).Msg("Failed to send message to client")
		}
	}
}

// GroupSize reports the current membership of a group.
func (h *WebSocketHandler) GroupSize(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

func (h *WebSocketHandler) sendToConn(conn *websocket.Conn, msg WSMessage) {
	h.mu.RLock()
	mutex, ok := h.clientMutex[conn]
	h.mu.RUnlock()
	if !ok {
		return
	}

	mutex.Lock()
	conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	err := conn.WriteJSON(msg)
	mutex.Unlock()

	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to send message to client")
	}
}

// closeWith sends a close frame with the given code and drops the connection.
func (h *WebSocketHandler) closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(h.writeTimeout)
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	conn.Close()
}
