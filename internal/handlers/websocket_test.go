package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
	"github.com/ternarybob/scrutor/internal/services/events"
	badgerstorage "github.com/ternarybob/scrutor/internal/storage/badger"
)

// stubAuth resolves canned tokens to user ids
type stubAuth struct {
	keys map[string]string
}

func (s *stubAuth) IssueKey(ctx context.Context, userID, name string) (string, *models.APIKey, error) {
	return "", nil, models.ErrUnauthorized
}

func (s *stubAuth) Authenticate(ctx context.Context, rawKey string) (string, error) {
	if userID, ok := s.keys[rawKey]; ok {
		return userID, nil
	}
	return "", models.ErrUnauthorized
}

func newTestJobStorage(t *testing.T) interfaces.JobStorage {
	t.Helper()

	options := badgerhold.DefaultOptions
	options.Dir = t.TempDir()
	options.ValueDir = options.Dir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return badgerstorage.NewJobStorageFromStore(store, arbor.NewLogger())
}

func newTestHub(t *testing.T, jobs interfaces.JobStorage) (*WebSocketHandler, interfaces.EventService) {
	t.Helper()

	logger := arbor.NewLogger()
	eventService := events.NewService(logger)
	t.Cleanup(func() { eventService.Close() })

	auth := &stubAuth{keys: map[string]string{
		"key-alice": "alice",
		"key-bob":   "bob",
	}}

	handler := NewWebSocketHandler(auth, jobs, eventService, logger, &common.WebSocketConfig{
		PingInterval: "30s",
		WriteTimeout: "5s",
	})
	return handler, eventService
}

func dialWS(t *testing.T, serverURL, path string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(serverURL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestUserFeedReceivesOwnEvents(t *testing.T) {
	jobs := newTestJobStorage(t)
	handler, eventService := newTestHub(t, jobs)

	server := httptest.NewServer(http.HandlerFunc(handler.HandleUserFeed))
	defer server.Close()

	aliceConn := dialWS(t, server.URL, "?token=key-alice")
	bobConn := dialWS(t, server.URL, "?token=key-bob")

	ack := readMessage(t, aliceConn)
	assert.Equal(t, "connection", ack.Type)
	readMessage(t, bobConn)

	eventService.Publish(models.JobStatusEvent{
		JobID:     "job-1",
		UserID:    "alice",
		Status:    models.JobStatusRunning,
		Timestamp: time.Now().UTC(),
	})

	msg := readMessage(t, aliceConn)
	assert.Equal(t, "job_status_update", msg.Type)

	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "job-1", data["job_id"])
	assert.Equal(t, string(models.JobStatusRunning), data["status"])

	// Bob's feed stays quiet for Alice's jobs.
	bobConn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var stray WSMessage
	err := bobConn.ReadJSON(&stray)
	assert.Error(t, err)
}

func TestUserFeedRejectsBadToken(t *testing.T) {
	jobs := newTestJobStorage(t)
	handler, _ := newTestHub(t, jobs)

	server := httptest.NewServer(http.HandlerFunc(handler.HandleUserFeed))
	defer server.Close()

	conn := dialWS(t, server.URL, "?token=nope")

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)

	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected close error, got %v", err)
	assert.Equal(t, closeCodeUnauthorized, closeErr.Code)
}

func TestJobRoomOwnerScoped(t *testing.T) {
	jobs := newTestJobStorage(t)
	handler, eventService := newTestHub(t, jobs)

	job, err := jobs.CreateJob(context.Background(), "alice", "analyze acme corp online presence")
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(handler.HandleJobRoom))
	defer server.Close()

	// Bob cannot join Alice's job room; the room looks like a missing job.
	bobConn := dialWS(t, server.URL, "/ws/jobs/"+job.ID+"?token=key-bob")
	bobConn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = bobConn.ReadMessage()
	require.Error(t, err)
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected close error, got %v", err)
	assert.Equal(t, closeCodeNotFound, closeErr.Code)

	aliceConn := dialWS(t, server.URL, "/ws/jobs/"+job.ID+"?token=key-alice")
	ack := readMessage(t, aliceConn)
	assert.Equal(t, "connection", ack.Type)

	eventService.Publish(models.JobStatusEvent{
		JobID:     job.ID,
		UserID:    "alice",
		Status:    models.JobStatusAnalyzing,
		Timestamp: time.Now().UTC(),
	})

	msg := readMessage(t, aliceConn)
	assert.Equal(t, "job_status_update", msg.Type)
	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, job.ID, data["job_id"])
}

func TestGroupMembershipCleanedUpOnClose(t *testing.T) {
	jobs := newTestJobStorage(t)
	handler, _ := newTestHub(t, jobs)

	server := httptest.NewServer(http.HandlerFunc(handler.HandleUserFeed))
	defer server.Close()

	conn := dialWS(t, server.URL, "?token=key-alice")
	readMessage(t, conn)

	group := models.UserGroup("alice")
	assert.Equal(t, 1, handler.GroupSize(group))

	conn.Close()

	require.Eventually(t, func() bool {
		return handler.GroupSize(group) == 0
	}, 2*time.Second, 20*time.Millisecond)
}
