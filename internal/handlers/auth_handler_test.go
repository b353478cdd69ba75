package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/models"
	"github.com/ternarybob/scrutor/internal/services/auth"
)

// memAuthStorage keeps API keys in memory
type memAuthStorage struct {
	mu   sync.Mutex
	keys map[string]*models.APIKey
}

func newMemAuthStorage() *memAuthStorage {
	return &memAuthStorage{keys: make(map[string]*models.APIKey)}
}

func (m *memAuthStorage) SaveAPIKey(ctx context.Context, key *models.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key.ID] = key
	return nil
}

func (m *memAuthStorage) GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.APIKey
	for _, key := range m.keys {
		if key.KeyPrefix == prefix {
			out = append(out, key)
		}
	}
	return out, nil
}

func (m *memAuthStorage) TouchAPIKey(ctx context.Context, keyID string) error { return nil }

func newTestAuthHandler(t *testing.T, adminSecret string) *AuthHandler {
	t.Helper()

	logger := arbor.NewLogger()
	service := auth.NewService(newMemAuthStorage(), logger)
	return NewAuthHandler(service, adminSecret, logger)
}

func TestIssueKeyHandler(t *testing.T) {
	handler := newTestAuthHandler(t, "admin-secret")

	r := httptest.NewRequest("POST", "/api/auth/keys", strings.NewReader(`{"user_id":"alice","name":"ci"}`))
	r.Header.Set("Authorization", "Bearer admin-secret")

	w := httptest.NewRecorder()
	handler.IssueKeyHandler(w, r)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	rawKey, _ := resp["api_key"].(string)
	assert.True(t, strings.HasPrefix(rawKey, "sk_"))
	assert.Equal(t, "alice", resp["user_id"])
}

func TestIssueKeyHandler_BadAdminSecret(t *testing.T) {
	handler := newTestAuthHandler(t, "admin-secret")

	r := httptest.NewRequest("POST", "/api/auth/keys", strings.NewReader(`{"user_id":"alice"}`))
	r.Header.Set("Authorization", "Bearer wrong")

	w := httptest.NewRecorder()
	handler.IssueKeyHandler(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestIssueKeyHandler_DisabledWithoutSecret(t *testing.T) {
	handler := newTestAuthHandler(t, "")

	r := httptest.NewRequest("POST", "/api/auth/keys", strings.NewReader(`{"user_id":"alice"}`))
	r.Header.Set("Authorization", "Bearer ")

	w := httptest.NewRecorder()
	handler.IssueKeyHandler(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestIssueKeyHandler_MissingUser(t *testing.T) {
	handler := newTestAuthHandler(t, "admin-secret")

	r := httptest.NewRequest("POST", "/api/auth/keys", strings.NewReader(`{}`))
	r.Header.Set("Authorization", "Bearer admin-secret")

	w := httptest.NewRecorder()
	handler.IssueKeyHandler(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
