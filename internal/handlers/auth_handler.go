package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scrutor/internal/interfaces"
)

// AuthHandler issues API keys. The endpoint is guarded by the deployment's
// admin secret, not by user keys.
type AuthHandler struct {
	authService interfaces.AuthService
	adminSecret string
	logger      arbor.ILogger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService interfaces.AuthService, adminSecret string, logger arbor.ILogger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		adminSecret: adminSecret,
		logger:      logger,
	}
}

// IssueKeyRequest is the body of POST /api/auth/keys.
type IssueKeyRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
}

// IssueKeyHandler mints a new API key for a user. The raw key is returned
// exactly once and never stored
// POST /api/auth/keys
func (h *AuthHandler) IssueKeyHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	if !h.adminAuthorized(r.Header.Get("Authorization")) {
		h.logger.Warn().Msg("Rejected key issuance with bad admin secret")
		WriteError(w, http.StatusForbidden, "admin secret required")
		return
	}

	var req IssueKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	rawKey, key, err := h.authService.IssueKey(r.Context(), req.UserID, req.Name)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to issue API key")
		WriteServiceError(w, err)
		return
	}

	h.logger.Info().Str("user_id", req.UserID).Str("key_prefix", key.KeyPrefix).Msg("API key issued")
	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"api_key":    rawKey,
		"key_prefix": key.KeyPrefix,
		"user_id":    key.UserID,
		"name":       key.Name,
		"created_at": key.CreatedAt,
	})
}

// adminAuthorized checks the bearer admin secret in constant time. An empty
// configured secret disables issuance entirely.
func (h *AuthHandler) adminAuthorized(authHeader string) bool {
	if h.adminSecret == "" {
		return false
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return false
	}
	presented := strings.TrimPrefix(authHeader, "Bearer ")
	return subtle.ConstantTimeCompare([]byte(presented), []byte(h.adminSecret)) == 1
}
