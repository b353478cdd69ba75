package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"golang.org/x/crypto/bcrypt"

	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

const (
	keyPrefixLen = 8
	rawKeyBytes  = 24
)

// Service issues and verifies API keys. Raw keys are returned once at
// issuance; only a bcrypt hash is stored. Verification looks up candidates by
// the key's 8-character prefix and compares the hash, so a database leak
// exposes no usable credentials.
type Service struct {
	storage interfaces.AuthStorage
	logger  arbor.ILogger
}

// NewService creates a new auth service
func NewService(storage interfaces.AuthStorage, logger arbor.ILogger) interfaces.AuthService {
	return &Service{
		storage: storage,
		logger:  logger,
	}
}

// IssueKey mints a new API key for the user
func (s *Service) IssueKey(ctx context.Context, userID, name string) (string, *models.APIKey, error) {
	if userID == "" {
		return "", nil, fmt.Errorf("%w: user id is required", models.ErrInvalidArgument)
	}

	buf := make([]byte, rawKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("failed to generate key material: %w", err)
	}
	rawKey := "sk_" + hex.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("failed to hash key: %w", err)
	}

	key := &models.APIKey{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		KeyHash:   string(hash),
		KeyPrefix: rawKey[:keyPrefixLen],
		CreatedAt: time.Now().UTC(),
	}

	if err := s.storage.SaveAPIKey(ctx, key); err != nil {
		return "", nil, err
	}

	s.logger.Info().
		Str("key_id", key.ID).
		Str("user_id", userID).
		Str("prefix", key.KeyPrefix).
		Msg("API key issued")

	return rawKey, key, nil
}

// Authenticate resolves a raw key to its owning user id
func (s *Service) Authenticate(ctx context.Context, rawKey string) (string, error) {
	rawKey = strings.TrimSpace(rawKey)
	if len(rawKey) < keyPrefixLen {
		return "", models.ErrUnauthorized
	}

	candidates, err := s.storage.GetAPIKeysByPrefix(ctx, rawKey[:keyPrefixLen])
	if err != nil {
		return "", fmt.Errorf("failed to look up api keys: %w", err)
	}

	for _, key := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(rawKey)) == nil {
			if err := s.storage.TouchAPIKey(ctx, key.ID); err != nil {
				s.logger.Warn().Err(err).Str("key_id", key.ID).Msg("Failed to update key last-used timestamp")
			}
			return key.UserID, nil
		}
	}

	return "", models.ErrUnauthorized
}
