package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

// AuthStorage implements the AuthStorage interface for Badger
type AuthStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewAuthStorage creates a new AuthStorage instance
func NewAuthStorage(db *BadgerDB, logger arbor.ILogger) interfaces.AuthStorage {
	return &AuthStorage{
		db:     db,
		logger: logger,
	}
}

// SaveAPIKey stores or updates an API key record
func (s *AuthStorage) SaveAPIKey(ctx context.Context, key *models.APIKey) error {
	if key.ID == "" {
		return fmt.Errorf("%w: api key id is required", models.ErrInvalidArgument)
	}
	if err := s.db.Store().Upsert(key.ID, key); err != nil {
		return fmt.Errorf("failed to save api key: %w", err)
	}
	return nil
}

// GetAPIKeysByPrefix returns candidate keys sharing the raw key's prefix.
// The bcrypt comparison against each candidate happens in the auth service.
func (s *AuthStorage) GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	var keys []*models.APIKey
	if err := s.db.Store().Find(&keys, badgerhold.Where("KeyPrefix").Eq(prefix)); err != nil {
		return nil, fmt.Errorf("failed to find api keys: %w", err)
	}
	return keys, nil
}

// TouchAPIKey updates the key's last-used timestamp
func (s *AuthStorage) TouchAPIKey(ctx context.Context, keyID string) error {
	var key models.APIKey
	if err := s.db.Store().Get(keyID, &key); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("api key not found: %s", keyID)
		}
		return fmt.Errorf("failed to get api key: %w", err)
	}

	now := time.Now().UTC()
	key.LastUsedAt = &now
	if err := s.db.Store().Update(keyID, &key); err != nil {
		return fmt.Errorf("failed to update api key: %w", err)
	}
	return nil
}
