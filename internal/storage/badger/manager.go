package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db     *BadgerDB
	jobs   interfaces.JobStorage
	auth   interfaces.AuthStorage
	queue  interfaces.QueueStorage
	logger arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.Config) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:     db,
		jobs:   NewJobStorage(db, logger),
		auth:   NewAuthStorage(db, logger),
		queue:  NewQueueStorage(db, logger, config.GetVisibilityTimeout(), config.Queue.MaxReceive),
		logger: logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// Jobs returns the scrape job storage interface
func (m *Manager) Jobs() interfaces.JobStorage {
	return m.jobs
}

// Auth returns the API key storage interface
func (m *Manager) Auth() interfaces.AuthStorage {
	return m.auth
}

// Queue returns the task queue storage interface
func (m *Manager) Queue() interfaces.QueueStorage {
	return m.queue
}

// Close closes the underlying database connection
func (m *Manager) Close() error {
	m.logger.Debug().Msg("Closing Badger storage manager")
	return m.db.Close()
}
