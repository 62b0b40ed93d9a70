package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/reelrec/reelrec/internal/common"
	"github.com/reelrec/reelrec/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db             *BadgerDB
	item           interfaces.ItemStorage
	taste          interfaces.TasteStorage
	recommendation interfaces.RecommendationStorage
	logger         arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:             db,
		item:           NewItemStorage(db, logger),
		taste:          NewTasteStorage(db, logger),
		recommendation: NewRecommendationStorage(db, logger),
		logger:         logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// ItemStorage returns the watched/library item storage interface
func (m *Manager) ItemStorage() interfaces.ItemStorage {
	return m.item
}

// TasteStorage returns the taste snapshot storage interface
func (m *Manager) TasteStorage() interfaces.TasteStorage {
	return m.taste
}

// RecommendationStorage returns the recommendation storage interface
func (m *Manager) RecommendationStorage() interfaces.RecommendationStorage {
	return m.recommendation
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
