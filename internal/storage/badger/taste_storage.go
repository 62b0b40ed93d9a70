package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/reelrec/reelrec/internal/interfaces"
	"github.com/reelrec/reelrec/internal/models"
)

// TasteStorage implements the TasteStorage interface for Badger
type TasteStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTasteStorage creates a new TasteStorage instance
func NewTasteStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TasteStorage {
	return &TasteStorage{
		db:     db,
		logger: logger,
	}
}

// AddTaste appends a new taste snapshot for the user. Snapshots are never
// overwritten; the latest by UpdatedAt wins on read.
func (s *TasteStorage) AddTaste(ctx context.Context, userID, text string) error {
	if userID == "" {
		return fmt.Errorf("taste snapshot requires user_id")
	}

	snapshot := &models.TasteSnapshot{
		ID:        uuid.NewString(),
		UserID:    userID,
		Text:      text,
		UpdatedAt: time.Now(),
	}

	if err := s.db.Store().Insert(snapshot.ID, snapshot); err != nil {
		return fmt.Errorf("failed to add taste snapshot: %w", err)
	}

	s.logger.Debug().
		Str("user_id", userID).
		Int("text_length", len(text)).
		Msg("Taste snapshot stored")
	return nil
}

// LatestTaste returns the most recent snapshot text for the user.
func (s *TasteStorage) LatestTaste(ctx context.Context, userID string) (string, bool, error) {
	var snapshots []models.TasteSnapshot
	query := badgerhold.Where("UserID").Eq(userID).Index("UserID").SortBy("UpdatedAt").Reverse().Limit(1)
	if err := s.db.Store().Find(&snapshots, query); err != nil {
		return "", false, fmt.Errorf("failed to query taste snapshots: %w", err)
	}
	if len(snapshots) == 0 {
		return "", false, nil
	}
	return snapshots[0].Text, true, nil
}
