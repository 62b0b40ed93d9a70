package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/reelrec/reelrec/internal/interfaces"
	"github.com/reelrec/reelrec/internal/models"
)

// ItemStorage implements the ItemStorage interface for Badger
type ItemStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewItemStorage creates a new ItemStorage instance
func NewItemStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ItemStorage {
	return &ItemStorage{
		db:     db,
		logger: logger,
	}
}

// AddWatched inserts a watch-history row. The composite key makes the insert
// idempotent: an existing (user, external id, resolution) row is left
// untouched and no error is returned.
func (s *ItemStorage) AddWatched(ctx context.Context, item *models.WatchedItem) error {
	if item.UserID == "" || item.ExternalID == "" {
		return fmt.Errorf("watched item requires user_id and external_id")
	}
	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now()
	}
	item.ID = item.Key()

	if err := s.db.Store().Insert(item.ID, item); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			s.logger.Debug().
				Str("user_id", item.UserID).
				Str("external_id", item.ExternalID).
				Str("resolution", item.Resolution).
				Msg("Watched item already stored, ignoring duplicate")
			return nil
		}
		return fmt.Errorf("failed to add watched item: %w", err)
	}
	return nil
}

// AddLibraryItem inserts a library row, ignoring duplicates on
// (external id, resolution).
func (s *ItemStorage) AddLibraryItem(ctx context.Context, item *models.LibraryItem) error {
	if item.ExternalID == "" {
		return fmt.Errorf("library item requires external_id")
	}
	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now()
	}
	item.ID = item.Key()

	if err := s.db.Store().Insert(item.ID, item); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return nil
		}
		return fmt.Errorf("failed to add library item: %w", err)
	}
	return nil
}

// AllWatched returns the user's watch history ordered most recent first.
func (s *ItemStorage) AllWatched(ctx context.Context, userID string) ([]models.WatchedItem, error) {
	var items []models.WatchedItem
	if err := s.db.Store().Find(&items, badgerhold.Where("UserID").Eq(userID).Index("UserID")); err != nil {
		return nil, fmt.Errorf("failed to list watched items: %w", err)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].AddedAt.After(items[j].AddedAt)
	})
	return items, nil
}

// AllLibraryItems returns the library catalog ordered most recent first.
func (s *ItemStorage) AllLibraryItems(ctx context.Context) ([]models.LibraryItem, error) {
	var items []models.LibraryItem
	if err := s.db.Store().Find(&items, badgerhold.Where("ID").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to list library items: %w", err)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].AddedAt.After(items[j].AddedAt)
	})
	return items, nil
}
