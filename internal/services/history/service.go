package history

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/reelrec/reelrec/internal/interfaces"
	"github.com/reelrec/reelrec/internal/models"
)

// Service ingests watch history from the media-server provider into the
// item store. Ingestion is append-only and idempotent: re-running a sync
// never duplicates or mutates existing rows.
type Service struct {
	provider interfaces.HistoryProvider
	items    interfaces.ItemStorage
	logger   arbor.ILogger
}

// NewService creates a history ingestion service.
func NewService(provider interfaces.HistoryProvider, items interfaces.ItemStorage, logger arbor.ILogger) *Service {
	return &Service{
		provider: provider,
		items:    items,
		logger:   logger,
	}
}

// Sync pulls the user's watch history from the provider and persists every
// entry, flattening nested episodes. A provider failure means zero new items
// for this cycle and is reported to the caller for logging, not escalation.
func (s *Service) Sync(ctx context.Context, userID string) error {
	entries, err := s.provider.GetWatchHistory(ctx, userID)
	if err != nil {
		return fmt.Errorf("history provider unavailable for user %s: %w", userID, err)
	}

	stored := 0
	for _, entry := range entries {
		if err := s.storeEntry(ctx, userID, entry); err != nil {
			return err
		}
		stored++

		for _, episode := range entry.Episodes {
			if err := s.storeEntry(ctx, userID, episode); err != nil {
				return err
			}
			stored++
		}
	}

	s.logger.Info().
		Str("user_id", userID).
		Int("entries", stored).
		Msg("Watch history synced")
	return nil
}

func (s *Service) storeEntry(ctx context.Context, userID string, entry models.HistoryEntry) error {
	// Items without an external id cannot be deduplicated or matched
	// against recommendations; skip them the way ingestion always has.
	if entry.ExternalID == "" {
		s.logger.Debug().
			Str("user_id", userID).
			Str("title", entry.Title).
			Msg("Skipping history entry without external id")
		return nil
	}

	watched := &models.WatchedItem{
		UserID:     userID,
		Title:      entry.Title,
		ExternalID: entry.ExternalID,
		UserRating: entry.UserRating,
		Resolution: entry.Resolution,
	}
	if err := s.items.AddWatched(ctx, watched); err != nil {
		return fmt.Errorf("failed to store watched item %q: %w", entry.Title, err)
	}

	library := &models.LibraryItem{
		Title:      entry.Title,
		ExternalID: entry.ExternalID,
		UserRating: entry.UserRating,
		Resolution: entry.Resolution,
	}
	if err := s.items.AddLibraryItem(ctx, library); err != nil {
		return fmt.Errorf("failed to store library item %q: %w", entry.Title, err)
	}

	return nil
}
