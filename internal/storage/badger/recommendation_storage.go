package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/reelrec/reelrec/internal/interfaces"
	"github.com/reelrec/reelrec/internal/models"
)

// RecommendationStorage implements the RecommendationStorage interface for Badger
type RecommendationStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRecommendationStorage creates a new RecommendationStorage instance
func NewRecommendationStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RecommendationStorage {
	return &RecommendationStorage{
		db:     db,
		logger: logger,
	}
}

// ReplaceRecommendations persists a batch of recommendations. For GroupAll
// the user's prior rows are pruned first so only the latest batch remains;
// GroupDiscovery rows accumulate and are never deleted here.
func (s *RecommendationStorage) ReplaceRecommendations(ctx context.Context, userID, group string, items []models.Recommendation) error {
	if userID == "" || group == "" {
		return fmt.Errorf("recommendations require user_id and group")
	}

	if group == models.GroupAll {
		query := badgerhold.Where("UserID").Eq(userID).Index("UserID").And("Group").Eq(group)
		if err := s.db.Store().DeleteMatching(&models.Recommendation{}, query); err != nil {
			return fmt.Errorf("failed to prune prior recommendations: %w", err)
		}
	}

	now := time.Now()
	for i := range items {
		rec := items[i]
		rec.UserID = userID
		rec.Group = group
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		if err := s.db.Store().Insert(rec.ID, &rec); err != nil {
			return fmt.Errorf("failed to insert recommendation %q: %w", rec.Title, err)
		}
	}

	s.logger.Debug().
		Str("user_id", userID).
		Str("group", group).
		Int("count", len(items)).
		Msg("Recommendation batch stored")
	return nil
}

// Recommendations returns the stored rows for a user and group, most recent
// first.
func (s *RecommendationStorage) Recommendations(ctx context.Context, userID, group string) ([]models.Recommendation, error) {
	var recs []models.Recommendation
	query := badgerhold.Where("UserID").Eq(userID).Index("UserID").And("Group").Eq(group)
	if err := s.db.Store().Find(&recs, query); err != nil {
		return nil, fmt.Errorf("failed to list recommendations: %w", err)
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
	return recs, nil
}
