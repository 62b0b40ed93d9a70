package interfaces

import (
	"context"

	"github.com/reelrec/reelrec/internal/models"
)

// ItemStorage persists per-user watch history and the shared library catalog.
// Both Add operations are idempotent: re-inserting an existing
// (external id, resolution) row is silently ignored.
type ItemStorage interface {
	AddWatched(ctx context.Context, item *models.WatchedItem) error
	AddLibraryItem(ctx context.Context, item *models.LibraryItem) error

	// AllWatched returns the user's watch history, most recent first.
	AllWatched(ctx context.Context, userID string) ([]models.WatchedItem, error)

	// AllLibraryItems returns the full library catalog, most recent first.
	AllLibraryItems(ctx context.Context) ([]models.LibraryItem, error)
}

// TasteStorage persists free-text taste snapshots. Snapshots accumulate;
// selection policy (drift guard) lives in the taste service, not here.
type TasteStorage interface {
	AddTaste(ctx context.Context, userID, text string) error

	// LatestTaste returns the most recent snapshot text for the user.
	// The bool reports whether any snapshot exists.
	LatestTaste(ctx context.Context, userID string) (string, bool, error)
}

// RecommendationStorage persists recommendation rows per user and group.
type RecommendationStorage interface {
	// ReplaceRecommendations performs a prune-then-insert for GroupAll and
	// an append-only insert for GroupDiscovery. Deletion and insertion are
	// one logical step from the caller's point of view.
	ReplaceRecommendations(ctx context.Context, userID, group string, items []models.Recommendation) error

	Recommendations(ctx context.Context, userID, group string) ([]models.Recommendation, error)
}

// StorageManager aggregates the typed stores behind a single connection.
type StorageManager interface {
	ItemStorage() ItemStorage
	TasteStorage() TasteStorage
	RecommendationStorage() RecommendationStorage
	Close() error
}
