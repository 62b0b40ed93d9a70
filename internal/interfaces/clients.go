package interfaces

import (
	"context"

	"github.com/reelrec/reelrec/internal/models"
)

// HistoryProvider fetches a user's watch history from the media server.
// A provider failure means zero new items for this cycle, never a fatal
// error for the caller.
type HistoryProvider interface {
	GetWatchHistory(ctx context.Context, userID string) ([]models.HistoryEntry, error)
}

// PosterResolver maps an external catalog id to a poster image URL.
// An empty URL means no poster was found; that is not an error.
type PosterResolver interface {
	ResolvePoster(ctx context.Context, externalID string) (string, error)
}

// UserDirectory lists the users known to the auth layer. An empty result on
// transient failure is treated as "no due work this tick".
type UserDirectory interface {
	ListUsers(ctx context.Context) ([]string, error)
}
