package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelrec/reelrec/internal/common"
	"github.com/reelrec/reelrec/internal/interfaces"
	"github.com/reelrec/reelrec/internal/models"
)

func newTestManager(t *testing.T) interfaces.StorageManager {
	t.Helper()

	manager, err := NewManager(common.GetLogger(), &common.BadgerConfig{
		Path: t.TempDir() + "/db",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, manager.Close())
	})
	return manager
}

func TestAddWatched_IdempotentOnCompositeKey(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	items := manager.ItemStorage()

	item := &models.WatchedItem{
		UserID:     "alice",
		Title:      "Heat",
		ExternalID: "tt0113277",
		UserRating: 8.5,
		Resolution: "1080p",
	}
	require.NoError(t, items.AddWatched(ctx, item))
	require.NoError(t, items.AddWatched(ctx, &models.WatchedItem{
		UserID:     "alice",
		Title:      "Heat",
		ExternalID: "tt0113277",
		Resolution: "1080p",
	}))

	watched, err := items.AllWatched(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, watched, 1)
	assert.Equal(t, 8.5, watched[0].UserRating)
}

func TestAddWatched_DistinctResolutionsKept(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	items := manager.ItemStorage()

	for _, res := range []string{"1080p", "4k"} {
		require.NoError(t, items.AddWatched(ctx, &models.WatchedItem{
			UserID:     "alice",
			Title:      "Heat",
			ExternalID: "tt0113277",
			Resolution: res,
		}))
	}

	watched, err := items.AllWatched(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, watched, 2)
}

func TestAddWatched_RequiresUserAndExternalID(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	err := manager.ItemStorage().AddWatched(ctx, &models.WatchedItem{Title: "Heat"})
	assert.Error(t, err)
}

func TestAllWatched_ScopedToUser(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	items := manager.ItemStorage()

	require.NoError(t, items.AddWatched(ctx, &models.WatchedItem{
		UserID: "alice", Title: "Heat", ExternalID: "tt0113277",
	}))
	require.NoError(t, items.AddWatched(ctx, &models.WatchedItem{
		UserID: "bob", Title: "Alien", ExternalID: "tt0078748",
	}))

	watched, err := items.AllWatched(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, watched, 1)
	assert.Equal(t, "tt0113277", watched[0].ExternalID)
}

func TestAllWatched_MostRecentFirst(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	items := manager.ItemStorage()

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"tt0000001", "tt0000002", "tt0000003"} {
		require.NoError(t, items.AddWatched(ctx, &models.WatchedItem{
			UserID:     "alice",
			Title:      id,
			ExternalID: id,
			AddedAt:    base.Add(time.Duration(i) * time.Minute),
		}))
	}

	watched, err := items.AllWatched(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, watched, 3)
	assert.Equal(t, "tt0000003", watched[0].ExternalID)
	assert.Equal(t, "tt0000001", watched[2].ExternalID)
}

func TestLibraryItems_SharedAcrossUsers(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	items := manager.ItemStorage()

	require.NoError(t, items.AddLibraryItem(ctx, &models.LibraryItem{
		Title: "Heat", ExternalID: "tt0113277", Resolution: "1080p",
	}))
	require.NoError(t, items.AddLibraryItem(ctx, &models.LibraryItem{
		Title: "Heat", ExternalID: "tt0113277", Resolution: "1080p",
	}))

	library, err := items.AllLibraryItems(ctx)
	require.NoError(t, err)
	assert.Len(t, library, 1)
}

func TestTasteStorage_LatestWinsByTimestamp(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	tastes := manager.TasteStorage()

	_, ok, err := tastes.LatestTaste(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tastes.AddTaste(ctx, "alice", "first taste"))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, tastes.AddTaste(ctx, "alice", "second taste"))

	text, ok, err := tastes.LatestTaste(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second taste", text)
}

func TestTasteStorage_PerUserIsolation(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	tastes := manager.TasteStorage()

	require.NoError(t, tastes.AddTaste(ctx, "alice", "crime thrillers"))

	_, ok, err := tastes.LatestTaste(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReplaceRecommendations_AllGroupPrunes(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	recs := manager.RecommendationStorage()

	first := []models.Recommendation{
		{Title: "Collateral", ExternalID: "tt0369339"},
		{Title: "Thief", ExternalID: "tt0083190"},
	}
	require.NoError(t, recs.ReplaceRecommendations(ctx, "alice", models.GroupAll, first))

	second := []models.Recommendation{
		{Title: "Ronin", ExternalID: "tt0122690"},
	}
	require.NoError(t, recs.ReplaceRecommendations(ctx, "alice", models.GroupAll, second))

	stored, err := recs.Recommendations(ctx, "alice", models.GroupAll)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "tt0122690", stored[0].ExternalID)
}

func TestReplaceRecommendations_DiscoveryAppends(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	recs := manager.RecommendationStorage()

	require.NoError(t, recs.ReplaceRecommendations(ctx, "alice", models.GroupDiscovery, []models.Recommendation{
		{Title: "Collateral", ExternalID: "tt0369339"},
	}))
	require.NoError(t, recs.ReplaceRecommendations(ctx, "alice", models.GroupDiscovery, []models.Recommendation{
		{Title: "Thief", ExternalID: "tt0083190"},
	}))

	stored, err := recs.Recommendations(ctx, "alice", models.GroupDiscovery)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestReplaceRecommendations_GroupsIndependent(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	recs := manager.RecommendationStorage()

	require.NoError(t, recs.ReplaceRecommendations(ctx, "alice", models.GroupDiscovery, []models.Recommendation{
		{Title: "Collateral", ExternalID: "tt0369339"},
	}))
	require.NoError(t, recs.ReplaceRecommendations(ctx, "alice", models.GroupAll, []models.Recommendation{
		{Title: "Ronin", ExternalID: "tt0122690"},
	}))

	discovery, err := recs.Recommendations(ctx, "alice", models.GroupDiscovery)
	require.NoError(t, err)
	assert.Len(t, discovery, 1)
}
