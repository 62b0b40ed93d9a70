package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelrec/reelrec/internal/common"
	"github.com/reelrec/reelrec/internal/interfaces"
	"github.com/reelrec/reelrec/internal/models"
	"github.com/reelrec/reelrec/internal/services/history"
	"github.com/reelrec/reelrec/internal/services/recommend"
	"github.com/reelrec/reelrec/internal/services/taste"
)

type fakeDirectory struct {
	users []string
	delay time.Duration
	err   error
}

func (f *fakeDirectory) ListUsers(ctx context.Context) ([]string, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.users, f.err
}

type fakeHistoryProvider struct {
	entries []models.HistoryEntry
	calls   int
}

func (f *fakeHistoryProvider) GetWatchHistory(ctx context.Context, userID string) ([]models.HistoryEntry, error) {
	f.calls++
	return f.entries, nil
}

type memItemStore struct {
	watched map[string][]models.WatchedItem
}

func newMemItemStore() *memItemStore {
	return &memItemStore{watched: make(map[string][]models.WatchedItem)}
}

func (m *memItemStore) AddWatched(ctx context.Context, item *models.WatchedItem) error {
	for _, existing := range m.watched[item.UserID] {
		if existing.ExternalID == item.ExternalID && existing.Resolution == item.Resolution {
			return nil
		}
	}
	m.watched[item.UserID] = append(m.watched[item.UserID], *item)
	return nil
}

func (m *memItemStore) AddLibraryItem(ctx context.Context, item *models.LibraryItem) error {
	return nil
}

func (m *memItemStore) AllWatched(ctx context.Context, userID string) ([]models.WatchedItem, error) {
	return m.watched[userID], nil
}

func (m *memItemStore) AllLibraryItems(ctx context.Context) ([]models.LibraryItem, error) {
	return nil, nil
}

type memTasteStore struct {
	texts map[string][]string
}

func newMemTasteStore() *memTasteStore {
	return &memTasteStore{texts: make(map[string][]string)}
}

func (m *memTasteStore) AddTaste(ctx context.Context, userID, text string) error {
	m.texts[userID] = append(m.texts[userID], text)
	return nil
}

func (m *memTasteStore) LatestTaste(ctx context.Context, userID string) (string, bool, error) {
	texts := m.texts[userID]
	if len(texts) == 0 {
		return "", false, nil
	}
	return texts[len(texts)-1], true, nil
}

type memRecStore struct {
	replaces int
}

func (m *memRecStore) ReplaceRecommendations(ctx context.Context, userID, group string, items []models.Recommendation) error {
	if group == models.GroupAll {
		m.replaces++
	}
	return nil
}

func (m *memRecStore) Recommendations(ctx context.Context, userID, group string) ([]models.Recommendation, error) {
	return nil, nil
}

type cannedProvider struct {
	text string
}

func (p *cannedProvider) GenerateContent(ctx context.Context, req *interfaces.ContentRequest) (*interfaces.ContentResponse, error) {
	return &interfaces.ContentResponse{Text: p.text}, nil
}

func (p *cannedProvider) Close() error { return nil }

type coordinatorFixture struct {
	coordinator *Coordinator
	directory   *fakeDirectory
	provider    *fakeHistoryProvider
	tastes      *memTasteStore
	recs        *memRecStore
	now         time.Time
}

func (f *coordinatorFixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

// Five non-overlapping candidates so the monthly pass meets its quota
// without a regeneration round.
const cannedCandidates = `[
	{"title":"Collateral","external_id":"tt0369339"},
	{"title":"Thief","external_id":"tt0083190"},
	{"title":"Ronin","external_id":"tt0122690"},
	{"title":"Drive","external_id":"tt0780504"},
	{"title":"Nightcrawler","external_id":"tt2872718"}
]`

func newCoordinatorFixture(t *testing.T) *coordinatorFixture {
	t.Helper()

	cfg := common.NewDefaultConfig()
	cfg.Recommend.PostPassDelay = "0s"

	logger := common.GetLogger()
	items := newMemItemStore()
	tastes := newMemTasteStore()
	recs := &memRecStore{}
	dir := &fakeDirectory{users: []string{"alice"}}
	hp := &fakeHistoryProvider{entries: []models.HistoryEntry{
		{Title: "Heat", ExternalID: "tt0113277", UserRating: 8.5},
	}}
	ai := &cannedProvider{text: cannedCandidates}

	agg, err := history.NewAggregator(cfg.History.ItemsPerGroup, logger)
	require.NoError(t, err)

	historySvc := history.NewService(hp, items, logger)
	synth := taste.NewSynthesizer(ai, tastes, logger)
	engine := recommend.NewEngine(ai, agg, synth, items, recs, nil, &cfg.Recommend, logger)

	c := NewCoordinator(dir, items, historySvc, agg, synth, engine, cfg, logger)

	f := &coordinatorFixture{
		coordinator: c,
		directory:   dir,
		provider:    hp,
		tastes:      tastes,
		recs:        recs,
		now:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	c.clock = func() time.Time { return f.now }
	return f
}

func TestPollUsers_NewUserRunsFullPipeline(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()

	f.coordinator.PollUsers(ctx)

	assert.Equal(t, 1, f.provider.calls)
	assert.Len(t, f.tastes.texts["alice"], 1)
	assert.Equal(t, 1, f.recs.replaces)
}

func TestPollUsers_KnownUserNotRerun(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()

	f.coordinator.PollUsers(ctx)
	f.coordinator.PollUsers(ctx)
	f.coordinator.PollUsers(ctx)

	assert.Equal(t, 1, f.provider.calls)
	assert.Equal(t, 1, f.recs.replaces)
}

func TestPollUsers_DirectoryFailureIsNoOp(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.directory.err = errors.New("directory down")

	f.coordinator.PollUsers(context.Background())

	assert.Zero(t, f.provider.calls)
	assert.Zero(t, f.recs.replaces)
}

func TestSweep_NothingDueWithinCadence(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()

	f.coordinator.PollUsers(ctx)

	// Many sweeps inside every cadence window run nothing.
	for i := 0; i < 12; i++ {
		f.advance(time.Hour)
		f.coordinator.Sweep(ctx)
	}

	assert.Equal(t, 1, f.provider.calls)
	assert.Len(t, f.tastes.texts["alice"], 1)
	assert.Equal(t, 1, f.recs.replaces)
}

func TestSweep_TasksRunOnTheirOwnCadence(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()

	f.coordinator.PollUsers(ctx)

	// Past the daily cadence only the history task reruns.
	f.advance(25 * time.Hour)
	f.coordinator.Sweep(ctx)
	assert.Equal(t, 2, f.provider.calls)
	assert.Len(t, f.tastes.texts["alice"], 1)
	assert.Equal(t, 1, f.recs.replaces)

	// Past the weekly cadence the taste task joins in.
	f.advance(7 * 24 * time.Hour)
	f.coordinator.Sweep(ctx)
	assert.Equal(t, 3, f.provider.calls)
	assert.Len(t, f.tastes.texts["alice"], 2)
	assert.Equal(t, 1, f.recs.replaces)

	// Past the monthly cadence all three run.
	f.advance(31 * 24 * time.Hour)
	f.coordinator.Sweep(ctx)
	assert.Equal(t, 4, f.provider.calls)
	assert.Len(t, f.tastes.texts["alice"], 3)
	assert.Equal(t, 2, f.recs.replaces)
}

func TestStop_WaitsForStartupPoll(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.directory.delay = 50 * time.Millisecond

	require.NoError(t, f.coordinator.Start(context.Background()))
	f.coordinator.Stop()

	// Stop must not return while the startup poll is still onboarding;
	// otherwise the stores could be closed under an in-flight task.
	assert.Equal(t, 1, f.provider.calls)
	assert.Len(t, f.tastes.texts["alice"], 1)
	assert.Equal(t, 1, f.recs.replaces)
}

func TestSweep_UnknownUserIgnored(t *testing.T) {
	f := newCoordinatorFixture(t)

	// No poll has run, so the sweep has no users to consider.
	f.coordinator.Sweep(context.Background())

	assert.Zero(t, f.provider.calls)
}
