package recommend

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/reelrec/reelrec/internal/common"
	"github.com/reelrec/reelrec/internal/interfaces"
	"github.com/reelrec/reelrec/internal/models"
	"github.com/reelrec/reelrec/internal/services/history"
	"github.com/reelrec/reelrec/internal/services/taste"
)

// Engine produces recommendation sets from watch history and taste text.
// A process-wide mutex serializes every AI generation pass so concurrent
// per-user tasks never stack requests against the backend.
type Engine struct {
	provider   interfaces.AIProvider
	aggregator *history.Aggregator
	synth      *taste.Synthesizer
	items      interfaces.ItemStorage
	recs       interfaces.RecommendationStorage
	posters    interfaces.PosterResolver
	cfg        *common.RecommendConfig
	logger     arbor.ILogger

	mu sync.Mutex
}

// NewEngine creates a recommendation engine.
func NewEngine(
	provider interfaces.AIProvider,
	aggregator *history.Aggregator,
	synth *taste.Synthesizer,
	items interfaces.ItemStorage,
	recs interfaces.RecommendationStorage,
	posters interfaces.PosterResolver,
	cfg *common.RecommendConfig,
	logger arbor.ILogger,
) *Engine {
	return &Engine{
		provider:   provider,
		aggregator: aggregator,
		synth:      synth,
		items:      items,
		recs:       recs,
		posters:    posters,
		cfg:        cfg,
		logger:     logger,
	}
}

// Recommend runs the monthly pass for one user: generate novel candidates
// from taste and history, top up from the curated fallback list, and replace
// the user's "all" group in one step. A user with no watch history gets no
// rows and no AI call. The pass ends with a fixed courtesy pause so
// back-to-back user refreshes do not hammer the AI backend.
func (e *Engine) Recommend(ctx context.Context, userID string) ([]models.Recommendation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	raw, err := e.items.AllWatched(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load watch history for user %s: %w", userID, err)
	}

	historyText := e.aggregator.HistoryText(raw)
	if historyText == "" {
		e.logger.Info().
			Str("user_id", userID).
			Msg("No watch history, skipping recommendation pass")
		return nil, nil
	}

	tasteText, err := e.synth.Latest(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load taste for user %s: %w", userID, err)
	}

	want := e.cfg.MonthlyMovies + e.cfg.MonthlySeries
	watched := watchedSet(raw)
	seen := make(map[string]struct{})

	prompt := monthlyPrompt(tasteText, historyText, e.cfg.MonthlyMovies, e.cfg.MonthlySeries)
	selected := e.generate(ctx, userID, prompt, watched, seen, want)

	// One bounded retry with a freshly synthesized taste. A short first
	// round usually means the stored taste drifted from current history.
	if len(selected) < want {
		fresh, err := e.synth.Resynthesize(ctx, userID, historyText)
		if err != nil {
			e.logger.Warn().
				Err(err).
				Str("user_id", userID).
				Msg("Taste resynthesis failed, keeping first-round results")
		} else {
			prompt = monthlyPrompt(fresh, historyText, e.cfg.MonthlyMovies, e.cfg.MonthlySeries)
			selected = append(selected, e.generate(ctx, userID, prompt, watched, seen, want-len(selected))...)
		}
	}

	selected = append(selected, e.fallbackFill(watched, seen, want-len(selected))...)

	rows := make([]models.Recommendation, 0, len(selected))
	for _, c := range selected {
		rows = append(rows, models.Recommendation{
			UserID:     userID,
			Group:      models.GroupAll,
			Title:      c.Title,
			ExternalID: c.ExternalID,
			ImageURL:   c.ImageURL,
		})
	}

	if err := e.recs.ReplaceRecommendations(ctx, userID, models.GroupAll, rows); err != nil {
		return nil, fmt.Errorf("failed to store recommendations for user %s: %w", userID, err)
	}

	e.logger.Info().
		Str("user_id", userID).
		Int("recommendations", len(rows)).
		Int("requested", want).
		Msg("Monthly recommendations refreshed")

	if err := e.postPassDelay(ctx); err != nil {
		return rows, err
	}
	return rows, nil
}

// Discover runs an on-demand discovery pass: the same generate, regenerate
// once, and fallback-fill pipeline as the monthly pass, but results append
// to the user's discovery group rather than replacing it, and extra
// free-text preferences (genres, moods) fold into the prompt. When even the
// fallback fill yields nothing the raw curated list is returned unpersisted
// so the caller always has something to show.
func (e *Engine) Discover(ctx context.Context, userID, extra string) ([]models.Recommendation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	raw, err := e.items.AllWatched(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load watch history for user %s: %w", userID, err)
	}

	tasteText, err := e.synth.Latest(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load taste for user %s: %w", userID, err)
	}

	want := e.cfg.DiscoveryMovies + e.cfg.DiscoverySeries
	historyText := e.aggregator.HistoryText(raw)
	watched := watchedSet(raw)
	seen := make(map[string]struct{})

	prompt := discoveryPrompt(tasteText, historyText, extra, e.cfg.DiscoveryMovies, e.cfg.DiscoverySeries)
	selected := e.generate(ctx, userID, prompt, watched, seen, want)

	if len(selected) < want {
		fresh, err := e.synth.Resynthesize(ctx, userID, historyText)
		if err != nil {
			e.logger.Warn().
				Err(err).
				Str("user_id", userID).
				Msg("Taste resynthesis failed, keeping first-round results")
		} else {
			prompt = discoveryPrompt(fresh, historyText, extra, e.cfg.DiscoveryMovies, e.cfg.DiscoverySeries)
			selected = append(selected, e.generate(ctx, userID, prompt, watched, seen, want-len(selected))...)
		}
	}

	selected = append(selected, e.fallbackFill(watched, seen, want-len(selected))...)

	if len(selected) == 0 {
		e.logger.Warn().
			Str("user_id", userID).
			Msg("Discovery pass produced nothing, serving fallback list")
		return e.fallbackRows(userID), nil
	}

	rows := make([]models.Recommendation, 0, len(selected))
	for _, c := range selected {
		rows = append(rows, models.Recommendation{
			UserID:     userID,
			Group:      models.GroupDiscovery,
			Title:      c.Title,
			ExternalID: c.ExternalID,
			ImageURL:   c.ImageURL,
		})
	}

	if err := e.recs.ReplaceRecommendations(ctx, userID, models.GroupDiscovery, rows); err != nil {
		return nil, fmt.Errorf("failed to store discovery recommendations for user %s: %w", userID, err)
	}

	e.logger.Info().
		Str("user_id", userID).
		Int("recommendations", len(rows)).
		Msg("Discovery recommendations generated")

	return rows, nil
}

// Search answers a free-text query against the user's taste profile.
// Results are returned directly and never persisted. Backend or parse
// failures degrade to an empty list.
func (e *Engine) Search(ctx context.Context, userID, query string) ([]Candidate, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tasteText, err := e.synth.Latest(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load taste for user %s: %w", userID, err)
	}

	resp, err := e.provider.GenerateContent(ctx, &interfaces.ContentRequest{
		Messages: []interfaces.Message{
			{Role: "user", Content: searchPrompt(tasteText, query)},
		},
	})
	if err != nil {
		e.logger.Warn().
			Err(err).
			Str("user_id", userID).
			Msg("Search generation failed")
		return []Candidate{}, nil
	}

	candidates, strategy := ParseCandidates(resp.Text)
	e.logger.Debug().
		Str("user_id", userID).
		Str("strategy", strategy).
		Int("results", len(candidates)).
		Msg("Search results parsed")

	return candidates, nil
}

// generate runs one AI pass and returns up to limit novel candidates with
// posters resolved. Backend failure or unparseable output yields an empty
// slice, never an error; the caller decides how to compensate.
func (e *Engine) generate(ctx context.Context, userID, prompt string, watched, seen map[string]struct{}, limit int) []Candidate {
	if limit <= 0 {
		return nil
	}

	resp, err := e.provider.GenerateContent(ctx, &interfaces.ContentRequest{
		Messages: []interfaces.Message{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		e.logger.Warn().
			Err(err).
			Str("user_id", userID).
			Msg("Recommendation generation failed")
		return nil
	}

	candidates, strategy := ParseCandidates(resp.Text)
	if len(candidates) == 0 {
		e.logger.Warn().
			Str("user_id", userID).
			Str("raw", resp.Text).
			Msg("No candidates recovered from AI output")
		return nil
	}
	e.logger.Debug().
		Str("user_id", userID).
		Str("strategy", strategy).
		Int("candidates", len(candidates)).
		Msg("Candidates parsed")

	selected := filterNovel(candidates, watched, seen, limit)
	for i := range selected {
		// Resolve posters ourselves; the model's image_url is untrusted and
		// only kept when the catalog has nothing for the id.
		if url := e.resolvePoster(ctx, selected[i].ExternalID); url != "" {
			selected[i].ImageURL = url
		}
	}
	return selected
}

// filterNovel drops candidates missing a title or id, anything already
// watched, and duplicates within the pass, keeping at most limit entries.
// Kept ids are recorded in seen, so re-filtering a kept set against the same
// watched set (with a fresh seen map) returns it unchanged.
func filterNovel(candidates []Candidate, watched, seen map[string]struct{}, limit int) []Candidate {
	selected := make([]Candidate, 0, limit)
	for _, c := range candidates {
		if len(selected) == limit {
			break
		}
		if c.ExternalID == "" || c.Title == "" {
			continue
		}
		if _, ok := watched[c.ExternalID]; ok {
			continue
		}
		if _, ok := seen[c.ExternalID]; ok {
			continue
		}
		seen[c.ExternalID] = struct{}{}
		selected = append(selected, c)
	}
	return selected
}

// fallbackFill draws up to limit entries from the curated fallback list,
// subject to the same novelty filter as generated candidates.
func (e *Engine) fallbackFill(watched, seen map[string]struct{}, limit int) []Candidate {
	if limit <= 0 {
		return nil
	}

	fill := make([]Candidate, 0, limit)
	for _, f := range e.cfg.Fallback {
		if len(fill) == limit {
			break
		}
		if f.ExternalID == "" {
			continue
		}
		if _, ok := watched[f.ExternalID]; ok {
			continue
		}
		if _, ok := seen[f.ExternalID]; ok {
			continue
		}
		seen[f.ExternalID] = struct{}{}
		fill = append(fill, Candidate{
			Title:      f.Title,
			ExternalID: f.ExternalID,
			ImageURL:   f.ImageURL,
		})
	}
	return fill
}

func (e *Engine) fallbackRows(userID string) []models.Recommendation {
	rows := make([]models.Recommendation, 0, len(e.cfg.Fallback))
	for _, f := range e.cfg.Fallback {
		rows = append(rows, models.Recommendation{
			UserID:     userID,
			Group:      models.GroupDiscovery,
			Title:      f.Title,
			ExternalID: f.ExternalID,
			ImageURL:   f.ImageURL,
		})
	}
	return rows
}

// resolvePoster looks up a poster URL for the given id. A missing poster or
// resolver failure produces an empty URL, not an error.
func (e *Engine) resolvePoster(ctx context.Context, externalID string) string {
	if e.posters == nil {
		return ""
	}
	url, err := e.posters.ResolvePoster(ctx, externalID)
	if err != nil {
		e.logger.Debug().
			Err(err).
			Str("external_id", externalID).
			Msg("Poster resolution failed")
		return ""
	}
	return url
}

// postPassDelay pauses after a generation pass, honoring cancellation.
func (e *Engine) postPassDelay(ctx context.Context) error {
	delay := common.Duration(e.cfg.PostPassDelay)
	if delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func watchedSet(items []models.WatchedItem) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item.ExternalID] = struct{}{}
	}
	return set
}

func monthlyPrompt(tasteText, historyText string, movies, series int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Based on this user's taste profile and watch history, recommend exactly %d movies and %d TV series the user has not seen.\n\n", movies, series)
	fmt.Fprintf(&b, "User taste profile:\n%s\n\n", tasteText)
	fmt.Fprintf(&b, "Watch history:\n%s\n", historyText)
	b.WriteString(promptFooter)
	return b.String()
}

func discoveryPrompt(tasteText, historyText, extra string, movies, series int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Recommend exactly %d movies and %d TV series for this user to discover, distinct from anything in their watch history.\n\n", movies, series)
	if extra = strings.TrimSpace(extra); extra != "" {
		fmt.Fprintf(&b, "Additional preferences to honor: %s\n\n", extra)
	}
	fmt.Fprintf(&b, "User taste profile:\n%s\n\n", tasteText)
	fmt.Fprintf(&b, "Watch history:\n%s\n", historyText)
	b.WriteString(promptFooter)
	return b.String()
}

func searchPrompt(tasteText, query string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Find movies or TV series matching this request: %s\n\n", query)
	fmt.Fprintf(&b, "Rank results by fit with the user's taste profile:\n%s\n", tasteText)
	b.WriteString(promptFooter)
	return b.String()
}

const promptFooter = "\nRespond with only a JSON array. Each element must be an object with keys " +
	"'title', 'external_id' (IMDB ID, e.g. tt0111161), and 'image_url' (empty string if unknown). " +
	"No markdown, no commentary."
