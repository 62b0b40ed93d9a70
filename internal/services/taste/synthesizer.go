package taste

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/reelrec/reelrec/internal/interfaces"
)

// NoHistorySentinel is returned instead of calling the AI backend when a
// user has no watch history to analyze.
const NoHistorySentinel = "No watch history available to determine user taste."

const synthesizeInstruction = "Analyze the following watch history and provide a detailed, authentic description of the user's taste in films and TV shows. " +
	"Include preferred genres, styles, directors, and unique characteristics. Return only the detailed description."

// Synthesizer derives free-text taste descriptions from watch history.
type Synthesizer struct {
	provider interfaces.AIProvider
	tastes   interfaces.TasteStorage
	logger   arbor.ILogger
}

// NewSynthesizer creates a taste synthesizer.
func NewSynthesizer(provider interfaces.AIProvider, tastes interfaces.TasteStorage, logger arbor.ILogger) *Synthesizer {
	return &Synthesizer{
		provider: provider,
		tastes:   tastes,
		logger:   logger,
	}
}

// Synthesize derives a taste description from the given history text. Empty
// history returns the fixed sentinel without touching the AI backend.
func (s *Synthesizer) Synthesize(ctx context.Context, historyText string) (string, error) {
	if strings.TrimSpace(historyText) == "" {
		return NoHistorySentinel, nil
	}

	resp, err := s.provider.GenerateContent(ctx, &interfaces.ContentRequest{
		Messages: []interfaces.Message{
			{Role: "user", Content: historyText},
		},
		SystemInstruction: synthesizeInstruction,
		MaxTokens:         512,
	})
	if err != nil {
		return "", fmt.Errorf("taste synthesis failed: %w", err)
	}

	return strings.TrimSpace(resp.Text), nil
}

// ChooseTaste applies the drift guard: the candidate is adopted unless a
// previous taste exists and the candidate is more verbose than it by
// whitespace-delimited word count, in which case the previous text is kept.
// Ties favor the candidate. The guard keeps refreshed taste descriptions
// from ballooning in verbosity across runs.
//
// This is a crude anti-verbosity heuristic, not a semantic comparison; a
// better regression metric (embedding similarity) would change which
// snapshots win across refreshes and is deliberately not applied here.
func ChooseTaste(candidate, previous string) string {
	if previous == "" {
		return candidate
	}
	if len(strings.Fields(candidate)) > len(strings.Fields(previous)) {
		return previous
	}
	return candidate
}

// Refresh runs the full weekly taste task: synthesize a candidate from the
// supplied history text, guard it against the stored taste, and persist the
// winner. Returns the chosen text.
func (s *Synthesizer) Refresh(ctx context.Context, userID, historyText string) (string, error) {
	candidate, err := s.Synthesize(ctx, historyText)
	if err != nil {
		return "", err
	}

	previous, ok, err := s.tastes.LatestTaste(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to read latest taste for user %s: %w", userID, err)
	}

	chosen := candidate
	if ok {
		chosen = ChooseTaste(candidate, previous)
	}

	if err := s.tastes.AddTaste(ctx, userID, chosen); err != nil {
		return "", fmt.Errorf("failed to persist taste for user %s: %w", userID, err)
	}

	s.logger.Info().
		Str("user_id", userID).
		Int("words", len(strings.Fields(chosen))).
		Bool("kept_previous", chosen != candidate).
		Msg("Taste refreshed")

	return chosen, nil
}

// Resynthesize forces a fresh taste synthesis and persists it without the
// drift guard. Used when the recommendation engine suspects the stored
// taste has gone stale and needs a clean read before retrying.
func (s *Synthesizer) Resynthesize(ctx context.Context, userID, historyText string) (string, error) {
	candidate, err := s.Synthesize(ctx, historyText)
	if err != nil {
		return "", err
	}

	if err := s.tastes.AddTaste(ctx, userID, candidate); err != nil {
		return "", fmt.Errorf("failed to persist taste for user %s: %w", userID, err)
	}

	s.logger.Info().
		Str("user_id", userID).
		Int("words", len(strings.Fields(candidate))).
		Msg("Taste resynthesized")

	return candidate, nil
}

// Latest returns the stored current taste for a user, or the sentinel when
// none exists.
func (s *Synthesizer) Latest(ctx context.Context, userID string) (string, error) {
	text, ok, err := s.tastes.LatestTaste(ctx, userID)
	if err != nil {
		return "", err
	}
	if !ok {
		return NoHistorySentinel, nil
	}
	return text, nil
}
