package history

import (
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/tiktoken-go/tokenizer"

	"github.com/reelrec/reelrec/internal/models"
)

// groupDivider separates history blocks in the combined model prompt.
var groupDivider = strings.Repeat("-", 50)

// Aggregator turns raw watch-history rows into deduplicated, token-bounded
// text blocks for model consumption.
type Aggregator struct {
	itemsPerGroup int
	logger        arbor.ILogger
	encoder       tokenizer.Codec
}

// NewAggregator creates an Aggregator. Token counts use the cl100k_base
// encoding; they are logged for tuning only and never affect grouping.
func NewAggregator(itemsPerGroup int, logger arbor.ILogger) (*Aggregator, error) {
	if itemsPerGroup <= 0 {
		return nil, fmt.Errorf("items per group must be positive, got %d", itemsPerGroup)
	}

	encoder, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("failed to load cl100k_base tokenizer: %w", err)
	}

	return &Aggregator{
		itemsPerGroup: itemsPerGroup,
		logger:        logger,
		encoder:       encoder,
	}, nil
}

// UniqueItems deduplicates by external id, first occurrence wins. Input is
// assumed ordered most recent first, so the newest record per title is the
// one kept.
func (a *Aggregator) UniqueItems(raw []models.WatchedItem) []models.WatchedItem {
	seen := make(map[string]struct{}, len(raw))
	unique := make([]models.WatchedItem, 0, len(raw))
	for _, item := range raw {
		if _, ok := seen[item.ExternalID]; ok {
			continue
		}
		seen[item.ExternalID] = struct{}{}
		unique = append(unique, item)
	}
	return unique
}

// GroupForModel splits items into ceil(N/G) blocks of at most G items, each
// formatted one line per item. The grouping threshold is item-count based;
// the per-block token count is computed purely for observability.
func (a *Aggregator) GroupForModel(items []models.WatchedItem) []string {
	groups := make([]string, 0, (len(items)+a.itemsPerGroup-1)/a.itemsPerGroup)
	for start := 0; start < len(items); start += a.itemsPerGroup {
		end := start + a.itemsPerGroup
		if end > len(items) {
			end = len(items)
		}

		block := a.FormatForModel(items[start:end])
		groups = append(groups, block)

		a.logger.Debug().
			Int("group", len(groups)).
			Int("items", end-start).
			Int("tokens", a.countTokens(block)).
			Msg("History group prepared")
	}
	return groups
}

// FormatForModel renders one history block, one line per item:
// "Watch History - Title: <title>, ID: <id>, User Rating: <rating|N/A>".
// An unset (zero) rating prints as "N/A".
func (a *Aggregator) FormatForModel(items []models.WatchedItem) string {
	var b strings.Builder
	for _, item := range items {
		rating := "N/A"
		if item.UserRating > 0 {
			rating = strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.1f", item.UserRating), "0"), ".")
		}
		fmt.Fprintf(&b, "Watch History - Title: %s, ID: %s, User Rating: %s\n", item.Title, item.ExternalID, rating)
	}
	return b.String()
}

// JoinGroups concatenates history blocks separated by a divider line,
// producing the single text the model prompts are built from.
func (a *Aggregator) JoinGroups(groups []string) string {
	if len(groups) == 0 {
		return ""
	}

	var b strings.Builder
	for _, group := range groups {
		b.WriteString(group)
		b.WriteString("\n")
		b.WriteString(groupDivider)
		b.WriteString("\n")
	}
	return b.String()
}

// HistoryText is the full pipeline: dedup, group, join.
func (a *Aggregator) HistoryText(raw []models.WatchedItem) string {
	return a.JoinGroups(a.GroupForModel(a.UniqueItems(raw)))
}

func (a *Aggregator) countTokens(text string) int {
	ids, _, err := a.encoder.Encode(text)
	if err != nil {
		return 0
	}
	return len(ids)
}
