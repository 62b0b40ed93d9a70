package history

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelrec/reelrec/internal/common"
	"github.com/reelrec/reelrec/internal/models"
)

func newTestAggregator(t *testing.T, itemsPerGroup int) *Aggregator {
	t.Helper()
	agg, err := NewAggregator(itemsPerGroup, common.GetLogger())
	require.NoError(t, err)
	return agg
}

func TestNewAggregator_RejectsNonPositiveGroupSize(t *testing.T) {
	_, err := NewAggregator(0, common.GetLogger())
	assert.Error(t, err)

	_, err = NewAggregator(-5, common.GetLogger())
	assert.Error(t, err)
}

func TestUniqueItems_FirstOccurrenceWins(t *testing.T) {
	agg := newTestAggregator(t, 10)

	items := []models.WatchedItem{
		{Title: "Heat (4K)", ExternalID: "tt0113277", Resolution: "4k"},
		{Title: "Alien", ExternalID: "tt0078748"},
		{Title: "Heat (HD)", ExternalID: "tt0113277", Resolution: "1080p"},
		{Title: "Alien", ExternalID: "tt0078748"},
	}

	unique := agg.UniqueItems(items)
	require.Len(t, unique, 2)
	assert.Equal(t, "Heat (4K)", unique[0].Title)
	assert.Equal(t, "Alien", unique[1].Title)
}

func TestUniqueItems_EmptyInput(t *testing.T) {
	agg := newTestAggregator(t, 10)
	assert.Empty(t, agg.UniqueItems(nil))
}

func TestGroupForModel_GroupCountAndOrder(t *testing.T) {
	agg := newTestAggregator(t, 3)

	items := make([]models.WatchedItem, 7)
	for i := range items {
		items[i] = models.WatchedItem{
			Title:      fmt.Sprintf("Title %d", i),
			ExternalID: fmt.Sprintf("tt%07d", i),
		}
	}

	groups := agg.GroupForModel(items)
	require.Len(t, groups, 3) // ceil(7/3)

	// Concatenating groups in order reproduces the input order.
	var ids []string
	for _, group := range groups {
		lines := strings.Split(strings.TrimSpace(group), "\n")
		assert.LessOrEqual(t, len(lines), 3)
		for _, line := range lines {
			parts := strings.Split(line, "ID: ")
			require.Len(t, parts, 2)
			ids = append(ids, strings.Split(parts[1], ",")[0])
		}
	}
	require.Len(t, ids, 7)
	for i, id := range ids {
		assert.Equal(t, fmt.Sprintf("tt%07d", i), id)
	}
}

func TestFormatForModel(t *testing.T) {
	agg := newTestAggregator(t, 10)

	block := agg.FormatForModel([]models.WatchedItem{
		{Title: "Heat", ExternalID: "tt0113277", UserRating: 8.5},
		{Title: "Alien", ExternalID: "tt0078748"},
		{Title: "Blade Runner", ExternalID: "tt0083658", UserRating: 9.0},
	})

	lines := strings.Split(strings.TrimSpace(block), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Watch History - Title: Heat, ID: tt0113277, User Rating: 8.5", lines[0])
	assert.Equal(t, "Watch History - Title: Alien, ID: tt0078748, User Rating: N/A", lines[1])
	assert.Equal(t, "Watch History - Title: Blade Runner, ID: tt0083658, User Rating: 9", lines[2])
}

func TestJoinGroups(t *testing.T) {
	agg := newTestAggregator(t, 10)

	assert.Equal(t, "", agg.JoinGroups(nil))

	joined := agg.JoinGroups([]string{"block one\n", "block two\n"})
	divider := strings.Repeat("-", 50)
	assert.Equal(t, 2, strings.Count(joined, divider))
	assert.Contains(t, joined, "block one")
	assert.Contains(t, joined, "block two")
	assert.Less(t, strings.Index(joined, "block one"), strings.Index(joined, "block two"))
}

func TestHistoryText_EmptyForNoItems(t *testing.T) {
	agg := newTestAggregator(t, 10)
	assert.Equal(t, "", agg.HistoryText(nil))
}
