package models

import (
	"fmt"
	"time"
)

// RecommendationGroup names a partition of the recommendations table.
// GroupAll is replaced wholesale on each monthly refresh; GroupDiscovery
// accumulates ad hoc results and is never pruned.
const (
	GroupAll       = "all"
	GroupDiscovery = "discovery"
)

// WatchedItem is one row of a user's watch history. Rows are append-only:
// the same title may appear at multiple resolutions, but a
// (user, external id, resolution) triple is stored at most once.
type WatchedItem struct {
	ID         string    `json:"id" badgerhold:"key"`
	UserID     string    `json:"user_id" badgerhold:"index"`
	Title      string    `json:"title"`
	ExternalID string    `json:"external_id" badgerhold:"index"`
	UserRating float64   `json:"user_rating"`
	Resolution string    `json:"resolution"`
	AddedAt    time.Time `json:"added_at"`
}

// Key returns the deterministic storage key enforcing per-user uniqueness
// on (external id, resolution).
func (w *WatchedItem) Key() string {
	return fmt.Sprintf("watched:%s:%s:%s", w.UserID, w.ExternalID, w.Resolution)
}

// LibraryItem is one row of the global library catalog: everything ever seen
// on the media server, watched or not, unique per (external id, resolution).
type LibraryItem struct {
	ID         string    `json:"id" badgerhold:"key"`
	Title      string    `json:"title"`
	ExternalID string    `json:"external_id" badgerhold:"index"`
	UserRating float64   `json:"user_rating"`
	Resolution string    `json:"resolution"`
	AddedAt    time.Time `json:"added_at"`
}

// Key returns the deterministic storage key enforcing uniqueness on
// (external id, resolution).
func (l *LibraryItem) Key() string {
	return fmt.Sprintf("library:%s:%s", l.ExternalID, l.Resolution)
}

// TasteSnapshot is one free-text taste description for a user. Snapshots
// accumulate; the current taste is the most recent by UpdatedAt.
type TasteSnapshot struct {
	ID        string    `json:"id" badgerhold:"key"`
	UserID    string    `json:"user_id" badgerhold:"index"`
	Text      string    `json:"text"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Recommendation is one recommended title persisted for a user under a
// named group.
type Recommendation struct {
	ID         string    `json:"id" badgerhold:"key"`
	UserID     string    `json:"user_id" badgerhold:"index"`
	Group      string    `json:"group" badgerhold:"index"`
	Title      string    `json:"title"`
	ExternalID string    `json:"external_id"`
	ImageURL   string    `json:"image_url"`
	CreatedAt  time.Time `json:"created_at"`
}

// HistoryEntry is one item returned by the watch-history provider. Episodes
// are carried nested and flattened at ingestion time.
type HistoryEntry struct {
	Title      string         `json:"title"`
	ExternalID string         `json:"external_id"`
	UserRating float64        `json:"user_rating"`
	Resolution string         `json:"resolution"`
	Episodes   []HistoryEntry `json:"episodes,omitempty"`
}
