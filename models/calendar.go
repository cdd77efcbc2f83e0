package models

import "time"

// UpdateType classifies why an article is being reposted. It selects the
// intro template and the title rewrite.
type UpdateType string

const (
	UpdateRefresh  UpdateType = "refresh"
	UpdateSeasonal UpdateType = "seasonal"
	UpdatePopular  UpdateType = "popular"
	UpdateSeries   UpdateType = "series"
)

// CalendarEntry is one scheduled future repost. Entries are produced in one
// batch per planning run; regeneration replaces the whole calendar. Publish
// dates increase with position.
type CalendarEntry struct {
	Article          PerformanceRecord `json:"article"`
	PublishDate      time.Time         `json:"publish_date"`
	UpdateType       UpdateType        `json:"update_type"`
	PreparationNotes []string          `json:"preparation_notes"`
}
