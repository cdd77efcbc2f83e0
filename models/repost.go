package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// RepostStatus tracks whether a recorded repost is still pending.
type RepostStatus string

const (
	StatusScheduled RepostStatus = "scheduled"
	StatusPublished RepostStatus = "published"
)

// RepostEvent is one entry in an article's repost history. The history file
// format is stable across versions; fields may be added but never renamed.
type RepostEvent struct {
	Date       time.Time    `json:"date"`
	UpdateType UpdateType   `json:"update_type"`
	NewTitle   string       `json:"new_title"`
	Status     RepostStatus `json:"status"`
}

// legacyDateLayout is the offset-less ISO-8601 form found in history files
// written by the earlier tooling. Dates in that form are taken as UTC.
const legacyDateLayout = "2006-01-02T15:04:05"

// UnmarshalJSON accepts both RFC3339 dates and the legacy offset-less form,
// so history files from any version keep loading.
func (e *RepostEvent) UnmarshalJSON(data []byte) error {
	type plain RepostEvent
	aux := struct {
		Date string `json:"date"`
		*plain
	}{plain: (*plain)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Date == "" {
		return nil
	}

	t, err := time.Parse(time.RFC3339, aux.Date)
	if err != nil {
		t, err = time.Parse(legacyDateLayout, aux.Date)
		if err != nil {
			return fmt.Errorf("parsing repost date %q: %w", aux.Date, err)
		}
	}
	e.Date = t
	return nil
}

// RepostHistory is the persisted record for one article, keyed by article id
// in the history file. Reposts are append-only and kept in scheduling order.
type RepostHistory struct {
	OriginalURL string        `json:"original_url"`
	Reposts     []RepostEvent `json:"reposts"`
}

// RepostContent is the rendered output for one scheduled repost.
type RepostContent struct {
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	Categories  []string   `json:"categories"`
	OriginalURL string     `json:"original_url"`
	ArticleID   string     `json:"article_id"`
	UpdateType  UpdateType `json:"update_type"`
}

// ScheduleReceipt confirms that a repost was written to the history store.
type ScheduleReceipt struct {
	ArticleID     string       `json:"article_id"`
	ScheduledDate time.Time    `json:"scheduled_date"`
	Status        RepostStatus `json:"status"`
}
