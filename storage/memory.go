package storage

import (
	"time"

	"hatena-ops/models"
)

// MemoryHistoryStore is an in-memory HistoryStore for tests and dry runs.
// It implements the same append-only semantics without touching disk.
type MemoryHistoryStore struct {
	entries map[string]*models.RepostHistory

	// RecordErr, when set, is returned by Record to simulate persistence
	// failures.
	RecordErr error
}

// NewMemoryHistory returns an empty in-memory store.
func NewMemoryHistory() *MemoryHistoryStore {
	return &MemoryHistoryStore{entries: make(map[string]*models.RepostHistory)}
}

func (s *MemoryHistoryStore) RepostCount(articleID string) int {
	if h, ok := s.entries[articleID]; ok {
		return len(h.Reposts)
	}
	return 0
}

func (s *MemoryHistoryStore) LastRepostDate(articleID string) (time.Time, bool) {
	h, ok := s.entries[articleID]
	if !ok || len(h.Reposts) == 0 {
		return time.Time{}, false
	}
	return h.Reposts[len(h.Reposts)-1].Date, true
}

func (s *MemoryHistoryStore) CanRepost(articleID string, minDaysBetween int, now time.Time) bool {
	last, ok := s.LastRepostDate(articleID)
	if !ok {
		return true
	}
	days := int(now.Sub(last).Hours() / 24)
	return days >= minDaysBetween
}

func (s *MemoryHistoryStore) Record(articleID, originalURL string, event models.RepostEvent) error {
	if s.RecordErr != nil {
		return s.RecordErr
	}
	h, ok := s.entries[articleID]
	if !ok {
		h = &models.RepostHistory{OriginalURL: originalURL}
		s.entries[articleID] = h
	}
	h.Reposts = append(h.Reposts, event)
	return nil
}

func (s *MemoryHistoryStore) History(articleID string) (models.RepostHistory, bool) {
	if h, ok := s.entries[articleID]; ok {
		return *h, true
	}
	return models.RepostHistory{}, false
}

func (s *MemoryHistoryStore) ArticleIDs() []string {
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	return ids
}
