package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"hatena-ops/models"
)

// HistoryStore is the durable memory of what was reposted when. The planner
// consults it for eligibility and the composer appends to it. Implementations
// must persist every Record call before returning: an unpersisted repost
// could be scheduled twice.
type HistoryStore interface {
	RepostCount(articleID string) int
	LastRepostDate(articleID string) (time.Time, bool)
	CanRepost(articleID string, minDaysBetween int, now time.Time) bool
	Record(articleID, originalURL string, event models.RepostEvent) error
	History(articleID string) (models.RepostHistory, bool)
	ArticleIDs() []string
}

// FileHistoryStore keeps the repost history in a single JSON file keyed by
// article id. The whole file is rewritten on every Record via a temp file and
// rename, so an interrupted write never leaves a truncated store behind.
// Concurrent processes against the same file are not supported.
type FileHistoryStore struct {
	path    string
	entries map[string]*models.RepostHistory
}

// OpenHistory loads the history file, starting empty if it does not exist
// yet. A file that exists but cannot be parsed is an error, not an empty
// store: planning against silently-missing history would over-repost.
func OpenHistory(path string) (*FileHistoryStore, error) {
	s := &FileHistoryStore{
		path:    path,
		entries: make(map[string]*models.RepostHistory),
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading history file %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &s.entries); err != nil {
		return nil, fmt.Errorf("parsing history file %s: %w", path, err)
	}
	return s, nil
}

// Path returns the backing file location.
func (s *FileHistoryStore) Path() string {
	return s.path
}

func (s *FileHistoryStore) RepostCount(articleID string) int {
	if h, ok := s.entries[articleID]; ok {
		return len(h.Reposts)
	}
	return 0
}

func (s *FileHistoryStore) LastRepostDate(articleID string) (time.Time, bool) {
	h, ok := s.entries[articleID]
	if !ok || len(h.Reposts) == 0 {
		return time.Time{}, false
	}
	return h.Reposts[len(h.Reposts)-1].Date, true
}

// CanRepost reports whether enough whole days have passed since the last
// repost. An article with no history is always eligible. Exactly
// minDaysBetween days ago counts as eligible.
func (s *FileHistoryStore) CanRepost(articleID string, minDaysBetween int, now time.Time) bool {
	last, ok := s.LastRepostDate(articleID)
	if !ok {
		return true
	}
	days := int(now.Sub(last).Hours() / 24)
	return days >= minDaysBetween
}

// Record appends the event to the article's history, creating the record on
// first repost, and persists the full store before returning.
func (s *FileHistoryStore) Record(articleID, originalURL string, event models.RepostEvent) error {
	h, ok := s.entries[articleID]
	if !ok {
		h = &models.RepostHistory{OriginalURL: originalURL}
		s.entries[articleID] = h
	}
	h.Reposts = append(h.Reposts, event)

	if err := s.save(); err != nil {
		// Roll back the in-memory append so a retry does not double-record.
		h.Reposts = h.Reposts[:len(h.Reposts)-1]
		return fmt.Errorf("persisting repost history: %w", err)
	}
	return nil
}

func (s *FileHistoryStore) History(articleID string) (models.RepostHistory, bool) {
	if h, ok := s.entries[articleID]; ok {
		return *h, true
	}
	return models.RepostHistory{}, false
}

// ArticleIDs lists every article with recorded reposts, sorted for stable
// output.
func (s *FileHistoryStore) ArticleIDs() []string {
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *FileHistoryStore) save() error {
	raw, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".repost_history-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
