package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hatena-ops/models"
)

func tempStore(t *testing.T) *FileHistoryStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "repost_history.json")
	s, err := OpenHistory(path)
	require.NoError(t, err)
	return s
}

func TestOpenHistoryMissingFileStartsEmpty(t *testing.T) {
	s := tempStore(t)
	assert.Empty(t, s.ArticleIDs())
	assert.Equal(t, 0, s.RepostCount("abc123def0"))

	_, ok := s.LastRepostDate("abc123def0")
	assert.False(t, ok)
}

func TestOpenHistoryMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repost_history.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := OpenHistory(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing history file")
}

func TestOpenHistoryLegacyDateFormats(t *testing.T) {
	// Files written by the earlier tooling carry offset-less ISO-8601
	// dates, sometimes with fractional seconds.
	raw := `{
  "abc123def0": {
    "original_url": "https://example.hatenablog.jp/entry/1",
    "reposts": [
      {"date": "2025-01-15T10:30:00", "update_type": "seasonal", "new_title": "【再掲】冬の記事", "status": "published"},
      {"date": "2025-04-20T08:00:00.123456", "update_type": "refresh", "new_title": "【2025年版】冬の記事", "status": "scheduled"}
    ]
  }
}`
	path := filepath.Join(t.TempDir(), "repost_history.json")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	s, err := OpenHistory(path)
	require.NoError(t, err)

	h, ok := s.History("abc123def0")
	require.True(t, ok)
	require.Len(t, h.Reposts, 2)
	assert.True(t, h.Reposts[0].Date.Equal(time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)))
	assert.Equal(t, models.UpdateSeasonal, h.Reposts[0].UpdateType)
	assert.True(t, h.Reposts[1].Date.Equal(time.Date(2025, 4, 20, 8, 0, 0, 123456000, time.UTC)))

	last, ok := s.LastRepostDate("abc123def0")
	require.True(t, ok)
	assert.Equal(t, 2025, last.Year())
}

func TestOpenHistoryMalformedDateFails(t *testing.T) {
	raw := `{"abc123def0": {"original_url": "https://example.com/1", "reposts": [{"date": "not-a-date"}]}}`
	path := filepath.Join(t.TempDir(), "repost_history.json")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	_, err := OpenHistory(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-a-date")
}

func TestRecordRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repost_history.json")
	s, err := OpenHistory(path)
	require.NoError(t, err)

	event := models.RepostEvent{
		Date:       time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		UpdateType: models.UpdateRefresh,
		NewTitle:   "【2025年版】テスト記事",
		Status:     models.StatusScheduled,
	}
	require.NoError(t, s.Record("abc123def0", "https://example.hatenablog.jp/entry/1", event))

	reloaded, err := OpenHistory(path)
	require.NoError(t, err)

	h, ok := reloaded.History("abc123def0")
	require.True(t, ok)
	assert.Equal(t, "https://example.hatenablog.jp/entry/1", h.OriginalURL)
	require.Len(t, h.Reposts, 1)

	got := h.Reposts[0]
	assert.True(t, got.Date.Equal(event.Date))
	assert.Equal(t, event.UpdateType, got.UpdateType)
	assert.Equal(t, event.NewTitle, got.NewTitle)
	assert.Equal(t, event.Status, got.Status)
}

func TestRecordPersistsBeforeReturning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repost_history.json")
	s, err := OpenHistory(path)
	require.NoError(t, err)

	event := models.RepostEvent{Date: time.Now().UTC(), UpdateType: models.UpdatePopular, Status: models.StatusPublished}
	require.NoError(t, s.Record("abc123def0", "https://example.com/1", event))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var onDisk map[string]models.RepostHistory
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Contains(t, onDisk, "abc123def0")
}

func TestRecordAppendsInOrder(t *testing.T) {
	s := tempStore(t)

	first := models.RepostEvent{Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), UpdateType: models.UpdateSeasonal, Status: models.StatusPublished}
	second := models.RepostEvent{Date: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), UpdateType: models.UpdateRefresh, Status: models.StatusScheduled}

	require.NoError(t, s.Record("id1", "https://example.com/1", first))
	require.NoError(t, s.Record("id1", "https://example.com/1", second))

	assert.Equal(t, 2, s.RepostCount("id1"))

	last, ok := s.LastRepostDate("id1")
	require.True(t, ok)
	assert.True(t, last.Equal(second.Date))
}

func TestCanRepostBoundary(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		lastDate time.Time
		want     bool
	}{
		{"exactly 90 days ago", now.AddDate(0, 0, -90), true},
		{"89 days ago", now.AddDate(0, 0, -89), false},
		{"91 days ago", now.AddDate(0, 0, -91), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tempStore(t)
			event := models.RepostEvent{Date: tt.lastDate, UpdateType: models.UpdateRefresh, Status: models.StatusPublished}
			require.NoError(t, s.Record("id1", "https://example.com/1", event))

			assert.Equal(t, tt.want, s.CanRepost("id1", 90, now))
		})
	}
}

func TestCanRepostWithoutHistory(t *testing.T) {
	s := tempStore(t)
	assert.True(t, s.CanRepost("never-seen", 90, time.Now()))
}

func TestRecordRollsBackOnWriteFailure(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("write-permission failure cannot be simulated as root")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "repost_history.json")
	s, err := OpenHistory(path)
	require.NoError(t, err)

	// Make the directory unwritable so the temp-file create fails.
	require.NoError(t, os.Chmod(dir, 0o500))
	defer os.Chmod(dir, 0o755)

	event := models.RepostEvent{Date: time.Now().UTC(), UpdateType: models.UpdateRefresh, Status: models.StatusScheduled}
	err = s.Record("id1", "https://example.com/1", event)
	require.Error(t, err)

	// The failed append must not linger in memory.
	assert.Equal(t, 0, s.RepostCount("id1"))
}
