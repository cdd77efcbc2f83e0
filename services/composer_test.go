package services

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hatena-ops/models"
	"hatena-ops/storage"
)

func testComposer(history storage.HistoryStore, now time.Time) *Composer {
	c := NewComposer(history, zap.NewNop())
	c.Now = func() time.Time { return now }
	return c
}

func TestComposeRefresh(t *testing.T) {
	c := testComposer(storage.NewMemoryHistory(), refTime)

	article := makeArticle("https://example.hatenablog.jp/entry/1", "Goの話",
		time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), 1200, []string{"tech", "go"})
	article.Content = "<p>本文です。</p>"

	content := c.Compose(&article, models.UpdateRefresh, "")

	assert.Equal(t, "【2025年版】Goの話", content.Title)
	assert.Contains(t, content.Content, "2024-03-10に公開した内容を最新情報に更新したものです")
	assert.Contains(t, content.Content, "<p>本文です。</p>")
	assert.Contains(t, content.Content, `<a href="https://example.hatenablog.jp/entry/1">Goの話</a>`)
	assert.Equal(t, []string{"tech", "go", "再掲載"}, content.Categories)
	assert.Equal(t, article.ArticleID, content.ArticleID)
	assert.Equal(t, models.UpdateRefresh, content.UpdateType)
}

func TestComposeSeasonalTitle(t *testing.T) {
	c := testComposer(storage.NewMemoryHistory(), refTime)

	article := makeArticle("https://example.hatenablog.jp/entry/2", "冬の記事", refTime, 800, nil)
	content := c.Compose(&article, models.UpdateSeasonal, "")

	assert.Equal(t, "【再掲】冬の記事", content.Title)
	assert.Contains(t, content.Content, "【季節の再掲】")
}

func TestComposeCustomIntroReplacesTemplate(t *testing.T) {
	c := testComposer(storage.NewMemoryHistory(), refTime)

	article := makeArticle("https://example.hatenablog.jp/entry/3", "記事", refTime, 800, nil)
	content := c.Compose(&article, models.UpdatePopular, "独自の前書きです。")

	assert.Contains(t, content.Content, "独自の前書きです。")
	assert.NotContains(t, content.Content, "【人気記事】")
}

func TestComposeFallsBackToSummary(t *testing.T) {
	c := testComposer(storage.NewMemoryHistory(), refTime)

	article := makeArticle("https://example.hatenablog.jp/entry/4", "記事", refTime, 200, nil)
	article.Summary = "要約だけがあります。"

	content := c.Compose(&article, models.UpdateRefresh, "")
	assert.Contains(t, content.Content, "要約だけがあります。")
}

func TestComposeUnknownUpdateTypeUsesRefreshIntro(t *testing.T) {
	c := testComposer(storage.NewMemoryHistory(), refTime)

	article := makeArticle("https://example.hatenablog.jp/entry/5", "記事",
		time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), 800, nil)

	content := c.Compose(&article, models.UpdateType("mystery"), "")
	assert.Contains(t, content.Content, "【更新版】")
	assert.Contains(t, content.Content, "2024-01-05")
}

func TestAppendUpdateNotesAfterIntro(t *testing.T) {
	c := testComposer(storage.NewMemoryHistory(), refTime)

	article := makeArticle("https://example.hatenablog.jp/entry/6", "記事", refTime, 800, nil)
	article.Content = "<p>本文です。</p>"
	content := c.Compose(&article, models.UpdateRefresh, "")

	notes := []string{noteShortContent, noteFirstRepost}
	withNotes := c.AppendUpdateNotes(content, notes)

	assert.Contains(t, withNotes.Content, "<div class='update-section'>")
	assert.Contains(t, withNotes.Content, "<h3>2025年の更新情報</h3>")
	assert.Contains(t, withNotes.Content, "<li>"+noteShortContent+"</li>")
	assert.Contains(t, withNotes.Content, "<li>"+noteFirstRepost+"</li>")

	// The section sits between the intro banner and the body.
	sectionAt := strings.Index(withNotes.Content, "update-section")
	bodyAt := strings.Index(withNotes.Content, "<p>本文です。</p>")
	introAt := strings.Index(withNotes.Content, "repost-intro")
	require.True(t, introAt >= 0 && sectionAt >= 0 && bodyAt >= 0)
	assert.Less(t, introAt, sectionAt)
	assert.Less(t, sectionAt, bodyAt)
}

func TestAppendUpdateNotesWithoutDivPrepends(t *testing.T) {
	c := testComposer(storage.NewMemoryHistory(), refTime)

	content := models.RepostContent{Content: "プレーンテキストのみ"}
	withNotes := c.AppendUpdateNotes(content, []string{noteFirstRepost})

	assert.True(t, strings.HasSuffix(withNotes.Content, "プレーンテキストのみ"))
	assert.Contains(t, withNotes.Content, "update-section")
}

func TestAppendUpdateNotesEmptyIsNoop(t *testing.T) {
	c := testComposer(storage.NewMemoryHistory(), refTime)

	content := models.RepostContent{Content: "<div>x</div>"}
	assert.Equal(t, content, c.AppendUpdateNotes(content, nil))
}

func TestScheduleRepostFutureDate(t *testing.T) {
	history := storage.NewMemoryHistory()
	c := testComposer(history, refTime)

	content := models.RepostContent{
		Title:       "【再掲】記事",
		ArticleID:   "abc123def0",
		OriginalURL: "https://example.hatenablog.jp/entry/1",
		UpdateType:  models.UpdateSeasonal,
	}

	future := refTime.AddDate(0, 0, 10)
	receipt, err := c.ScheduleRepost(content, &future)
	require.NoError(t, err)

	assert.Equal(t, models.StatusScheduled, receipt.Status)
	assert.True(t, receipt.ScheduledDate.Equal(future))

	h, ok := history.History("abc123def0")
	require.True(t, ok)
	require.Len(t, h.Reposts, 1)
	assert.Equal(t, models.StatusScheduled, h.Reposts[0].Status)
	assert.Equal(t, "【再掲】記事", h.Reposts[0].NewTitle)
	assert.Equal(t, models.UpdateSeasonal, h.Reposts[0].UpdateType)
}

func TestScheduleRepostImmediate(t *testing.T) {
	history := storage.NewMemoryHistory()
	c := testComposer(history, refTime)

	content := models.RepostContent{ArticleID: "abc123def0", OriginalURL: "https://example.com/1"}

	receipt, err := c.ScheduleRepost(content, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, receipt.Status)
	assert.True(t, receipt.ScheduledDate.Equal(refTime))
}

func TestScheduleRepostPastDateIsPublished(t *testing.T) {
	c := testComposer(storage.NewMemoryHistory(), refTime)

	past := refTime.AddDate(0, 0, -1)
	receipt, err := c.ScheduleRepost(models.RepostContent{ArticleID: "id1"}, &past)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, receipt.Status)
}

func TestScheduleRepostPropagatesStoreFailure(t *testing.T) {
	history := storage.NewMemoryHistory()
	history.RecordErr = errors.New("disk full")
	c := testComposer(history, refTime)

	_, err := c.ScheduleRepost(models.RepostContent{ArticleID: "id1"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 0, history.RepostCount("id1"))
}
