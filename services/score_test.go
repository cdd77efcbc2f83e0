package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hatena-ops/models"
	"hatena-ops/storage"
)

var refTime = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func makeArticle(url, title string, publishedAt time.Time, wordCount int, categories []string) models.Article {
	a := models.Article{
		ArticleID:   models.DeriveArticleID(url),
		URL:         url,
		Title:       title,
		PublishedAt: publishedAt,
		WordCount:   wordCount,
	}
	a.SetCategories(categories)
	return a
}

func TestScoreAgeBonuses(t *testing.T) {
	tests := []struct {
		name    string
		daysOld int
		want    float64
	}{
		{"fresh", 0, 0},
		{"89 days", 89, 0},
		{"exactly 90 days", 90, 0},
		{"91 days", 91, 5},
		{"exactly 180 days", 180, 5},
		{"181 days", 181, 10},
		{"two years", 730, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := makeArticle("https://example.com/a", "a", refTime.AddDate(0, 0, -tt.daysOld), 0, nil)
			assert.Equal(t, tt.want, Score(&a, refTime))
		})
	}
}

func TestScoreWordCountBonuses(t *testing.T) {
	tests := []struct {
		name      string
		wordCount int
		want      float64
	}{
		{"empty", 0, 0},
		{"exactly 800", 800, 0},
		{"801", 801, 3},
		{"exactly 1500", 1500, 3},
		{"1501", 1501, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := makeArticle("https://example.com/a", "a", refTime, tt.wordCount, nil)
			assert.Equal(t, tt.want, Score(&a, refTime))
		})
	}
}

func TestScoreCategoryBonusIsFlat(t *testing.T) {
	one := makeArticle("https://example.com/a", "a", refTime, 0, []string{"tech"})
	many := makeArticle("https://example.com/b", "b", refTime, 0, []string{"tech", "go", "web"})

	assert.Equal(t, 3.0, Score(&one, refTime))
	assert.Equal(t, 3.0, Score(&many, refTime))
}

func TestScoreUnknownPublishDateSkipsAgeBonus(t *testing.T) {
	a := makeArticle("https://example.com/a", "a", time.Time{}, 2000, []string{"tech"})
	assert.Equal(t, 8.0, Score(&a, refTime))
}

func TestScoreIsPureFunction(t *testing.T) {
	a := makeArticle("https://example.com/a", "a", refTime.AddDate(0, 0, -200), 1600, []string{"tech"})

	first := Score(&a, refTime)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Score(&a, refTime))
	}
	assert.Equal(t, 18.0, first)
}

// fixtureArticles builds five articles with word counts 150..350 and ages
// 0..120 days, three categories each.
func fixtureArticles() []models.Article {
	wordCounts := []int{150, 200, 250, 300, 350}
	ages := []int{0, 30, 60, 90, 120}

	articles := make([]models.Article, 0, 5)
	for i := 0; i < 5; i++ {
		url := fmt.Sprintf("https://example.hatenablog.jp/entry/%d", i+1)
		a := makeArticle(url, fmt.Sprintf("記事%d", i+1), refTime.AddDate(0, 0, -ages[i]), wordCounts[i],
			[]string{"tech", "go", "blog"})
		articles = append(articles, a)
	}
	return articles
}

func TestAnalyzePerformanceRanking(t *testing.T) {
	articles := fixtureArticles()
	history := storage.NewMemoryHistory()

	records := AnalyzePerformance(articles, history, refTime)
	require.Len(t, records, 5)

	// Only the 120-day article crosses the 90-day age boundary; everyone
	// gets the flat category bonus.
	assert.Equal(t, 8.0, records[0].PerformanceScore)
	assert.Equal(t, articles[4].ArticleID, records[0].ArticleID)

	// The remaining four tie at 3 and keep their input order.
	for i, rec := range records[1:] {
		assert.Equal(t, 3.0, rec.PerformanceScore)
		assert.Equal(t, articles[i].ArticleID, rec.ArticleID)
	}
}

func TestAnalyzePerformanceCarriesHistory(t *testing.T) {
	articles := fixtureArticles()
	history := storage.NewMemoryHistory()

	lastRepost := refTime.AddDate(0, 0, -40)
	require.NoError(t, history.Record(articles[0].ArticleID, articles[0].URL, models.RepostEvent{
		Date:       lastRepost,
		UpdateType: models.UpdateRefresh,
		Status:     models.StatusPublished,
	}))

	records := AnalyzePerformance(articles, history, refTime)

	var found bool
	for _, rec := range records {
		if rec.ArticleID == articles[0].ArticleID {
			found = true
			assert.Equal(t, 1, rec.RepostCount)
			require.NotNil(t, rec.LastRepost)
			assert.True(t, rec.LastRepost.Equal(lastRepost))
		} else {
			assert.Equal(t, 0, rec.RepostCount)
			assert.Nil(t, rec.LastRepost)
		}
	}
	assert.True(t, found)
}
