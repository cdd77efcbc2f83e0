package services

import (
	"sort"
	"time"

	"hatena-ops/models"
	"hatena-ops/storage"
)

// Score bonuses. Age boundaries are exclusive: an article exactly 180 days
// old gets the 90-day bonus only.
const (
	oldArticleDays  = 180
	agingDays       = 90
	oldArticleBonus = 10
	agingBonus      = 5

	categorizedBonus = 3

	longArticleWords  = 1500
	solidArticleWords = 800
	longArticleBonus  = 5
	solidArticleBonus = 3
)

// Score computes the repost-worthiness of an article at a given reference
// time. It is a pure function of age, category count and word count.
func Score(article *models.Article, now time.Time) float64 {
	score := 0.0

	if !article.PublishedAt.IsZero() {
		daysOld := int(now.Sub(article.PublishedAt).Hours() / 24)
		if daysOld > oldArticleDays {
			score += oldArticleBonus
		} else if daysOld > agingDays {
			score += agingBonus
		}
	}

	if len(article.CategoryList()) > 0 {
		score += categorizedBonus
	}

	if article.WordCount > longArticleWords {
		score += longArticleBonus
	} else if article.WordCount > solidArticleWords {
		score += solidArticleBonus
	}

	return score
}

// AnalyzePerformance scores every article and returns the records ranked by
// score, highest first. Equal scores keep their input order, so output is
// stable for a fixed input list and reference time.
func AnalyzePerformance(articles []models.Article, history storage.HistoryStore, now time.Time) []models.PerformanceRecord {
	records := make([]models.PerformanceRecord, 0, len(articles))

	for i := range articles {
		a := &articles[i]
		rec := models.PerformanceRecord{
			ArticleID:        a.ArticleID,
			Title:            a.Title,
			URL:              a.URL,
			OriginalDate:     a.PublishedAt,
			Categories:       a.CategoryList(),
			WordCount:        a.WordCount,
			RepostCount:      history.RepostCount(a.ArticleID),
			PerformanceScore: Score(a, now),
		}
		if last, ok := history.LastRepostDate(a.ArticleID); ok {
			rec.LastRepost = &last
		}
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].PerformanceScore > records[j].PerformanceScore
	})
	return records
}
