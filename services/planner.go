package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"hatena-ops/models"
	"hatena-ops/storage"
)

// Defaults used by calendar generation, matching the long-standing cadence of
// the blog.
const (
	defaultMaxArticles    = 5
	defaultMinDaysBetween = 90
	fallbackSpacingDays   = 7
)

// Preparation note texts, emitted in fixed order: length, first repost,
// technical.
const (
	noteShortContent = "記事が短いので、追加コンテンツの検討が必要"
	noteFirstRepost  = "初回の再掲載です"
	noteTechnical    = "技術的な内容の更新確認が必要"
)

const shortContentWords = 1000
const popularScoreThreshold = 15

// Planner selects articles for republication and lays them out on a
// calendar. All time arithmetic runs off the injected clock so planning is
// reproducible.
type Planner struct {
	History      storage.HistoryStore
	Logger       *zap.Logger
	Now          func() time.Time
	TechKeywords []string

	// Selection knobs, overridable from configuration.
	MaxArticles    int
	MinDaysBetween int
}

// NewPlanner creates a planner over the given history store with the default
// selection knobs.
func NewPlanner(history storage.HistoryStore, techKeywords []string, logger *zap.Logger) *Planner {
	return &Planner{
		History:        history,
		Logger:         logger,
		Now:            time.Now,
		TechKeywords:   techKeywords,
		MaxArticles:    defaultMaxArticles,
		MinDaysBetween: defaultMinDaysBetween,
	}
}

// SelectForRepost ranks all articles by performance score and greedily takes
// the highest-scoring eligible ones, up to maxArticles. Eligibility is purely
// the minimum-spacing rule; there is no backtracking to balance categories or
// dates.
func (p *Planner) SelectForRepost(articles []models.Article, maxArticles, minDaysBetween int) []models.PerformanceRecord {
	now := p.Now()
	ranked := AnalyzePerformance(articles, p.History, now)

	var selected []models.PerformanceRecord
	for _, rec := range ranked {
		if len(selected) >= maxArticles {
			break
		}
		if p.History.CanRepost(rec.ArticleID, minDaysBetween, now) {
			selected = append(selected, rec)
		}
	}

	if p.Logger != nil {
		p.Logger.Info("Articles selected for repost",
			zap.Int("candidates", len(ranked)),
			zap.Int("selected", len(selected)))
	}
	return selected
}

// GenerateCalendar builds the repost calendar for the coming weeks. The first
// entry publishes immediately; the rest are spread evenly across the window.
// Spacing is weeksAhead*7 divided by the selection size, deliberately
// unclamped: a large selection in a short window may land several reposts on
// the same day.
func (p *Planner) GenerateCalendar(articles []models.Article, weeksAhead int) []models.CalendarEntry {
	selected := p.SelectForRepost(articles, p.MaxArticles, p.MinDaysBetween)

	now := p.Now()
	daysBetween := fallbackSpacingDays
	if len(selected) > 0 {
		daysBetween = weeksAhead * 7 / len(selected)
	}

	calendar := make([]models.CalendarEntry, 0, len(selected))
	for i, rec := range selected {
		publishDate := now.AddDate(0, 0, i*daysBetween)
		calendar = append(calendar, models.CalendarEntry{
			Article:          rec,
			PublishDate:      publishDate,
			UpdateType:       p.determineUpdateType(rec, publishDate),
			PreparationNotes: p.preparationNotes(rec),
		})
	}
	return calendar
}

// determineUpdateType picks the repost framing. Winter dates read as seasonal
// regardless of popularity.
func (p *Planner) determineUpdateType(rec models.PerformanceRecord, publishDate time.Time) models.UpdateType {
	switch publishDate.Month() {
	case time.December, time.January, time.February:
		return models.UpdateSeasonal
	}
	if rec.PerformanceScore > popularScoreThreshold {
		return models.UpdatePopular
	}
	return models.UpdateRefresh
}

// preparationNotes collects advisory notes for the operator preparing the
// repost.
func (p *Planner) preparationNotes(rec models.PerformanceRecord) []string {
	var notes []string

	if rec.WordCount < shortContentWords {
		notes = append(notes, noteShortContent)
	}
	if rec.LastRepost == nil {
		notes = append(notes, noteFirstRepost)
	}

	joined := strings.Join(rec.Categories, " ")
	for _, kw := range p.TechKeywords {
		if kw != "" && strings.Contains(joined, kw) {
			notes = append(notes, noteTechnical)
			break
		}
	}
	return notes
}

// ExportPlan writes the calendar as a JSON report. The file is an artifact
// for the operator; the planner never reads it back.
func (p *Planner) ExportPlan(calendar []models.CalendarEntry, path string) error {
	raw, err := json.MarshalIndent(calendar, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding repost plan: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating export dir: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("writing repost plan %s: %w", path, err)
	}
	if p.Logger != nil {
		p.Logger.Info("Repost plan exported", zap.String("path", path), zap.Int("entries", len(calendar)))
	}
	return nil
}
