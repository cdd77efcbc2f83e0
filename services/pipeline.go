package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"hatena-ops/config"
	"hatena-ops/models"
	"hatena-ops/providers"
)

// RunResult summarizes one full pipeline run for logging and metrics.
type RunResult struct {
	ArticlesSynced  int `json:"articles_synced"`
	CalendarEntries int `json:"calendar_entries"`
	LinksRewritten  int `json:"links_rewritten"`
}

// ArchiveSyncer pulls the remote archive into local storage and reads it
// back for planning.
type ArchiveSyncer interface {
	Run(ctx context.Context) (int, error)
	LoadArchive() ([]models.Article, error)
}

// Pipeline orchestrates a full maintenance run: sync the archive, generate
// the repost calendar, render a sample repost with affiliate rewriting, and
// write the report artifacts. Enrichment and image generation are optional
// collaborators; their absence or failure downgrades the run, never aborts
// it. History persistence failures do abort, since planning against a stale
// store would over-repost.
type Pipeline struct {
	Config   *config.Config
	Logger   *zap.Logger
	Sync     ArchiveSyncer
	Planner  *Planner
	Composer *Composer
	Links    *Affiliate
	Enricher providers.Enricher
	Images   providers.ImageProvider
}

// Run executes the full pipeline and writes artifacts to the output dir.
// A failed sync downgrades the run to planning from the archive as it
// stands; only an unreadable archive aborts.
func (p *Pipeline) Run(ctx context.Context) (RunResult, error) {
	var result RunResult

	synced, err := p.Sync.Run(ctx)
	if err != nil {
		p.Logger.Warn("Archive sync failed, planning from existing archive", zap.Error(err))
	} else {
		result.ArticlesSynced = synced
	}

	articles, err := p.Sync.LoadArchive()
	if err != nil {
		return result, err
	}

	calendar := p.Planner.GenerateCalendar(articles, p.Config.WeeksAhead)
	result.CalendarEntries = len(calendar)

	if err := os.MkdirAll(p.Config.OutputDir, 0o755); err != nil {
		return result, fmt.Errorf("creating output dir: %w", err)
	}
	planPath := filepath.Join(p.Config.OutputDir, "repost_calendar.json")
	if err := p.Planner.ExportPlan(calendar, planPath); err != nil {
		return result, err
	}

	if len(calendar) == 0 {
		p.Logger.Info("No eligible articles, skipping sample repost")
		return result, nil
	}

	links, err := p.renderSample(ctx, articles, calendar[0])
	if err != nil {
		return result, err
	}
	result.LinksRewritten = links

	return result, nil
}

// renderSample composes the first calendar entry end to end so the operator
// can review what a repost will look like before confirming any publish.
func (p *Pipeline) renderSample(ctx context.Context, articles []models.Article, entry models.CalendarEntry) (int, error) {
	article := findArticle(articles, entry.Article.ArticleID)
	if article == nil {
		return 0, fmt.Errorf("calendar entry article %s missing from archive", entry.Article.ArticleID)
	}

	content := p.Composer.Compose(article, entry.UpdateType, "")
	content = p.Composer.AppendUpdateNotes(content, entry.PreparationNotes)

	if p.Enricher != nil && p.Enricher.Enabled() {
		enriched, err := p.Enricher.EnrichText(ctx, content.Content, article.Summary)
		if err != nil {
			p.Logger.Warn("Content enrichment failed, keeping original text", zap.Error(err))
		} else {
			content.Content = enriched
		}
	}

	transformed, rewritten := p.Links.ProcessContent(content.Content, true)
	content.Content = transformed

	var imageTag string
	if p.Images != nil && p.Images.Enabled() {
		urls, err := p.Images.GenerateImages(ctx, "modern minimalist blog header: "+article.Title, 1)
		if err != nil {
			p.Logger.Warn("Image generation failed, continuing without featured image", zap.Error(err))
		} else if len(urls) > 0 {
			imageTag = fmt.Sprintf("<img src='%s' alt='Featured Image'>\n", urls[0])
		}
	}

	sample := fmt.Sprintf("<h1>%s</h1>\n%s%s", content.Title, imageTag, content.Content)
	samplePath := filepath.Join(p.Config.OutputDir, "sample_repost.html")
	if err := os.WriteFile(samplePath, []byte(sample), 0o644); err != nil {
		return 0, fmt.Errorf("writing sample repost: %w", err)
	}

	if len(rewritten) > 0 {
		report := p.Links.GenerateReport(rewritten)
		reportPath := filepath.Join(p.Config.OutputDir, "affiliate_report.md")
		if err := os.WriteFile(reportPath, []byte(report), 0o644); err != nil {
			return len(rewritten), fmt.Errorf("writing affiliate report: %w", err)
		}
	}

	p.Logger.Info("Sample repost rendered",
		zap.String("article_id", article.ArticleID),
		zap.Int("links_rewritten", len(rewritten)))
	return len(rewritten), nil
}

func findArticle(articles []models.Article, articleID string) *models.Article {
	for i := range articles {
		if articles[i].ArticleID == articleID {
			return &articles[i]
		}
	}
	return nil
}
