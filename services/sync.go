package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hatena-ops/models"
	"hatena-ops/providers"
)

// SyncService pulls the article archive from the configured source into the
// local database. Articles are read-only inputs to planning, so sync only
// ever upserts by article id.
type SyncService struct {
	DB     *gorm.DB
	Logger *zap.Logger
	Source providers.Source
}

// NewSyncService creates a new archive sync service.
func NewSyncService(db *gorm.DB, source providers.Source, logger *zap.Logger) *SyncService {
	return &SyncService{DB: db, Logger: logger, Source: source}
}

// Run fetches all articles from the source and upserts them. Malformed
// records (missing URL or title) are skipped with a warning and the batch
// continues; a source or database failure aborts the run.
func (s *SyncService) Run(ctx context.Context) (int, error) {
	log := s.Logger.With(zap.String("source", s.Source.Name()))
	log.Info("Starting archive sync")

	articles, err := s.Source.FetchArticles(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetching articles from %s: %w", s.Source.Name(), err)
	}

	synced := 0
	for i := range articles {
		a := articles[i]
		if a.URL == "" || a.Title == "" {
			log.Warn("Skipping malformed article record",
				zap.String("url", a.URL),
				zap.String("title", a.Title))
			continue
		}
		if a.ArticleID == "" {
			a.ArticleID = models.DeriveArticleID(a.URL)
		}

		err := s.DB.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "article_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"title", "published_at", "categories", "word_count",
				"summary", "content", "edit_url", "draft", "updated_at",
			}),
		}).Create(&a).Error
		if err != nil {
			return synced, fmt.Errorf("upserting article %s: %w", a.ArticleID, err)
		}
		synced++
	}

	log.Info("Archive sync finished", zap.Int("synced", synced), zap.Int("fetched", len(articles)))
	return synced, nil
}

// LoadArchive returns all archived articles in publication order, oldest
// first, which keeps ranking ties deterministic across runs.
func (s *SyncService) LoadArchive() ([]models.Article, error) {
	var articles []models.Article
	if err := s.DB.Order("published_at asc").Find(&articles).Error; err != nil {
		return nil, fmt.Errorf("loading article archive: %w", err)
	}
	return articles, nil
}
