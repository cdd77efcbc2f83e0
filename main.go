package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"hatena-ops/config"
	"hatena-ops/models"
	"hatena-ops/providers/hatena"
	"hatena-ops/providers/openai"
	"hatena-ops/services"
	"hatena-ops/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	articlesSyncedCounter  prometheus.Counter
	repostsRecordedCounter prometheus.Counter
	linksRewrittenCounter  prometheus.Counter
)

func init() {
	articlesSyncedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "articles_synced_total",
		Help: "Total number of articles synced into the local archive.",
	})
	repostsRecordedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reposts_recorded_total",
		Help: "Total number of reposts recorded in the history store.",
	})
	linksRewrittenCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "affiliate_links_rewritten_total",
		Help: "Total number of affiliate links rewritten in composed content.",
	})
	prometheus.MustRegister(articlesSyncedCounter, repostsRecordedCounter, linksRewrittenCounter)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to archive database", zap.Error(err))
	}
	logging.Info("Connected to article archive database.")

	logging.Info("Running database auto-migration...")
	if err := db.AutoMigrate(&models.Article{}); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}

	history, err := storage.OpenHistory(cfg.HistoryFile)
	if err != nil {
		logging.Fatal("Failed to open repost history", zap.Error(err), zap.String("path", cfg.HistoryFile))
	}
	logging.Info("Repost history loaded",
		zap.String("path", cfg.HistoryFile),
		zap.Int("articles_with_history", len(history.ArticleIDs())))

	// Providers and services
	fetcher := hatena.NewFetcher(cfg, logging)
	publisher := hatena.NewPublisher(cfg, logging)
	ai := openai.NewClient(cfg, logging)
	if !ai.Enabled() {
		logging.Info("No OpenAI key configured, enrichment and image steps will be skipped")
	}

	links := services.NewAffiliate(services.DefaultDescriptors(), logging)
	links.SetTag("rakuten", cfg.RakutenAffiliateTag)
	links.SetTag("amazon", cfg.AmazonAssociateTag)

	syncService := services.NewSyncService(db, fetcher, logging)
	planner := services.NewPlanner(history, cfg.TechCategoryKeywords, logging)
	planner.MaxArticles = cfg.MaxArticles
	planner.MinDaysBetween = cfg.MinDaysBetween
	composer := services.NewComposer(history, logging)

	pipeline := &services.Pipeline{
		Config:   cfg,
		Logger:   logging,
		Sync:     syncService,
		Planner:  planner,
		Composer: composer,
		Links:    links,
		Enricher: ai,
		Images:   ai,
	}

	// Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	setupArticleRoutes(router, db, logging)
	setupCalendarRoutes(router, cfg, syncService, planner, logging)
	setupHistoryRoutes(router, history)
	setupRunRoutes(router, cfg, pipeline, logging)
	setupPublishRoutes(router, db, composer, links, publisher, logging)

	// Cron
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronSchedule, func() {
		logging.Info("Running scheduled maintenance job...")
		result, err := pipeline.Run(context.Background())
		if err != nil {
			logging.Error("Cron job failed", zap.Error(err))
			return
		}
		recordRunMetrics(result)
		mirrorPlanExport(cfg, logging)
		logging.Info("Cron job completed",
			zap.Int("articles_synced", result.ArticlesSynced),
			zap.Int("calendar_entries", result.CalendarEntries))
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func recordRunMetrics(result services.RunResult) {
	articlesSyncedCounter.Add(float64(result.ArticlesSynced))
	linksRewrittenCounter.Add(float64(result.LinksRewritten))
}

// mirrorPlanExport uploads the latest calendar export to S3 when configured.
func mirrorPlanExport(cfg *config.Config, log *zap.Logger) {
	if !cfg.S3Configured() {
		return
	}
	planPath := filepath.Join(cfg.OutputDir, "repost_calendar.json")
	data, err := os.ReadFile(planPath)
	if err != nil {
		log.Warn("Cannot read plan export for S3 mirror", zap.Error(err))
		return
	}
	client, err := storage.NewS3Client(cfg)
	if err != nil {
		log.Warn("S3 client creation failed, skipping plan mirror", zap.Error(err))
		return
	}
	key := fmt.Sprintf("plans/repost_calendar-%s.json", time.Now().UTC().Format("2006-01-02"))
	link, err := storage.UploadFile(client, cfg.S3Bucket, key, data, cfg)
	if err != nil {
		log.Warn("Plan mirror upload failed", zap.Error(err))
		return
	}
	log.Info("Plan export mirrored to S3", zap.String("link", link))
}

func setupArticleRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/articles")

	rg.GET("/", func(c *gin.Context) {
		var articles []models.Article
		if err := db.Order("published_at desc").Find(&articles).Error; err != nil {
			log.Error("Database query for all articles failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, articles)
	})

	rg.POST("/query", func(c *gin.Context) {
		type ArticleQuery struct {
			Category        string `json:"category"`
			MinWordCount    *int   `json:"min_word_count"`
			PublishedBefore string `json:"published_before"`
			Limit           int    `json:"limit"`
		}

		var req ArticleQuery
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		query := db.Model(&models.Article{})
		if req.Category != "" {
			query = query.Where("categories::text LIKE ?", "%"+req.Category+"%")
		}
		if req.MinWordCount != nil {
			query = query.Where("word_count >= ?", *req.MinWordCount)
		}
		if req.PublishedBefore != "" {
			before, err := time.Parse("2006-01-02", req.PublishedBefore)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "published_before must be YYYY-MM-DD"})
				return
			}
			query = query.Where("published_at < ?", before)
		}
		if req.Limit > 0 {
			query = query.Limit(req.Limit)
		}

		var articles []models.Article
		if err := query.Order("published_at desc").Find(&articles).Error; err != nil {
			log.Error("Database query for articles failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, articles)
	})

	rg.GET("/:articleId", func(c *gin.Context) {
		id := c.Param("articleId")
		var article models.Article
		if err := db.Where("article_id = ?", id).First(&article).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "article not found"})
				return
			}
			log.Error("DB error loading article", zap.String("article_id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, article)
	})
}

func setupCalendarRoutes(router *gin.Engine, cfg *config.Config, syncService *services.SyncService, planner *services.Planner, log *zap.Logger) {
	rg := router.Group("/calendar")

	// Regenerates the calendar from the current archive and history state.
	// The result replaces any previously exported plan.
	rg.GET("/", func(c *gin.Context) {
		articles, err := syncService.LoadArchive()
		if err != nil {
			log.Error("Loading archive for calendar failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		calendar := planner.GenerateCalendar(articles, cfg.WeeksAhead)
		c.JSON(http.StatusOK, calendar)
	})

	rg.POST("/export", func(c *gin.Context) {
		articles, err := syncService.LoadArchive()
		if err != nil {
			log.Error("Loading archive for export failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		calendar := planner.GenerateCalendar(articles, cfg.WeeksAhead)
		planPath := filepath.Join(cfg.OutputDir, "repost_calendar.json")
		if err := planner.ExportPlan(calendar, planPath); err != nil {
			log.Error("Plan export failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export plan"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"path": planPath, "entries": len(calendar)})
	})
}

func setupHistoryRoutes(router *gin.Engine, history storage.HistoryStore) {
	rg := router.Group("/history")

	rg.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"article_ids": history.ArticleIDs()})
	})

	rg.GET("/:articleId", func(c *gin.Context) {
		id := c.Param("articleId")
		h, ok := history.History(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no repost history for article"})
			return
		}
		c.JSON(http.StatusOK, h)
	})
}

func setupRunRoutes(router *gin.Engine, cfg *config.Config, pipeline *services.Pipeline, log *zap.Logger) {
	rg := router.Group("/run")

	rg.POST("/", func(c *gin.Context) {
		go func() {
			result, err := pipeline.Run(context.Background())
			if err != nil {
				log.Error("Async pipeline run failed", zap.Error(err))
				return
			}
			recordRunMetrics(result)
			mirrorPlanExport(cfg, log)
			log.Info("Async pipeline run completed",
				zap.Int("articles_synced", result.ArticlesSynced),
				zap.Int("calendar_entries", result.CalendarEntries))
		}()
		c.JSON(http.StatusAccepted, gin.H{"message": "Maintenance run triggered."})
	})
}

func setupPublishRoutes(router *gin.Engine, db *gorm.DB, composer *services.Composer, links *services.Affiliate, publisher *hatena.Publisher, log *zap.Logger) {
	rg := router.Group("/reposts")

	// Operator-confirmed republication of a single article. Publish failures
	// are returned verbatim; nothing is recorded in the history store unless
	// the entry was actually accepted by the blog.
	rg.POST("/publish", func(c *gin.Context) {
		type PublishRequest struct {
			ArticleID   string   `json:"article_id" binding:"required"`
			UpdateType  string   `json:"update_type"`
			CustomIntro string   `json:"custom_intro"`
			UpdateNotes []string `json:"update_notes"`
			Draft       bool     `json:"draft"`
			PublishDate string   `json:"publish_date"`
		}

		var req PublishRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		var article models.Article
		if err := db.Where("article_id = ?", req.ArticleID).First(&article).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "article not found"})
				return
			}
			log.Error("DB error loading article for publish", zap.String("article_id", req.ArticleID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		var publishDate *time.Time
		if req.PublishDate != "" {
			t, err := time.Parse(time.RFC3339, req.PublishDate)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "publish_date must be RFC3339"})
				return
			}
			publishDate = &t
		}

		updateType := models.UpdateType(req.UpdateType)
		if updateType == "" {
			updateType = models.UpdateRefresh
		}

		content := composer.Compose(&article, updateType, req.CustomIntro)
		if len(req.UpdateNotes) > 0 {
			content = composer.AppendUpdateNotes(content, req.UpdateNotes)
		}

		transformed, rewritten := links.ProcessContent(content.Content, true)
		content.Content = transformed
		linksRewrittenCounter.Add(float64(len(rewritten)))

		entryID, err := publisher.PublishEntry(c.Request.Context(), content, req.Draft)
		if err != nil {
			log.Error("Publish failed", zap.String("article_id", req.ArticleID), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}

		receipt, err := composer.ScheduleRepost(content, publishDate)
		if err != nil {
			// The entry is live but the history write failed. Surface it
			// loudly: scheduling must not continue against a stale store.
			log.Error("History record failed after publish", zap.String("article_id", req.ArticleID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":    fmt.Sprintf("entry %s published but history update failed: %v", entryID, err),
				"entry_id": entryID,
			})
			return
		}
		repostsRecordedCounter.Inc()

		c.JSON(http.StatusCreated, gin.H{"entry_id": entryID, "receipt": receipt})
	})
}
