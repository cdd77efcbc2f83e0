package hatena

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"hatena-ops/config"
	"hatena-ops/models"
)

var httpClient = &http.Client{Timeout: 60 * time.Second}

const summaryRunes = 200

// Fetcher implements the Source interface against the Hatena Blog AtomPub
// collection.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewFetcher creates a new Hatena archive fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger}
}

// Name returns the name of the source.
func (f *Fetcher) Name() string {
	return "hatena"
}

func (f *Fetcher) collectionURL() string {
	return fmt.Sprintf("https://blog.hatena.ne.jp/%s/%s/atom/entry", f.Config.HatenaID, f.Config.BlogDomain)
}

// FetchArticles walks the AtomPub collection page by page (rel="next") and
// maps published entries into archive articles. Drafts are skipped.
func (f *Fetcher) FetchArticles(ctx context.Context) ([]models.Article, error) {
	log := f.Logger.With(zap.String("blog", f.Config.BlogDomain))
	log.Info("Fetching article archive from Hatena")

	var articles []models.Article
	pageURL := f.collectionURL()

	for page := 0; pageURL != "" && page < f.Config.MaxPages; page++ {
		feed, err := f.fetchPage(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("fetching archive page %d: %w", page+1, err)
		}

		for i := range feed.Entries {
			entry := &feed.Entries[i]
			if entry.isDraft() {
				continue
			}
			articles = append(articles, mapEntryToArticle(entry))
		}

		pageURL = ""
		for _, l := range feed.Links {
			if l.Rel == "next" {
				pageURL = l.Href
				break
			}
		}
	}

	log.Info("Archive fetch finished", zap.Int("articles", len(articles)))
	return articles, nil
}

func (f *Fetcher) fetchPage(ctx context.Context, pageURL string) (*atomFeed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(f.Config.HatenaID, f.Config.HatenaAPIKey)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("atom feed request failed with status: %d", resp.StatusCode)
	}

	var feed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, err
	}
	return &feed, nil
}

// mapEntryToArticle converts an Atom entry into the archive model. Word count
// and summary come from the rendered text of the entry body.
func mapEntryToArticle(entry *atomEntry) models.Article {
	url := entry.link("alternate")

	a := models.Article{
		ArticleID:   models.DeriveArticleID(url),
		URL:         url,
		Title:       entry.Title,
		PublishedAt: entry.Published,
		Content:     entry.Content,
		EditURL:     entry.link("edit"),
	}

	categories := make([]string, 0, len(entry.Categories))
	for _, c := range entry.Categories {
		if c.Term != "" {
			categories = append(categories, c.Term)
		}
	}
	a.SetCategories(categories)

	text := renderText(entry.Content)
	a.WordCount = countWords(text)
	a.Summary = summarize(text)
	return a
}

// renderText strips markup from the entry body.
func renderText(content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return content
	}
	return strings.TrimSpace(doc.Text())
}

// countWords counts runes rather than space-separated fields: Japanese prose
// has no word boundaries, and the scoring thresholds were calibrated on rune
// counts.
func countWords(text string) int {
	count := 0
	for _, r := range text {
		if !strings.ContainsRune(" \t\n\r", r) {
			count++
		}
	}
	return count
}

func summarize(text string) string {
	runes := []rune(text)
	if len(runes) <= summaryRunes {
		return text
	}
	return string(runes[:summaryRunes]) + "..."
}
