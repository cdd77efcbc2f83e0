package services

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"hatena-ops/models"
	"hatena-ops/storage"
)

// markerCategory is appended to every repost so readers (and later planning
// runs) can tell reposts from fresh posts.
const markerCategory = "再掲載"

// Intro templates by update type; {date} is replaced with the original
// publish date.
var introTemplates = map[models.UpdateType]string{
	models.UpdateRefresh:  "【更新版】この記事は{date}に公開した内容を最新情報に更新したものです。",
	models.UpdateSeasonal: "【季節の再掲】{date}に公開した記事を、この時期に改めてお届けします。",
	models.UpdatePopular:  "【人気記事】多くの方に読まれた記事を、加筆修正してお届けします。",
	models.UpdateSeries:   "【シリーズ再掲】過去の連載記事を振り返ります。",
}

// Composer renders scheduled articles into republishable content and records
// scheduled reposts in the history store.
type Composer struct {
	History storage.HistoryStore
	Logger  *zap.Logger
	Now     func() time.Time
}

// NewComposer creates a composer over the given history store.
func NewComposer(history storage.HistoryStore, logger *zap.Logger) *Composer {
	return &Composer{History: history, Logger: logger, Now: time.Now}
}

// Compose renders the article as repost content: intro banner, original body
// (summary if no full content was extracted), and a footer linking back to
// the original. customIntro, when non-empty, replaces the template entirely.
func (c *Composer) Compose(article *models.Article, updateType models.UpdateType, customIntro string) models.RepostContent {
	template, ok := introTemplates[updateType]
	if !ok {
		template = introTemplates[models.UpdateRefresh]
	}

	intro := customIntro
	if intro == "" {
		intro = strings.ReplaceAll(template, "{date}", article.PublishedAt.Format("2006-01-02"))
	}

	body := article.Content
	if body == "" {
		body = article.Summary
	}

	content := fmt.Sprintf(`<div class="repost-intro">
%s
</div>

%s

<div class="repost-footer">
<p>元記事: <a href="%s">%s</a></p>
</div>`, intro, body, article.URL, article.Title)

	title := "【再掲】" + article.Title
	if updateType == models.UpdateRefresh {
		title = fmt.Sprintf("【%d年版】%s", c.Now().Year(), article.Title)
	}

	return models.RepostContent{
		Title:       title,
		Content:     content,
		Categories:  append(article.CategoryList(), markerCategory),
		OriginalURL: article.URL,
		ArticleID:   article.ArticleID,
		UpdateType:  updateType,
	}
}

// AppendUpdateNotes inserts a rendered list of update notes right after the
// first closing div, which places it directly below the intro banner in
// composed content. Content without a closing div gets the notes prepended.
func (c *Composer) AppendUpdateNotes(content models.RepostContent, notes []string) models.RepostContent {
	if len(notes) == 0 {
		return content
	}

	var section strings.Builder
	fmt.Fprintf(&section, "\n\n<div class='update-section'>\n<h3>%d年の更新情報</h3>\n<ul>\n", c.Now().Year())
	for _, note := range notes {
		fmt.Fprintf(&section, "<li>%s</li>\n", note)
	}
	section.WriteString("</ul>\n</div>\n\n")

	parts := strings.SplitN(content.Content, "</div>", 2)
	if len(parts) == 2 {
		content.Content = parts[0] + "</div>" + section.String() + parts[1]
	} else {
		content.Content = section.String() + content.Content
	}
	return content
}

// ScheduleRepost records the repost in the history store and returns a
// receipt. A nil or past publish date means the repost goes out now and is
// recorded as published; a future date is recorded as scheduled. The record
// is durable before the receipt is returned.
func (c *Composer) ScheduleRepost(content models.RepostContent, publishDate *time.Time) (models.ScheduleReceipt, error) {
	now := c.Now()

	date := now
	status := models.StatusPublished
	if publishDate != nil {
		date = *publishDate
		if publishDate.After(now) {
			status = models.StatusScheduled
		}
	}

	event := models.RepostEvent{
		Date:       date,
		UpdateType: content.UpdateType,
		NewTitle:   content.Title,
		Status:     status,
	}
	if err := c.History.Record(content.ArticleID, content.OriginalURL, event); err != nil {
		return models.ScheduleReceipt{}, err
	}

	if c.Logger != nil {
		c.Logger.Info("Repost recorded",
			zap.String("article_id", content.ArticleID),
			zap.String("status", string(status)),
			zap.Time("date", date))
	}
	return models.ScheduleReceipt{
		ArticleID:     content.ArticleID,
		ScheduledDate: date,
		Status:        status,
	}, nil
}
