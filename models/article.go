package models

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Article is one extracted blog post as stored in the local archive.
// Records are created by the sync service and treated as read-only by the
// planning code; enrichment always produces new derived values.
type Article struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// ArticleID is the stable short identity derived from the URL. It keys
	// the repost history file, so it must never change for a given URL.
	ArticleID string `json:"article_id" gorm:"uniqueIndex;not null"`
	URL       string `json:"url" gorm:"uniqueIndex;not null"`
	Title     string `json:"title" gorm:"not null"`

	PublishedAt time.Time      `json:"published_at" gorm:"index"`
	Categories  datatypes.JSON `json:"categories" gorm:"type:jsonb"`
	WordCount   int            `json:"word_count"`

	Summary string `json:"summary,omitempty" gorm:"type:text"`
	Content string `json:"content,omitempty" gorm:"type:text"`

	EditURL string `json:"edit_url,omitempty"`
	Draft   bool   `json:"draft"`
}

// TableName sets the table name explicitly.
func (Article) TableName() string {
	return "articles"
}

// CategoryList decodes the stored categories, preserving their order.
func (a *Article) CategoryList() []string {
	if len(a.Categories) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(a.Categories, &list); err != nil {
		return nil
	}
	return list
}

// SetCategories encodes the ordered category list for storage.
func (a *Article) SetCategories(list []string) {
	if list == nil {
		list = []string{}
	}
	raw, _ := json.Marshal(list)
	a.Categories = raw
}

// DeriveArticleID maps a URL to its fixed-length short id. The history file
// is keyed by these ids, so the derivation is frozen: hex md5, first 10
// characters.
func DeriveArticleID(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])[:10]
}

// PerformanceRecord is the scored view of an article for one planning run.
// It is recomputed every run and never persisted.
type PerformanceRecord struct {
	ArticleID        string     `json:"article_id"`
	Title            string     `json:"title"`
	URL              string     `json:"url"`
	OriginalDate     time.Time  `json:"original_date"`
	Categories       []string   `json:"categories"`
	WordCount        int        `json:"word_count"`
	RepostCount      int        `json:"repost_count"`
	LastRepost       *time.Time `json:"last_repost,omitempty"`
	PerformanceScore float64    `json:"performance_score"`
}
