package providers

import (
	"context"

	"hatena-ops/models"
)

// Source is implemented by every article source (e.g. the Hatena AtomPub
// archive). Returned articles must carry at least URL, Title and PublishedAt;
// content, categories and word count may be empty.
type Source interface {
	// FetchArticles pulls all published articles from the blog archive.
	FetchArticles(ctx context.Context) ([]models.Article, error)

	// Name returns the unique name of the source (e.g. "hatena").
	Name() string
}

// Publisher pushes composed repost content back to the blog. Publish failures
// are surfaced verbatim to the operator, never swallowed.
type Publisher interface {
	PublishEntry(ctx context.Context, content models.RepostContent, draft bool) (entryID string, err error)
	EditEntry(ctx context.Context, entryID string, content models.RepostContent) error
}

// Enricher transforms article text, optionally steered by a style reference.
// The pipeline only depends on this text-in/text-out contract.
type Enricher interface {
	EnrichText(ctx context.Context, text, styleRef string) (string, error)
	Enabled() bool
}

// ImageProvider generates images from a text prompt. A disabled provider is
// not an error: the image step is skippable.
type ImageProvider interface {
	GenerateImages(ctx context.Context, prompt string, n int) ([]string, error)
	Enabled() bool
}
