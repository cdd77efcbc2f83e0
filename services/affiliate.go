package services

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// ServiceDescriptor classifies URLs for one affiliate service. Adding a
// service is a data change: list its qualifying host substrings, the query
// parameter carrying the tag, and the tag value.
type ServiceDescriptor struct {
	Name       string
	Hosts      []string
	TagParam   string
	DefaultTag string
}

// RewrittenLink records one URL the transformer actually changed.
type RewrittenLink struct {
	Original string `json:"original"`
	Modified string `json:"modified"`
	Service  string `json:"service"`
}

// urlPattern is deliberately permissive; trailing punctuation is trimmed
// after matching.
var urlPattern = regexp.MustCompile(`https?://[^\s<>"{}|\\^` + "`" + `\[\]]+`)

const trailingPunct = ".,;:!?"

// Affiliate rewrites affiliate-eligible URLs inside article text with the
// configured tracking tags. It performs no network calls; re-running it over
// already-tagged output overwrites the tag rather than duplicating it.
type Affiliate struct {
	descriptors []ServiceDescriptor
	logger      *zap.Logger
}

// DefaultDescriptors returns the built-in affiliate service table. Tags are
// empty until configured; an empty tag disables rewriting for that service.
func DefaultDescriptors() []ServiceDescriptor {
	return []ServiceDescriptor{
		{
			Name:     "rakuten",
			Hosts:    []string{"hb.afl.rakuten.co.jp", "affiliate.rakuten.co.jp"},
			TagParam: "mafRakutenWidgetParam",
		},
		{
			Name:     "amazon",
			Hosts:    []string{"amazon.co.jp", "amzn.to", "amzn.asia"},
			TagParam: "tag",
		},
	}
}

// NewAffiliate creates a transformer over an ordered descriptor table. When
// several descriptors could match a host, the first one wins.
func NewAffiliate(descriptors []ServiceDescriptor, logger *zap.Logger) *Affiliate {
	return &Affiliate{descriptors: descriptors, logger: logger}
}

// SetTag configures the tag value for a service. Unknown services are
// ignored.
func (af *Affiliate) SetTag(service, tag string) {
	for i := range af.descriptors {
		if af.descriptors[i].Name == service {
			af.descriptors[i].DefaultTag = tag
			return
		}
	}
}

// Detect returns the first descriptor whose host list matches the URL's
// host.
func (af *Affiliate) Detect(rawURL string) (ServiceDescriptor, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ServiceDescriptor{}, false
	}
	host := strings.ToLower(u.Host)

	for _, d := range af.descriptors {
		for _, h := range d.Hosts {
			if strings.Contains(host, h) {
				return d, true
			}
		}
	}
	return ServiceDescriptor{}, false
}

// AddTag injects or overwrites the service's tag parameter on the URL. URLs
// for unknown services, or services without a configured tag, come back
// unchanged. Path and fragment are preserved.
func (af *Affiliate) AddTag(rawURL string) string {
	d, ok := af.Detect(rawURL)
	if !ok || d.DefaultTag == "" {
		return rawURL
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	q := u.Query()
	q.Set(d.TagParam, d.DefaultTag)
	u.RawQuery = q.Encode()
	return u.String()
}

// ProcessContent scans the text for URLs and rewrites every affiliate-
// eligible one. It returns the transformed text plus a record per distinct
// URL that changed; all other text, including non-matching URLs, is preserved
// byte for byte.
func (af *Affiliate) ProcessContent(content string, autoDetect bool) (string, []RewrittenLink) {
	if !autoDetect {
		return content, nil
	}

	modified := content
	var rewritten []RewrittenLink
	seen := make(map[string]bool)

	for _, match := range urlPattern.FindAllString(content, -1) {
		cleanURL := strings.TrimRight(match, trailingPunct)
		if seen[cleanURL] {
			continue
		}
		seen[cleanURL] = true

		d, ok := af.Detect(cleanURL)
		if !ok {
			continue
		}

		newURL := af.AddTag(cleanURL)
		if newURL == cleanURL {
			continue
		}

		modified = strings.ReplaceAll(modified, cleanURL, newURL)
		rewritten = append(rewritten, RewrittenLink{
			Original: cleanURL,
			Modified: newURL,
			Service:  d.Name,
		})
	}

	if af.logger != nil && len(rewritten) > 0 {
		af.logger.Info("Affiliate links rewritten", zap.Int("count", len(rewritten)))
	}
	return modified, rewritten
}

// GenerateReport renders a human-readable summary of rewritten links.
func (af *Affiliate) GenerateReport(links []RewrittenLink) string {
	var b strings.Builder
	b.WriteString("## アフィリエイトリンク処理レポート\n\n")

	counts := make(map[string]int)
	var order []string
	for _, l := range links {
		if counts[l.Service] == 0 {
			order = append(order, l.Service)
		}
		counts[l.Service]++
	}

	b.WriteString("### 処理されたリンク数\n")
	for _, service := range order {
		fmt.Fprintf(&b, "- %s: %d件\n", service, counts[service])
	}

	b.WriteString("\n### 処理詳細\n")
	for i, l := range links {
		fmt.Fprintf(&b, "%d. %s\n", i+1, l.Service)
		fmt.Fprintf(&b, "   - 元URL: %s\n", l.Original)
		fmt.Fprintf(&b, "   - 変更後: %s\n\n", l.Modified)
	}

	return b.String()
}
