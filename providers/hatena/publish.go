package hatena

import (
	"context"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"hatena-ops/config"
	"hatena-ops/models"
)

// Publisher posts composed repost content to the blog via AtomPub. Hatena's
// write endpoints authenticate with a WSSE header rather than basic auth.
type Publisher struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewPublisher creates a new AtomPub publisher.
func NewPublisher(cfg *config.Config, logger *zap.Logger) *Publisher {
	return &Publisher{Config: cfg, Logger: logger}
}

// PublishEntry creates a new blog entry and returns the entry id assigned by
// Hatena. Errors are returned verbatim so the operator sees the API response.
func (p *Publisher) PublishEntry(ctx context.Context, content models.RepostContent, draft bool) (string, error) {
	body := buildEntryXML(content, p.Config.HatenaID, draft)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.collectionURL(), strings.NewReader(body))
	if err != nil {
		return "", err
	}
	p.sign(req)

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("posting entry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("hatena rejected entry with status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	location := resp.Header.Get("Location")
	parts := strings.Split(location, "/")
	entryID := parts[len(parts)-1]
	p.Logger.Info("Entry published", zap.String("entry_id", entryID), zap.String("title", content.Title))
	return entryID, nil
}

// EditEntry replaces an existing entry's title and body.
func (p *Publisher) EditEntry(ctx context.Context, entryID string, content models.RepostContent) error {
	body := buildEntryXML(content, p.Config.HatenaID, false)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.collectionURL()+"/"+entryID, strings.NewReader(body))
	if err != nil {
		return err
	}
	p.sign(req)

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("updating entry %s: %w", entryID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("hatena rejected update with status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	return nil
}

func (p *Publisher) collectionURL() string {
	return fmt.Sprintf("https://blog.hatena.ne.jp/%s/%s/atom/entry", p.Config.HatenaID, p.Config.BlogDomain)
}

func (p *Publisher) sign(req *http.Request) {
	req.Header.Set("X-WSSE", wsseHeader(p.Config.HatenaID, p.Config.HatenaAPIKey))
	req.Header.Set("Content-Type", "application/xml")
}

// wsseHeader builds a WSSE UsernameToken: sha1(nonce + created + apiKey),
// with nonce and digest base64-encoded.
func wsseHeader(username, apiKey string) string {
	nonce := make([]byte, 20)
	rand.Read(nonce)
	created := time.Now().UTC().Format("2006-01-02T15:04:05Z")

	h := sha1.New()
	h.Write(nonce)
	h.Write([]byte(created))
	h.Write([]byte(apiKey))
	digest := h.Sum(nil)

	return fmt.Sprintf(`UsernameToken Username="%s", PasswordDigest="%s", Nonce="%s", Created="%s"`,
		username,
		base64.StdEncoding.EncodeToString(digest),
		base64.StdEncoding.EncodeToString(nonce),
		created)
}

func buildEntryXML(content models.RepostContent, author string, draft bool) string {
	draftFlag := "no"
	if draft {
		draftFlag = "yes"
	}

	var categories strings.Builder
	for _, c := range content.Categories {
		categories.WriteString(fmt.Sprintf("    <category term=\"%s\" />\n", escapeXML(c)))
	}

	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<entry xmlns="http://www.w3.org/2005/Atom" xmlns:app="http://www.w3.org/2007/app">
    <title>%s</title>
    <author><name>%s</name></author>
    <content type="text/html">%s</content>
    <updated>%s</updated>
%s    <app:control>
        <app:draft>%s</app:draft>
    </app:control>
</entry>`,
		escapeXML(content.Title),
		escapeXML(author),
		escapeXML(strings.TrimSpace(content.Content)),
		time.Now().Format("2006-01-02T15:04:05"),
		categories.String(),
		draftFlag)
}

func escapeXML(s string) string {
	var b strings.Builder
	xml.EscapeText(&b, []byte(s))
	return b.String()
}
