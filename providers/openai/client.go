package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"hatena-ops/config"
)

// Client talks to an OpenAI-compatible API for content enrichment and image
// generation. A client without an API key is disabled, not broken: callers
// check Enabled and skip the step.
type Client struct {
	baseURL    string
	model      string
	imageModel string
	apiKey     string
	logger     *zap.Logger
	httpClient *http.Client
}

// NewClient builds a client from configuration.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.OpenAIBaseURL, "/"),
		model:      cfg.OpenAIModel,
		imageModel: cfg.ImageModel,
		apiKey:     cfg.OpenAIAPIKey,
		logger:     logger,
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// EnrichText rewrites the text, optionally steered by a style reference
// excerpt from the blog's own prose.
func (c *Client) EnrichText(ctx context.Context, text, styleRef string) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("openai client is not configured")
	}

	system := "あなたはブログ記事の編集者です。意味を変えず、文章を読みやすく更新してください。"
	if styleRef != "" {
		system += "\n次の文体を参考にしてください:\n" + styleRef
	}

	body := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": text},
		},
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.post(ctx, "/chat/completions", body, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("enrichment returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// GenerateImages returns up to n image URLs for the prompt.
func (c *Client) GenerateImages(ctx context.Context, prompt string, n int) ([]string, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("openai client is not configured")
	}
	if n <= 0 {
		n = 1
	}

	body := map[string]any{
		"model":  c.imageModel,
		"prompt": prompt,
		"n":      n,
	}

	var out struct {
		Data []struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/images/generations", body, &out); err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(out.Data))
	for _, d := range out.Data {
		if d.URL != "" {
			urls = append(urls, d.URL)
		}
	}
	return urls, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("openai request %s failed with status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
