package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
)

// ReadabilitySummarizer pulls a short description out of an article page.
type ReadabilitySummarizer struct {
	client *http.Client
	maxLen int
}

func NewReadabilitySummarizer(client *http.Client, maxLen int) *ReadabilitySummarizer {
	if client == nil {
		client = http.DefaultClient
	}
	if maxLen <= 0 {
		maxLen = 500
	}

	return &ReadabilitySummarizer{client: client, maxLen: maxLen}
}

func (s *ReadabilitySummarizer) Summarize(ctx context.Context, link string) (string, error) {
	pageURL, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s returned %s", link, resp.Status)
	}

	article, err := readability.FromReader(resp.Body, pageURL)
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(article.Excerpt)
	if text == "" {
		text = strings.Join(strings.Fields(article.TextContent), " ")
	}

	if utf8.RuneCountInString(text) > s.maxLen {
		text = string([]rune(text)[:s.maxLen]) + "…"
	}

	return text, nil
}
