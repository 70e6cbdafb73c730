package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DefaultEndpoint = "https://translate.googleapis.com/translate_a/single"

	// fallbackLength caps the untranslated text handed back on failure.
	fallbackLength = 1000
	requestLength  = 4000
)

// Translator uses the public gtx endpoint. It never fails: on any error the
// input comes back, cut to a readable length.
type Translator struct {
	endpoint string
	target   string
	client   *http.Client
	log      *slog.Logger
}

func New(endpoint, target string, log *slog.Logger) *Translator {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if log == nil {
		log = slog.Default()
	}

	return &Translator{
		endpoint: endpoint,
		target:   target,
		client:   &http.Client{Timeout: 15 * time.Second},
		log:      log.With("component", "translate"),
	}
}

// Translate converts text from the source language into the target one.
// An empty or matching source language is a no-op.
func (t *Translator) Translate(ctx context.Context, text, from string) string {
	text = strings.TrimSpace(text)
	if text == "" || t.target == "" || strings.EqualFold(from, t.target) {
		return text
	}

	if from == "" {
		from = "auto"
	}

	result, err := t.request(ctx, cut(text, requestLength), from)
	if err != nil || result == "" {
		t.log.Warn("translation failed, keeping original", "from", from, "to", t.target, "error", err)
		return cut(text, fallbackLength)
	}

	return result
}

func (t *Translator) request(ctx context.Context, text, from string) (string, error) {
	params := url.Values{}
	params.Set("client", "gtx")
	params.Set("sl", from)
	params.Set("tl", t.target)
	params.Set("dt", "t")
	params.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	return parseResponse(body)
}

// parseResponse joins the translated chunks of [[["chunk","source",...],...],...].
func parseResponse(body []byte) (string, error) {
	var response []json.RawMessage
	if err := json.Unmarshal(body, &response); err != nil {
		return "", err
	}

	if len(response) == 0 {
		return "", errors.New("empty response")
	}

	var chunks [][]any
	if err := json.Unmarshal(response[0], &chunks); err != nil {
		return "", fmt.Errorf("unexpected response format: %w", err)
	}

	var sb strings.Builder
	for _, chunk := range chunks {
		if len(chunk) == 0 {
			continue
		}
		if s, ok := chunk[0].(string); ok {
			sb.WriteString(s)
		}
	}

	return strings.TrimSpace(sb.String()), nil
}

func cut(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}

	return string([]rune(text)[:n]) + "..."
}
