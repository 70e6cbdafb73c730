package source

import (
	"context"
	"net/http"
	"strings"

	"github.com/SlyMarbo/rss"
	"github.com/samber/lo"

	"econbot/internal/model"
)

type RSSSource struct {
	meta

	URL    string
	client *http.Client
}

func NewRSSSource(m meta, url string, client *http.Client) RSSSource {
	return RSSSource{meta: m, URL: url, client: client}
}

func (s RSSSource) Fetch(ctx context.Context) ([]model.RawItem, error) {
	feed, err := s.loadFeed(ctx, s.URL)
	if err != nil {
		return nil, err
	}

	items := lo.Map(feed.Items, func(item *rss.Item, _ int) model.RawItem {
		return model.RawItem{
			Title:     strings.TrimSpace(item.Title),
			URL:       strings.TrimSpace(item.Link),
			Summary:   strings.TrimSpace(item.Summary),
			Published: item.Date,
			Fields: map[string]string{
				"categories": strings.Join(item.Categories, ","),
			},
		}
	})

	if s.limit > 0 {
		items = lo.Slice(items, 0, s.limit)
	}

	return items, nil
}

func (s RSSSource) loadFeed(ctx context.Context, url string) (*rss.Feed, error) {
	// buffered so the fetch goroutine can finish after ctx is done
	feedChan := make(chan *rss.Feed, 1)
	errorChan := make(chan error, 1)

	go func() {
		feed, err := rss.FetchByClient(url, s.client)

		if err != nil {
			errorChan <- err
			return
		}

		feedChan <- feed
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-errorChan:
		return nil, err
	case feed := <-feedChan:
		return feed, nil
	}
}
