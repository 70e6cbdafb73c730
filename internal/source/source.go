package source

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"econbot/internal/config"
	"econbot/internal/model"
)

const (
	KindRSS   = "rss"
	KindTable = "table"

	defaultUserAgent = "Mozilla/5.0 (compatible; econbot/1.0)"
)

type Source interface {
	Name() string
	Category() model.Category
	Language() string
	ReportUnavailable() bool

	Fetch(ctx context.Context) ([]model.RawItem, error)
}

// meta is what every source kind shares.
type meta struct {
	name        string
	category    model.Category
	lang        string
	limit       int
	unavailable bool
}

func (m meta) Name() string {
	return m.name
}

func (m meta) Category() model.Category {
	return m.category
}

func (m meta) Language() string {
	return m.lang
}

// ReportUnavailable tells whether a failed fetch should replace the category
// section with a "data unavailable" notice.
func (m meta) ReportUnavailable() bool {
	return m.unavailable
}

// Build turns the configured source list into sources. A nil client gets a default one.
func Build(defs []config.SourceDef, client *http.Client) ([]Source, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	sources := make([]Source, 0, len(defs))
	for _, def := range defs {
		category, err := model.ParseCategory(def.Category)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", def.Name, err)
		}

		m := meta{
			name:        def.Name,
			category:    category,
			lang:        def.Lang,
			limit:       def.Limit,
			unavailable: def.Unavailable,
		}

		switch def.Kind {
		case KindRSS:
			sources = append(sources, NewRSSSource(m, def.URL, client))
		case KindTable:
			sources = append(sources, NewTableSource(m, TableConfig{
				URL:       def.URL,
				Rows:      def.Rows,
				Columns:   def.Columns,
				Selectors: def.Selectors,
				Tag:       def.Tag,
				UserAgent: def.UserAgent,
			}, client))
		default:
			return nil, fmt.Errorf("source %s: unknown kind %q", def.Name, def.Kind)
		}
	}

	return sources, nil
}
