package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/samber/lo"

	"econbot/internal/model"
)

var ErrNoRows = errors.New("no rows matched")

// Russian sites write numeric dates day first.
var dayFirst = regexp.MustCompile(`^(\d{1,2})[./](\d{1,2})[./](\d{4})$`)

type TableConfig struct {
	URL  string
	Rows string
	// Columns maps a field name to the index of its <td> inside a row.
	Columns map[string]int
	// Selectors maps a field name to a CSS selector inside a row, for list layouts.
	Selectors map[string]string
	// Tag is set as the "tag" field of every row.
	Tag       string
	UserAgent string
}

// TableSource reads one item per HTML table row.
type TableSource struct {
	meta

	cfg    TableConfig
	client *http.Client
}

func NewTableSource(m meta, cfg TableConfig, client *http.Client) *TableSource {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Rows == "" {
		cfg.Rows = "table tbody tr"
	}

	return &TableSource{meta: m, cfg: cfg, client: client}
}

func (s *TableSource) Fetch(ctx context.Context) ([]model.RawItem, error) {
	base, err := url.Parse(s.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	doc, err := s.fetchDocument(ctx)
	if err != nil {
		return nil, err
	}

	var items []model.RawItem
	doc.Find(s.cfg.Rows).EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if item, ok := s.parseRow(row, base); ok {
			items = append(items, item)
		}

		return s.limit <= 0 || len(items) < s.limit
	})

	if len(items) == 0 {
		return nil, fmt.Errorf("%s: %w", s.cfg.Rows, ErrNoRows)
	}

	return items, nil
}

func (s *TableSource) fetchDocument(ctx context.Context) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s", s.cfg.URL, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func (s *TableSource) parseRow(row *goquery.Selection, base *url.URL) (model.RawItem, bool) {
	fields := make(map[string]string, len(s.cfg.Columns)+len(s.cfg.Selectors)+1)
	set := func(name string, cell *goquery.Selection) {
		value := strings.Join(strings.Fields(cell.Text()), " ")
		if value == "" {
			return
		}
		if name == "date" {
			value = normalizeDate(value)
		}
		fields[name] = value
	}

	cells := row.Find("td")
	for name, idx := range s.cfg.Columns {
		if idx >= 0 && idx < cells.Length() {
			set(name, cells.Eq(idx))
		}
	}
	for name, selector := range s.cfg.Selectors {
		set(name, row.Find(selector).First())
	}

	if len(fields) == 0 {
		return model.RawItem{}, false
	}
	if s.cfg.Tag != "" {
		fields["tag"] = s.cfg.Tag
	}

	item := model.RawItem{
		Title:   lo.CoalesceOrEmpty(fields["title"], fields["name"]),
		Summary: fields["summary"],
		Fields:  fields,
	}

	link := row.Find("a[href]").First()
	if row.Is("a[href]") {
		link = row
	}
	if href, ok := link.Attr("href"); ok {
		if ref, err := base.Parse(strings.TrimSpace(href)); err == nil {
			item.URL = ref.String()
		}
	}

	if item.Title == "" && fields["ticker"] == "" {
		return model.RawItem{}, false
	}

	return item, true
}

// normalizeDate rewrites a recognised date as DD.MM.YYYY and leaves anything else as is.
func normalizeDate(value string) string {
	if m := dayFirst.FindStringSubmatch(value); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		return fmt.Sprintf("%02d.%02d.%s", day, month, m[3])
	}

	t, err := dateparse.ParseAny(value)
	if err != nil {
		return value
	}

	return t.Format("02.01.2006")
}
