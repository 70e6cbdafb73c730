package model

import (
	"fmt"
	"strings"
)

type Category string

const (
	CategoryMarketIndices Category = "market-indices"
	CategoryDividends     Category = "dividends"
	CategoryCommodities   Category = "commodities"
	CategoryCrypto        Category = "crypto"
	CategoryReports       Category = "reports"
	CategoryNews          Category = "news"
)

// Categories lists every known category in canonical digest order.
var Categories = []Category{
	CategoryMarketIndices,
	CategoryDividends,
	CategoryCommodities,
	CategoryCrypto,
	CategoryReports,
	CategoryNews,
}

const defaultIcon = "📌"

var icons = map[Category]string{
	CategoryMarketIndices: "📊",
	CategoryDividends:     "💵",
	CategoryCommodities:   "🛢️",
	CategoryCrypto:        "💰",
	CategoryReports:       "📑",
	CategoryNews:          "📰",
}

var titles = map[Category]string{
	CategoryMarketIndices: "Рынок акций и индексы",
	CategoryDividends:     "Ближайшие дивиденды",
	CategoryCommodities:   "Товарные активы",
	CategoryCrypto:        "Криптовалюты",
	CategoryReports:       "Отчеты компаний",
	CategoryNews:          "Экономические новости",
}

func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}

	return c, nil
}

func (c Category) Valid() bool {
	_, ok := titles[c]
	return ok
}

// Icon is total: unknown categories get the default glyph.
func (c Category) Icon() string {
	if icon, ok := icons[c]; ok {
		return icon
	}

	return defaultIcon
}

func (c Category) Title() string {
	if title, ok := titles[c]; ok {
		return title
	}

	return string(c)
}

// Streamed reports whether items of the category go out as standalone alerts
// instead of being submitted straight into the pinned digest.
func (c Category) Streamed() bool {
	return c == CategoryNews || c == CategoryReports
}
