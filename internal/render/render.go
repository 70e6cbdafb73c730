package render

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"

	"econbot/internal/model"
)

const (
	NoNews = "ℹ️ Нет новых значимых новостей"

	importantLimit = 15
	otherLimit     = 20
)

var (
	priorityKeywords = []string{
		"ЦБ", "ставка", "инфляция", "Минфин", "санкции",
		"нефть", "газ", "рубль", "доллар", "евро", "биржа",
		"ВВП", "экономика", "кризис", "индекс", "акции",
	}

	blacklist = []string{
		"Зеленский", "Украина", "спорт", "футбол",
		"теннис", "COVID", "коронавирус", "вакцина",
	}
)

// Quotes renders table rows of a snapshot category, one line per row.
func Quotes(category model.Category, items []model.RawItem) string {
	lines := lo.FilterMap(items, func(item model.RawItem, _ int) (string, bool) {
		if category == model.CategoryDividends {
			return dividendLine(item), itemName(item) != ""
		}

		return quoteLine(item), itemName(item) != ""
	})

	return strings.Join(lines, "\n")
}

// News splits headlines into important and other ones and drops blacklisted topics.
// Headlines link to their source when the item has a URL.
func News(items []model.RawItem) string {
	var important, other []string

	for _, item := range items {
		text := item.Title
		if item.Summary != "" {
			text += " " + item.Summary
		}
		if containsAny(text, blacklist) {
			continue
		}

		line := Link(item.Title, item.URL)
		if containsAny(text, priorityKeywords) {
			important = append(important, line)
		} else {
			other = append(other, line)
		}
	}

	var parts []string
	if len(important) > 0 {
		parts = append(parts, "🔴 <b>ВАЖНЫЕ НОВОСТИ</b>")
		for i, line := range lo.Slice(important, 0, importantLimit) {
			parts = append(parts, fmt.Sprintf("%d. %s", i+1, line))
		}
	}

	if len(other) > 0 {
		parts = append(parts, "\n🔵 <b>ДРУГИЕ НОВОСТИ</b>")
		for _, line := range lo.Slice(other, 0, otherLimit) {
			parts = append(parts, "• "+line)
		}
	}

	if len(parts) == 0 {
		return NoNews
	}

	return strings.TrimPrefix(strings.Join(parts, "\n"), "\n")
}

// Report renders one company report as a standalone post.
func Report(item model.RawItem) string {
	var sb strings.Builder

	if tag := item.Field("tag"); tag != "" {
		fmt.Fprintf(&sb, "<b>#%s #отчетность</b>\n", html.EscapeString(tag))
	}

	sb.WriteString("<b>" + html.EscapeString(item.Title) + "</b>")
	if date := item.Field("date"); date != "" {
		sb.WriteString(" (" + html.EscapeString(date) + ")")
	}

	if item.Summary != "" {
		sb.WriteString("\n\n" + html.EscapeString(Truncate(item.Summary, 600)))
	}

	if item.URL != "" {
		fmt.Fprintf(&sb, "\n\n<a href=\"%s\">Подробнее</a>", html.EscapeString(item.URL))
	}

	return sb.String()
}

// Standalone wraps a payload for the review chat. The header line ends with a
// colon so it is dropped again when the operator merges the message.
func Standalone(category model.Category, body string) string {
	return fmt.Sprintf("%s <b>%s:</b>\n%s", category.Icon(), category.Title(), body)
}

// Unavailable is what a source submits for its category when it could not fetch.
func Unavailable(category model.Category) string {
	return fmt.Sprintf("⚠️ Ошибка получения данных: %s", strings.ToLower(category.Title()))
}

func Link(title, url string) string {
	title = html.EscapeString(strings.TrimSpace(title))
	if url == "" {
		return title
	}

	return fmt.Sprintf("<a href=\"%s\">%s</a>", html.EscapeString(url), title)
}

// Truncate cuts text to at most n runes, ending with an ellipsis when cut.
func Truncate(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= n {
		return text
	}

	runes := []rune(text)
	if n == 1 {
		return "…"
	}

	return strings.TrimSpace(string(runes[:n-1])) + "…"
}

// Marker colours a price change: 🟢 up, 🔴 down, ⚪ flat or unknown.
func Marker(change string) string {
	change = strings.TrimSpace(change)

	switch {
	case strings.HasPrefix(change, "+"):
		return "🟢"
	case strings.HasPrefix(change, "-"), strings.HasPrefix(change, "−"):
		return "🔴"
	}

	var value float64
	if _, err := fmt.Sscanf(strings.ReplaceAll(change, ",", "."), "%f", &value); err == nil && value != 0 {
		return lo.Ternary(value > 0, "🟢", "🔴")
	}

	return "⚪"
}

func quoteLine(item model.RawItem) string {
	var sb strings.Builder

	change := item.Field("change")
	sb.WriteString(Marker(change) + " " + html.EscapeString(itemName(item)))
	if ticker := item.Field("ticker"); ticker != "" && ticker != itemName(item) {
		sb.WriteString(" (" + html.EscapeString(ticker) + ")")
	}
	sb.WriteString(":")

	if price := item.Field("price"); price != "" {
		sb.WriteString(" " + html.EscapeString(price))
	}
	if change != "" {
		sb.WriteString(" " + html.EscapeString(change))
	}
	if at := lo.CoalesceOrEmpty(item.Field("time"), item.Field("date")); at != "" {
		sb.WriteString(" | " + html.EscapeString(at))
	}

	return sb.String()
}

func dividendLine(item model.RawItem) string {
	var sb strings.Builder

	sb.WriteString("💰 " + html.EscapeString(itemName(item)))
	if ticker := item.Field("ticker"); ticker != "" && ticker != itemName(item) {
		sb.WriteString(" (" + html.EscapeString(ticker) + ")")
	}
	sb.WriteString(":")

	if amount := item.Field("amount"); amount != "" {
		sb.WriteString(" " + html.EscapeString(amount) + " руб.")
	}
	if yield := strings.TrimSuffix(item.Field("yield"), "%"); yield != "" {
		sb.WriteString(" (доходность " + html.EscapeString(yield) + "%)")
	}
	sb.WriteString(", дата выплаты: " + html.EscapeString(lo.CoalesceOrEmpty(item.Field("date"), "не указана")))

	return sb.String()
}

func itemName(item model.RawItem) string {
	return strings.TrimSpace(lo.CoalesceOrEmpty(item.Field("name"), item.Title, item.Field("ticker")))
}

func containsAny(text string, words []string) bool {
	lower := strings.ToLower(text)

	return lo.SomeBy(words, func(w string) bool {
		return strings.Contains(lower, strings.ToLower(w))
	})
}
