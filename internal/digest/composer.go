package digest

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"econbot/internal/model"
)

const (
	// Placeholder is sent when no category has content yet.
	Placeholder = "ℹ️ Нет данных для отображения"

	// MaxMessageLength is the Telegram limit for a text message, in runes.
	MaxMessageLength = 4096

	ellipsis = "…"
)

// Composer renders a day's sections into one message. It keeps no state.
type Composer struct {
	loc       *time.Location
	maxLength int
}

func NewComposer(loc *time.Location) *Composer {
	if loc == nil {
		loc = time.UTC
	}

	return &Composer{loc: loc, maxLength: MaxMessageLength}
}

type block struct {
	header    string
	lines     []string
	truncated bool
}

func (b *block) String() string {
	var sb strings.Builder
	sb.WriteString(b.header)
	for _, line := range b.lines {
		sb.WriteString("\n")
		sb.WriteString(line)
	}
	if b.truncated {
		sb.WriteString("\n")
		sb.WriteString(ellipsis)
	}

	return sb.String()
}

func (b *block) contentLen() int {
	n := 0
	for _, line := range b.lines {
		n += utf8.RuneCountInString(line)
	}

	return n
}

// Compose walks the categories in canonical order, so the order sections were
// written in never shows in the output.
func (c *Composer) Compose(sections map[model.Category]model.CategorySection) string {
	blocks := make([]*block, 0, len(sections))

	for _, category := range model.Categories {
		section, ok := sections[category]
		if !ok || strings.TrimSpace(section.Content) == "" {
			continue
		}

		blocks = append(blocks, &block{
			header: fmt.Sprintf("%s <b>%s (обновлено %s):</b>",
				category.Icon(), category.Title(), section.UpdatedAt.In(c.loc).Format("15:04")),
			lines: strings.Split(strings.TrimSpace(section.Content), "\n"),
		})
	}

	if len(blocks) == 0 {
		return Placeholder
	}

	text := join(blocks)
	for utf8.RuneCountInString(text) > c.maxLength {
		if !shrink(blocks, utf8.RuneCountInString(text)-c.maxLength) {
			break
		}
		text = join(blocks)
	}

	return text
}

func join(blocks []*block) string {
	parts := make([]string, len(blocks))
	for i, b := range blocks {
		parts[i] = b.String()
	}

	return strings.Join(parts, "\n\n")
}

// shrink cuts the longest block by one line, or cuts its last line when only one is left.
// Ties go to the earlier block. It reports false when nothing is left to cut.
func shrink(blocks []*block, excess int) bool {
	var longest *block
	for _, b := range blocks {
		if longest == nil || b.contentLen() > longest.contentLen() {
			longest = b
		}
	}

	if longest == nil || longest.contentLen() == 0 {
		return false
	}

	if len(longest.lines) > 1 {
		longest.lines = longest.lines[:len(longest.lines)-1]
		longest.truncated = true
		return true
	}

	runes := []rune(longest.lines[0])
	keep := len(runes) - excess
	if !longest.truncated {
		// room for the ellipsis line
		keep -= utf8.RuneCountInString(ellipsis) + 1
	}
	if keep < 0 {
		keep = 0
	}

	longest.lines[0] = safePrefix(runes, keep)
	longest.truncated = true

	return true
}

// safePrefix returns the longest prefix of at most n runes that splits no tag or
// entity and leaves no element open, so the result stays valid Telegram HTML.
func safePrefix(runes []rune, n int) string {
	if n > len(runes) {
		n = len(runes)
	}

	safe, depth, tagStart, entity := 0, 0, -1, false
	for i := 0; i < n; i++ {
		switch r := runes[i]; {
		case tagStart >= 0:
			if r == '>' {
				if tagStart+1 < i && runes[tagStart+1] == '/' {
					depth--
				} else {
					depth++
				}
				tagStart = -1
			}
		case entity:
			if r == ';' {
				entity = false
			}
		case r == '<':
			tagStart = i
		case r == '&':
			entity = true
		}

		if tagStart < 0 && !entity && depth <= 0 {
			safe = i + 1
		}
	}

	return string(runes[:safe])
}
