package model

import (
	"time"
)

// ItemID is the content address of an item: a hash of its canonical URL.
type ItemID string

// RawItem is a single candidate yielded by a source before dedup.
type RawItem struct {
	Title     string
	URL       string
	Summary   string
	Published time.Time // дата публикации в источнике

	// Fields carries table cells by logical name (ticker, price, change, ...).
	Fields map[string]string
}

// Field returns a named cell or "" when the source did not provide it.
func (i RawItem) Field(name string) string {
	if i.Fields == nil {
		return ""
	}

	return i.Fields[name]
}

type Item struct {
	ID        ItemID
	Source    string
	Title     string
	URL       string
	FirstSeen time.Time
}

// CategorySection is the latest rendered content of one category for a digest day.
type CategorySection struct {
	Category  Category
	Content   string
	UpdatedAt time.Time
}

func (s CategorySection) Icon() string {
	return s.Category.Icon()
}

// DayLayout formats the calendar date key of a digest day.
const DayLayout = "2006-01-02"

// MessageRef is an opaque handle of a published message. Empty means absent.
type MessageRef string

// PinnedDigest is the persisted state of the rolling digest for one day.
type PinnedDigest struct {
	Day         string
	Ref         MessageRef
	LastUpdated time.Time
	Sections    map[Category]CategorySection
}

func (d *PinnedDigest) Published() bool {
	return d != nil && d.Ref != ""
}

// Control is an inline action attached to a standalone message.
type Control struct {
	Label  string
	Action string
}

const (
	ActionForward     = "forward"
	ActionDelete      = "delete"
	ActionMergePrefix = "merge:"
)

func MergeAction(c Category) string {
	return ActionMergePrefix + string(c)
}

// StreamControls is the control set of a stream alert.
func StreamControls(c Category) []Control {
	return []Control{
		{Label: "📢 В канал", Action: ActionForward},
		{Label: "📌 В закреп", Action: MergeAction(c)},
		{Label: "🗑 Удалить", Action: ActionDelete},
	}
}

// ReviewControls is offered for snapshot content awaiting operator review.
func ReviewControls(c Category) []Control {
	return []Control{
		{Label: "📌 В закреп", Action: MergeAction(c)},
		{Label: "🗑 Удалить", Action: ActionDelete},
	}
}
