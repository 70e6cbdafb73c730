package digest

import (
	"context"
	"fmt"
	"time"

	"econbot/internal/model"
)

// SectionStorage is the durable side of the category sections.
type SectionStorage interface {
	Sections(ctx context.Context, day string) (map[model.Category]model.CategorySection, error)
	PutSection(ctx context.Context, day string, category model.Category, content string, updatedAt time.Time) error
}

// Sections keeps the latest content per category and day. Nothing is held in memory.
type Sections struct {
	storage SectionStorage
}

func NewSections(storage SectionStorage) *Sections {
	return &Sections{storage: storage}
}

// UpdateSection replaces the category's content for the day.
func (s *Sections) UpdateSection(ctx context.Context, day string, category model.Category, content string, now time.Time) error {
	if !category.Valid() {
		return fmt.Errorf("update section: %w: %q", model.ErrUnknownCategory, category)
	}

	return s.storage.PutSection(ctx, day, category, content, now)
}

func (s *Sections) CurrentSections(ctx context.Context, day string) (map[model.Category]model.CategorySection, error) {
	sections, err := s.storage.Sections(ctx, day)
	if err != nil {
		return nil, err
	}

	if sections == nil {
		sections = make(map[model.Category]model.CategorySection)
	}

	return sections, nil
}
