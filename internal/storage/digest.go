package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"econbot/internal/model"
)

// DigestStorage keeps per-day sections and the ref of the pinned message.
type DigestStorage struct {
	db  *sqlx.DB
	sq  sq.StatementBuilderType
	loc *time.Location
	now func() time.Time
}

type dbSection struct {
	Category  string `db:"category"`
	Content   string `db:"content"`
	UpdatedAt int64  `db:"updated_at"`
}

type dbPinned struct {
	Day         string `db:"day"`
	MessageRef  string `db:"message_ref"`
	LastUpdated int64  `db:"last_updated"`
}

func NewDigestStorage(db *sqlx.DB, loc *time.Location) *DigestStorage {
	if loc == nil {
		loc = time.UTC
	}

	return &DigestStorage{
		db:  db,
		sq:  builderFor(db),
		loc: loc,
		now: time.Now,
	}
}

// GetDigestState returns nil when the day has neither a message nor sections.
func (s *DigestStorage) GetDigestState(ctx context.Context, day string) (*model.PinnedDigest, error) {
	sections, err := s.Sections(ctx, day)
	if err != nil {
		return nil, err
	}

	query, args, err := s.sq.Select("day", "message_ref", "last_updated").
		From("pinned_digests").
		Where(sq.Eq{"day": day}).
		ToSql()
	if err != nil {
		return nil, &model.StoreError{Op: "get digest", Err: err}
	}

	var pinned dbPinned
	err = s.db.GetContext(ctx, &pinned, query, args...)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if len(sections) == 0 {
			return nil, nil
		}

		return &model.PinnedDigest{Day: day, Sections: sections}, nil
	case err != nil:
		return nil, &model.StoreError{Op: "get digest", Err: err}
	}

	return &model.PinnedDigest{
		Day:         day,
		Ref:         model.MessageRef(pinned.MessageRef),
		LastUpdated: time.Unix(pinned.LastUpdated, 0).In(s.loc),
		Sections:    sections,
	}, nil
}

func (s *DigestStorage) Sections(ctx context.Context, day string) (map[model.Category]model.CategorySection, error) {
	query, args, err := s.sq.Select("category", "content", "updated_at").
		From("digest_sections").
		Where(sq.Eq{"day": day}).
		ToSql()
	if err != nil {
		return nil, &model.StoreError{Op: "sections", Err: err}
	}

	var rows []dbSection
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, &model.StoreError{Op: "sections", Err: err}
	}

	sections := make(map[model.Category]model.CategorySection, len(rows))
	for _, row := range rows {
		c := model.Category(row.Category)
		sections[c] = model.CategorySection{
			Category:  c,
			Content:   row.Content,
			UpdatedAt: time.Unix(row.UpdatedAt, 0).In(s.loc),
		}
	}

	return sections, nil
}

// PutSection replaces whatever the (day, category) pair held before.
func (s *DigestStorage) PutSection(ctx context.Context, day string, category model.Category, content string, updatedAt time.Time) error {
	query, args, err := s.sq.Insert("digest_sections").
		Columns("day", "category", "content", "updated_at").
		Values(day, string(category), content, updatedAt.Unix()).
		Suffix("ON CONFLICT (day, category) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return &model.StoreError{Op: "put section", Err: err}
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return &model.StoreError{Op: "put section", Err: err}
	}

	return nil
}

func (s *DigestStorage) PutMessageRef(ctx context.Context, day string, ref model.MessageRef) error {
	query, args, err := s.sq.Insert("pinned_digests").
		Columns("day", "message_ref", "last_updated").
		Values(day, string(ref), s.now().Unix()).
		Suffix("ON CONFLICT (day) DO UPDATE SET message_ref = excluded.message_ref, last_updated = excluded.last_updated").
		ToSql()
	if err != nil {
		return &model.StoreError{Op: "put message ref", Err: err}
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return &model.StoreError{Op: "put message ref", Err: err}
	}

	return nil
}

// PruneDigestState forgets pinned refs and sections of days before the cutoff day.
// Published messages are left alone.
func (s *DigestStorage) PruneDigestState(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().Add(-olderThan).In(s.loc).Format(model.DayLayout)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, &model.StoreError{Op: "prune digest", Err: err}
	}
	defer tx.Rollback()

	var total int64
	for _, table := range []string{"pinned_digests", "digest_sections"} {
		query, args, err := s.sq.Delete(table).Where(sq.Lt{"day": cutoff}).ToSql()
		if err != nil {
			return 0, &model.StoreError{Op: "prune digest", Err: err}
		}

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, &model.StoreError{Op: "prune digest", Err: err}
		}

		n, err := res.RowsAffected()
		if err != nil {
			return 0, &model.StoreError{Op: "prune digest", Err: err}
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, &model.StoreError{Op: "prune digest", Err: err}
	}

	return total, nil
}
