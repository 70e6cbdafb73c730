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

// ItemStorage is the duplicate filter: one row per content address.
type ItemStorage struct {
	db  *sqlx.DB
	sq  sq.StatementBuilderType
	now func() time.Time
}

func NewItemStorage(db *sqlx.DB) *ItemStorage {
	return &ItemStorage{
		db:  db,
		sq:  builderFor(db),
		now: time.Now,
	}
}

func (s *ItemStorage) Exists(ctx context.Context, id model.ItemID) (bool, error) {
	query, args, err := s.sq.Select("1").From("items").Where(sq.Eq{"id": string(id)}).Limit(1).ToSql()
	if err != nil {
		return false, &model.StoreError{Op: "exists", Err: err}
	}

	conn, err := s.db.Connx(ctx)
	if err != nil {
		return false, &model.StoreError{Op: "exists", Err: err}
	}
	defer conn.Close()

	var one int
	if err := conn.GetContext(ctx, &one, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}

		return false, &model.StoreError{Op: "exists", Err: err}
	}

	return true, nil
}

// Record inserts the item unless its id is already known. The first writer wins:
// a repeated id leaves source, title and url untouched and reports inserted=false.
func (s *ItemStorage) Record(ctx context.Context, id model.ItemID, source, title, url string) (bool, error) {
	query, args, err := s.sq.Insert("items").
		Columns("id", "source", "title", "url", "first_seen").
		Values(string(id), source, title, url, s.now().UTC().Unix()).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, &model.StoreError{Op: "record", Err: err}
	}

	conn, err := s.db.Connx(ctx)
	if err != nil {
		return false, &model.StoreError{Op: "record", Err: err}
	}
	defer conn.Close()

	res, err := conn.ExecContext(ctx, query, args...)
	if err != nil {
		return false, &model.StoreError{Op: "record", Err: err}
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, &model.StoreError{Op: "record", Err: err}
	}

	return n > 0, nil
}

// Prune deletes items first seen before now-olderThan and returns how many went.
func (s *ItemStorage) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().Add(-olderThan).UTC().Unix()

	query, args, err := s.sq.Delete("items").Where(sq.Lt{"first_seen": cutoff}).ToSql()
	if err != nil {
		return 0, &model.StoreError{Op: "prune items", Err: err}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, &model.StoreError{Op: "prune items", Err: err}
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, &model.StoreError{Op: "prune items", Err: err}
	}

	return n, nil
}

func (s *ItemStorage) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM items`); err != nil {
		return 0, &model.StoreError{Op: "count items", Err: err}
	}

	return n, nil
}
