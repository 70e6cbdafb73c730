package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-playground/assert/v2"
	"github.com/jmoiron/sqlx"

	"econbot/internal/model"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "econbot.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func TestIdentityOf(t *testing.T) {
	a := IdentityOf("https://example.com/a")
	b := IdentityOf("https://example.com/a")
	c := IdentityOf("https://example.com/b")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, 64, len(a))
}

func TestCanonicalURL(t *testing.T) {
	cases := map[string]string{
		" HTTPS://Example.COM/News/1#top ": "https://example.com/News/1",
		"https://example.com/a?b=1":        "https://example.com/a?b=1",
		"not a url":                        "not a url",
	}

	for in, want := range cases {
		assert.Equal(t, want, CanonicalURL(in))
	}

	assert.Equal(t, IdentityOf(CanonicalURL("https://EXAMPLE.com/x#1")), IdentityOf(CanonicalURL("https://example.com/x")))
}

func TestRecordFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	s := NewItemStorage(openTestDB(t))
	id := IdentityOf("https://example.com/a")

	exists, err := s.Exists(ctx, id)
	assert.Equal(t, nil, err)
	assert.Equal(t, false, exists)

	inserted, err := s.Record(ctx, id, "rbc", "first", "https://example.com/a")
	assert.Equal(t, nil, err)
	assert.Equal(t, true, inserted)

	inserted, err = s.Record(ctx, id, "other", "second", "https://example.com/a")
	assert.Equal(t, nil, err)
	assert.Equal(t, false, inserted)

	exists, err = s.Exists(ctx, id)
	assert.Equal(t, nil, err)
	assert.Equal(t, true, exists)

	item, err := loadItem(ctx, s, id)
	assert.Equal(t, nil, err)
	assert.Equal(t, "rbc", item.Source)
	assert.Equal(t, "first", item.Title)

	missing, err := loadItem(ctx, s, IdentityOf("nope"))
	assert.Equal(t, nil, err)
	assert.Equal(t, true, missing == nil)
}

// loadItem reads back a stored row; nil when the id is unknown.
func loadItem(ctx context.Context, s *ItemStorage, id model.ItemID) (*model.Item, error) {
	query, args, err := s.sq.Select("id", "source", "title", "url", "first_seen").
		From("items").
		Where(sq.Eq{"id": string(id)}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var row struct {
		ID        string `db:"id"`
		Source    string `db:"source"`
		Title     string `db:"title"`
		URL       string `db:"url"`
		FirstSeen int64  `db:"first_seen"`
	}
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, err
	}

	return &model.Item{
		ID:        model.ItemID(row.ID),
		Source:    row.Source,
		Title:     row.Title,
		URL:       row.URL,
		FirstSeen: time.Unix(row.FirstSeen, 0).UTC(),
	}, nil
}

func TestRecordConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewItemStorage(openTestDB(t))
	id := IdentityOf("https://example.com/race")

	const n = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
		errs     []error
	)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			ok, err := s.Record(ctx, id, "src", "title", "https://example.com/race")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
			}
			if ok {
				inserted++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, len(errs))
	assert.Equal(t, 1, inserted)

	count, err := s.Count(ctx)
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(1), count)
}

func TestPruneItems(t *testing.T) {
	ctx := context.Background()
	s := NewItemStorage(openTestDB(t))
	base := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

	s.now = func() time.Time { return base.Add(-31 * 24 * time.Hour) }
	_, err := s.Record(ctx, IdentityOf("old"), "src", "old", "old")
	assert.Equal(t, nil, err)

	s.now = func() time.Time { return base.Add(-29 * 24 * time.Hour) }
	_, err = s.Record(ctx, IdentityOf("fresh"), "src", "fresh", "fresh")
	assert.Equal(t, nil, err)

	s.now = func() time.Time { return base }
	removed, err := s.Prune(ctx, 30*24*time.Hour)
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(1), removed)

	exists, _ := s.Exists(ctx, IdentityOf("old"))
	assert.Equal(t, false, exists)
	exists, _ = s.Exists(ctx, IdentityOf("fresh"))
	assert.Equal(t, true, exists)
}

func TestStoreErrorOnClosedDB(t *testing.T) {
	db := openTestDB(t)
	s := NewItemStorage(db)
	db.Close()

	_, err := s.Record(context.Background(), IdentityOf("x"), "src", "t", "x")

	var storeErr *model.StoreError
	assert.Equal(t, true, errors.As(err, &storeErr))
	assert.Equal(t, "record", storeErr.Op)
}

func TestDigestStateLifecycle(t *testing.T) {
	ctx := context.Background()
	loc := time.FixedZone("MSK", 3*60*60)
	s := NewDigestStorage(openTestDB(t), loc)
	day := "2025-04-01"

	state, err := s.GetDigestState(ctx, day)
	assert.Equal(t, nil, err)
	assert.Equal(t, true, state == nil)

	at := time.Date(2025, 4, 1, 10, 0, 0, 0, loc)
	err = s.PutSection(ctx, day, model.CategoryMarketIndices, "A", at)
	assert.Equal(t, nil, err)

	state, err = s.GetDigestState(ctx, day)
	assert.Equal(t, nil, err)
	assert.Equal(t, false, state.Published())
	assert.Equal(t, 1, len(state.Sections))

	err = s.PutMessageRef(ctx, day, "101")
	assert.Equal(t, nil, err)

	state, err = s.GetDigestState(ctx, day)
	assert.Equal(t, nil, err)
	assert.Equal(t, model.MessageRef("101"), state.Ref)

	err = s.PutMessageRef(ctx, day, "202")
	assert.Equal(t, nil, err)

	state, _ = s.GetDigestState(ctx, day)
	assert.Equal(t, model.MessageRef("202"), state.Ref)
}

func TestPutSectionLastWriterWins(t *testing.T) {
	ctx := context.Background()
	s := NewDigestStorage(openTestDB(t), time.UTC)
	day := "2025-04-01"

	first := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(5 * time.Minute)

	assert.Equal(t, nil, s.PutSection(ctx, day, model.CategoryCrypto, "X", first))
	assert.Equal(t, nil, s.PutSection(ctx, day, model.CategoryCrypto, "Y", second))

	sections, err := s.Sections(ctx, day)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(sections))
	assert.Equal(t, "Y", sections[model.CategoryCrypto].Content)
	assert.Equal(t, second.Unix(), sections[model.CategoryCrypto].UpdatedAt.Unix())

	other, err := s.Sections(ctx, "2025-04-02")
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, len(other))
}

func TestPruneDigestState(t *testing.T) {
	ctx := context.Background()
	s := NewDigestStorage(openTestDB(t), time.UTC)
	s.now = func() time.Time { return time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC) }

	for _, day := range []string{"2025-04-01", "2025-04-08", "2025-04-10"} {
		assert.Equal(t, nil, s.PutSection(ctx, day, model.CategoryNews, "n", s.now()))
		assert.Equal(t, nil, s.PutMessageRef(ctx, day, "1"))
	}

	removed, err := s.PruneDigestState(ctx, 72*time.Hour)
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(2), removed)

	state, _ := s.GetDigestState(ctx, "2025-04-01")
	assert.Equal(t, true, state == nil)
	state, _ = s.GetDigestState(ctx, "2025-04-08")
	assert.Equal(t, true, state.Published())
}
