package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"econbot/internal/model"
	"econbot/internal/render"
	"econbot/internal/storage"
)

var ErrPanic = errors.New("source panicked")

type ItemStorage interface {
	Exists(ctx context.Context, id model.ItemID) (bool, error)
	Record(ctx context.Context, id model.ItemID, source, title, url string) (bool, error)
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

type DigestPruner interface {
	PruneDigestState(ctx context.Context, olderThan time.Duration) (int64, error)
}

type Publisher interface {
	Submit(ctx context.Context, category model.Category, content string) error
}

type Alerter interface {
	SendStandalone(ctx context.Context, text string, controls []model.Control) (model.MessageRef, error)
}

type Source interface {
	Name() string
	Category() model.Category
	Language() string
	ReportUnavailable() bool

	Fetch(ctx context.Context) ([]model.RawItem, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, link string) (string, error)
}

type Translator interface {
	Translate(ctx context.Context, text, from string) string
}

type Config struct {
	Keywords        []string
	FetchInterval   time.Duration
	SourceTimeout   time.Duration
	ItemRetention   time.Duration
	DigestRetention time.Duration
	PruneHour       int
	Location        *time.Location
	// ReviewMode routes snapshot content to the operator chat instead of the digest.
	ReviewMode bool

	Summarizer Summarizer
	Translator Translator
	Logger     *slog.Logger
}

// Result is the outcome of one source in one cycle.
type Result struct {
	Source   string
	Category model.Category
	New      int
	Err      error
	Duration time.Duration
}

type Fetcher struct {
	items     ItemStorage
	digests   DigestPruner
	publisher Publisher
	alerter   Alerter
	sources   []Source

	cfg      Config
	keywords []string
	log      *slog.Logger
	now      func() time.Time

	lastPrune string
	onCycle   func([]Result)
}

func New(items ItemStorage, digests DigestPruner, publisher Publisher, alerter Alerter, sources []Source, cfg Config) *Fetcher {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = 2 * time.Minute
	}
	if cfg.FetchInterval <= 0 {
		cfg.FetchInterval = 30 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Fetcher{
		items:     items,
		digests:   digests,
		publisher: publisher,
		alerter:   alerter,
		sources:   sources,
		cfg:       cfg,
		keywords: lo.FilterMap(cfg.Keywords, func(k string, _ int) (string, bool) {
			k = strings.ToLower(strings.TrimSpace(k))
			return k, k != ""
		}),
		log: cfg.Logger.With("component", "fetcher"),
		now: time.Now,
	}
}

// OnCycle registers a hook that receives the results of every finished cycle.
func (f *Fetcher) OnCycle(fn func([]Result)) {
	f.onCycle = fn
}

// Run cycles until ctx is cancelled, sleeping FetchInterval after each cycle.
func (f *Fetcher) Run(ctx context.Context) error {
	for {
		f.safeCycle(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.cfg.FetchInterval):
		}
	}
}

func (f *Fetcher) safeCycle(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			f.log.Error("cycle panic recovered", "panic", p)
		}
	}()

	f.Cycle(ctx)
}

// Cycle runs every source once, concurrently, and waits for all of them.
// One source failing never affects the others.
func (f *Fetcher) Cycle(ctx context.Context) []Result {
	log := f.log.With("cycle_id", uuid.NewString())
	started := f.now()

	f.pruneIfDue(ctx, log)

	results := make([]Result, len(f.sources))

	var wg sync.WaitGroup

	for i, src := range f.sources {
		wg.Add(1)

		go func(i int, src Source) {
			defer wg.Done()

			results[i] = f.runSource(ctx, log, src)
		}(i, src)
	}

	wg.Wait()

	failed := lo.CountBy(results, func(r Result) bool { return r.Err != nil })
	log.Info("cycle finished", "sources", len(results), "failed", failed, "took", time.Since(started))

	if f.onCycle != nil {
		f.onCycle(results)
	}

	return results
}

func (f *Fetcher) runSource(ctx context.Context, log *slog.Logger, src Source) (res Result) {
	res = Result{Source: src.Name(), Category: src.Category()}
	log = log.With("source", src.Name(), "category", src.Category())
	started := time.Now()

	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("%w: %v", ErrPanic, p)
		}
		res.Duration = time.Since(started)

		if res.Err != nil {
			log.Error("source failed", "new", res.New, "error", res.Err)
			return
		}
		log.Info("source done", "new", res.New, "took", res.Duration)
	}()

	srcCtx, cancel := context.WithTimeout(ctx, f.cfg.SourceTimeout)
	defer cancel()

	items, err := src.Fetch(srcCtx)
	if err != nil {
		res.Err = fmt.Errorf("fetch: %w", err)

		if src.ReportUnavailable() && !src.Category().Streamed() {
			// the unavailable notice must go out even when the source timed out
			if err := f.deliverSnapshot(ctx, src.Category(), render.Unavailable(src.Category())); err != nil {
				res.Err = errors.Join(res.Err, err)
			}
		}

		return res
	}

	if src.Category().Streamed() {
		res.New, res.Err = f.processStream(ctx, srcCtx, src, items)
	} else {
		res.New, res.Err = f.processSnapshot(srcCtx, src, items)
	}

	return res
}

// processSnapshot replaces the category section with the freshly rendered table.
// Snapshot rows repeat every cycle by nature, so they bypass the duplicate filter.
func (f *Fetcher) processSnapshot(ctx context.Context, src Source, items []model.RawItem) (int, error) {
	content := render.Quotes(src.Category(), items)
	if content == "" {
		return 0, nil
	}

	if err := f.deliverSnapshot(ctx, src.Category(), content); err != nil {
		return 0, err
	}

	return len(items), nil
}

func (f *Fetcher) deliverSnapshot(ctx context.Context, category model.Category, content string) error {
	if f.cfg.ReviewMode {
		_, err := f.alerter.SendStandalone(ctx, render.Standalone(category, content), model.ReviewControls(category))
		return err
	}

	return f.publisher.Submit(ctx, category, content)
}

// processStream keeps only items never seen before, records them and sends them
// to the operator chat. A failing item is skipped; the others carry on.
// Items are read and recorded within srcCtx; once it is done nothing more is recorded,
// and what was recorded is still sent with ctx so no seen item goes undelivered.
func (f *Fetcher) processStream(ctx, srcCtx context.Context, src Source, items []model.RawItem) (int, error) {
	var (
		fresh []model.RawItem
		errs  []error
	)

	for _, item := range items {
		if err := srcCtx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		link := storage.CanonicalURL(item.URL)
		if link == "" || strings.TrimSpace(item.Title) == "" {
			continue
		}
		item.URL = link

		id := storage.IdentityOf(link)

		exists, err := f.items.Exists(srcCtx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", link, err))
			continue
		}
		if exists || f.IsSkipped(item) {
			continue
		}

		item = f.enrich(srcCtx, src, item)
		if err := srcCtx.Err(); err != nil {
			// enrichment ran out of time, leave the item for the next cycle
			errs = append(errs, err)
			break
		}

		inserted, err := f.items.Record(srcCtx, id, src.Name(), item.Title, link)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", link, err))
			continue
		}
		if !inserted {
			// another source got there first
			continue
		}

		fresh = append(fresh, item)
	}

	if len(fresh) == 0 {
		return 0, errors.Join(errs...)
	}

	for _, payload := range streamPayloads(src.Category(), fresh) {
		if _, err := f.alerter.SendStandalone(ctx, payload, model.StreamControls(src.Category())); err != nil {
			errs = append(errs, err)
		}
	}

	return len(fresh), errors.Join(errs...)
}

// streamPayloads renders news as one digest-style alert and every report on its own.
func streamPayloads(category model.Category, items []model.RawItem) []string {
	if category == model.CategoryReports {
		return lo.Map(items, func(item model.RawItem, _ int) string {
			return render.Standalone(category, render.Report(item))
		})
	}

	return []string{render.Standalone(category, render.News(items))}
}

func (f *Fetcher) enrich(ctx context.Context, src Source, item model.RawItem) model.RawItem {
	if item.Summary == "" && f.cfg.Summarizer != nil {
		summary, err := f.cfg.Summarizer.Summarize(ctx, item.URL)
		if err != nil {
			f.log.Debug("summary unavailable", "url", item.URL, "error", err)
		}
		item.Summary = summary
	}

	if lang := src.Language(); lang != "" && f.cfg.Translator != nil {
		item.Title = f.cfg.Translator.Translate(ctx, item.Title, lang)
		if item.Summary != "" {
			item.Summary = f.cfg.Translator.Translate(ctx, item.Summary, lang)
		}
	}

	return item
}

// IsSkipped reports whether the item mentions a filtered keyword in its title,
// summary or feed categories.
func (f *Fetcher) IsSkipped(item model.RawItem) bool {
	if len(f.keywords) == 0 {
		return false
	}

	text := strings.ToLower(item.Title + " " + item.Summary)
	categories := lo.Map(strings.Split(item.Field("categories"), ","), func(c string, _ int) string {
		return strings.ToLower(strings.TrimSpace(c))
	})

	for _, keyword := range f.keywords {
		isTitleContains := strings.Contains(text, keyword)
		isCatContains := lo.Contains(categories, keyword)

		if isTitleContains || isCatContains {
			return true
		}
	}

	return false
}

// pruneIfDue runs retention once per day, at or after the configured hour, before
// any source starts, so no dedup check of the cycle races with the delete.
func (f *Fetcher) pruneIfDue(ctx context.Context, log *slog.Logger) {
	now := f.now().In(f.cfg.Location)
	day := now.Format(model.DayLayout)

	if day == f.lastPrune || now.Hour() < f.cfg.PruneHour || f.cfg.ItemRetention <= 0 {
		return
	}

	removed, err := f.items.Prune(ctx, f.cfg.ItemRetention)
	if err != nil {
		log.Error("prune items failed", "error", err)
		return
	}

	var digests int64
	if f.digests != nil && f.cfg.DigestRetention > 0 {
		digests, err = f.digests.PruneDigestState(ctx, f.cfg.DigestRetention)
		if err != nil {
			log.Error("prune digest state failed", "error", err)
			return
		}
	}

	f.lastPrune = day
	log.Info("retention done", "items", removed, "digest_rows", digests)
}
