package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"econbot/internal/model"
)

// Messenger publishes the digest message.
type Messenger interface {
	CreateAndPin(ctx context.Context, text string) (model.MessageRef, error)
	Edit(ctx context.Context, ref model.MessageRef, text string) error
}

type DigestStorage interface {
	SectionStorage
	GetDigestState(ctx context.Context, day string) (*model.PinnedDigest, error)
	PutMessageRef(ctx context.Context, day string, ref model.MessageRef) error
}

// Publisher owns the pinned digest of each day: it decides between creating a
// new message and editing the live one, and is the only writer of the message ref.
type Publisher struct {
	storage   DigestStorage
	sections  *Sections
	composer  *Composer
	messenger Messenger
	loc       *time.Location
	now       func() time.Time
	log       *slog.Logger

	mu    sync.Mutex
	locks map[string]*dayLock
}

type dayLock struct {
	sync.Mutex
	refs int
}

func NewPublisher(storage DigestStorage, messenger Messenger, loc *time.Location, log *slog.Logger) *Publisher {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}

	return &Publisher{
		storage:   storage,
		sections:  NewSections(storage),
		composer:  NewComposer(loc),
		messenger: messenger,
		loc:       loc,
		now:       time.Now,
		log:       log.With("component", "publisher"),
		locks:     make(map[string]*dayLock),
	}
}

// DayKey is the digest day a moment belongs to.
func (p *Publisher) DayKey(t time.Time) string {
	return t.In(p.loc).Format(model.DayLayout)
}

// Submit merges content into today's digest. The day is fixed once, here.
func (p *Publisher) Submit(ctx context.Context, category model.Category, content string) error {
	now := p.now().In(p.loc)

	return p.SubmitUpdate(ctx, p.DayKey(now), category, content, now)
}

func (p *Publisher) SubmitUpdate(ctx context.Context, day string, category model.Category, content string, now time.Time) error {
	unlock := p.lock(day)
	defer unlock()

	if err := p.sections.UpdateSection(ctx, day, category, content, now); err != nil {
		return err
	}

	sections, err := p.sections.CurrentSections(ctx, day)
	if err != nil {
		return err
	}
	text := p.composer.Compose(sections)

	state, err := p.storage.GetDigestState(ctx, day)
	if err != nil {
		return err
	}

	if !state.Published() {
		return p.create(ctx, day, text)
	}

	editErr := p.messenger.Edit(ctx, state.Ref, text)
	if editErr == nil {
		return p.storage.PutMessageRef(ctx, day, state.Ref)
	}

	p.log.Warn("edit digest failed, publishing a new one",
		"day", day, "ref", state.Ref, "category", category, "error", editErr)

	if err := p.create(ctx, day, text); err != nil {
		return errors.Join(editErr, err)
	}

	return nil
}

// Preview composes today's digest without publishing it.
func (p *Publisher) Preview(ctx context.Context) (string, error) {
	sections, err := p.sections.CurrentSections(ctx, p.DayKey(p.now()))
	if err != nil {
		return "", err
	}

	return p.composer.Compose(sections), nil
}

func (p *Publisher) create(ctx context.Context, day, text string) error {
	ref, err := p.messenger.CreateAndPin(ctx, text)
	if err != nil {
		return fmt.Errorf("create digest for %s: %w", day, err)
	}

	if err := p.storage.PutMessageRef(ctx, day, ref); err != nil {
		return err
	}

	p.log.Info("digest published", "day", day, "ref", ref)

	return nil
}

// lock serialises submits of one day. The entry is dropped once nobody holds it.
func (p *Publisher) lock(day string) func() {
	p.mu.Lock()
	l, ok := p.locks[day]
	if !ok {
		l = &dayLock{}
		p.locks[day] = l
	}
	l.refs++
	p.mu.Unlock()

	l.Lock()

	return func() {
		l.Unlock()

		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, day)
		}
		p.mu.Unlock()
	}
}
