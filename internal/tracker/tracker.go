// Package tracker owns the lifecycle of tracked targets: it validates and
// stores them and keeps exactly one scheduled check job per target.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"pagewatch/internal/detector"
	"pagewatch/internal/eventbus"
	"pagewatch/internal/extract"
	"pagewatch/internal/storage"
	"pagewatch/internal/task/scheduler"
	logx "pagewatch/pkg/logx"
)

var (
	ErrCapacity        = errors.New("tracking limit reached")
	ErrNotFound        = errors.New("url is not tracked")
	ErrUnreachable     = errors.New("url unreachable")
	ErrInvalidURL      = errors.New("invalid url")
	ErrInvalidInterval = errors.New("interval must be at least 1 minute")
)

// CapacityError carries the per-owner limit; it matches ErrCapacity.
type CapacityError struct {
	Limit int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("tracking limit reached (%d URLs)", e.Limit)
}

func (e *CapacityError) Unwrap() error { return ErrCapacity }

type Config struct {
	MaxPerOwner int
	// Night-mode active hours, used as given: 0 and 0 is the midnight hour.
	NightStartHour int
	NightEndHour   int
	// Timezone of the night window; empty uses the scheduler's.
	Timezone string
}

func (c Config) withDefaults() Config {
	if c.MaxPerOwner <= 0 {
		c.MaxPerOwner = 15
	}
	return c
}

type Scheduler interface {
	Upsert(key string, trigger cron.Schedule, run scheduler.RunFunc) error
	Remove(key string) bool
	Location() *time.Location
}

type Prober interface {
	Extract(ctx context.Context, url string) extract.Page
}

type Checker interface {
	RunCheck(ctx context.Context, ownerID int64, url string) error
}

type Service struct {
	cfg     Config
	store   storage.Store
	probe   Prober
	sched   Scheduler
	checker Checker
	bus     eventbus.Bus
	log     logx.Logger
	now     func() time.Time

	// admit serializes the capacity check with the insert.
	admit sync.Mutex
}

func New(cfg Config, store storage.Store, probe Prober, sched Scheduler, checker Checker, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg.withDefaults(),
		store:   store,
		probe:   probe,
		sched:   sched,
		checker: checker,
		bus:     bus,
		log:     log,
		now:     time.Now,
	}
}

func (s *Service) MaxPerOwner() int { return s.cfg.MaxPerOwner }

type TrackRequest struct {
	OwnerID         int64
	Name            string
	URL             string
	IntervalMinutes int
	NightMode       bool
}

// Track starts (or re-configures) tracking of req.URL for req.OwnerID.
// The page must be reachable; its current text becomes the baseline.
// Re-tracking an existing URL keeps its delivery history.
func (s *Service) Track(ctx context.Context, req TrackRequest) (storage.Target, error) {
	u, err := ValidateURL(req.URL)
	if err != nil {
		return storage.Target{}, err
	}
	if req.IntervalMinutes < 1 {
		return storage.Target{}, ErrInvalidInterval
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = hostOf(u)
	}

	if err := s.checkCapacity(ctx, req.OwnerID, u); err != nil {
		return storage.Target{}, err
	}

	page := s.probe.Extract(ctx, u)
	if page.Empty() {
		return storage.Target{}, fmt.Errorf("%w: %s", ErrUnreachable, u)
	}

	t := storage.Target{
		OwnerID:         req.OwnerID,
		URL:             u,
		Name:            name,
		IntervalMinutes: req.IntervalMinutes,
		Fingerprint:     detector.Fingerprint(page.Content),
		CreatedAt:       s.now(),
	}
	if req.NightMode {
		t.Window = s.nightWindow()
	}

	s.admit.Lock()
	err = s.checkCapacity(ctx, req.OwnerID, u)
	if err == nil {
		err = s.store.UpsertTarget(ctx, t)
	}
	s.admit.Unlock()
	if err != nil {
		return storage.Target{}, err
	}

	if err := s.schedule(t); err != nil {
		return storage.Target{}, err
	}
	s.publish(eventbus.TypeTargetTracked, t)
	s.log.Info("target tracked",
		logx.Int64("owner_id", t.OwnerID),
		logx.String("url", t.URL),
		logx.Int("interval_min", t.IntervalMinutes),
		logx.Bool("night", t.Window != nil),
	)
	return t, nil
}

func (s *Service) checkCapacity(ctx context.Context, ownerID int64, u string) error {
	_, exists, err := s.store.GetTarget(ctx, ownerID, u)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	n, err := s.store.CountTargetsByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	if n >= s.cfg.MaxPerOwner {
		return &CapacityError{Limit: s.cfg.MaxPerOwner}
	}
	return nil
}

// Untrack cancels the job, then deletes the record. An unknown URL yields
// ErrNotFound and leaves the scheduler untouched.
func (s *Service) Untrack(ctx context.Context, ownerID int64, rawURL string) error {
	u := strings.TrimSpace(rawURL)
	t, ok, err := s.store.GetTarget(ctx, ownerID, u)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	s.sched.Remove(t.Key())
	if _, err := s.store.DeleteTarget(ctx, ownerID, u); err != nil {
		return err
	}
	s.publish(eventbus.TypeTargetUntracked, t)
	s.log.Info("target untracked", logx.Int64("owner_id", ownerID), logx.String("url", u))
	return nil
}

func (s *Service) List(ctx context.Context, ownerID int64) ([]storage.Target, error) {
	return s.store.ListTargetsByOwner(ctx, ownerID)
}

// Lookup finds one of the owner's targets by job key.
func (s *Service) Lookup(ctx context.Context, ownerID int64, key string) (storage.Target, error) {
	list, err := s.store.ListTargetsByOwner(ctx, ownerID)
	if err != nil {
		return storage.Target{}, err
	}
	for _, t := range list {
		if t.Key() == key {
			return t, nil
		}
	}
	return storage.Target{}, ErrNotFound
}

// UntrackKey is Untrack addressed by job key.
func (s *Service) UntrackKey(ctx context.Context, ownerID int64, key string) (storage.Target, error) {
	t, err := s.Lookup(ctx, ownerID, key)
	if err != nil {
		return t, err
	}
	return t, s.Untrack(ctx, ownerID, t.URL)
}

// ToggleNight flips night mode and re-registers the job with the new
// trigger.
func (s *Service) ToggleNight(ctx context.Context, ownerID int64, key string) (storage.Target, error) {
	t, err := s.Lookup(ctx, ownerID, key)
	if err != nil {
		return t, err
	}
	var w *storage.Window
	if t.Window == nil {
		w = s.nightWindow()
	}
	ok, err := s.store.SetWindow(ctx, ownerID, t.URL, w)
	if err != nil {
		return t, err
	}
	if !ok {
		return t, ErrNotFound
	}
	t.Window = w
	return t, s.schedule(t)
}

// Rehydrate registers a job for every stored target. First runs are spread
// so a restart does not fire every check at once.
func (s *Service) Rehydrate(ctx context.Context) (int, error) {
	all, err := s.store.ListAllTargets(ctx)
	if err != nil {
		return 0, err
	}
	now := s.now()
	n := 0
	for _, t := range all {
		if err := s.schedule(t, scheduler.WithStartupSpread(now, t.Key())); err != nil {
			s.log.Warn("rehydrate target failed", logx.String("key", t.Key()), logx.Err(err))
			continue
		}
		n++
	}
	s.log.Info("targets rehydrated", logx.Int("jobs", n), logx.Int("targets", len(all)))
	return n, nil
}

func (s *Service) schedule(t storage.Target, opts ...scheduler.TriggerOption) error {
	every := time.Duration(t.IntervalMinutes) * time.Minute
	if every <= 0 {
		every = time.Minute
	}
	trig := scheduler.BuildTrigger(every, s.activeWindow(t.Window), opts...)
	owner, u := t.OwnerID, t.URL
	return s.sched.Upsert(t.Key(), trig, func(ctx context.Context) error {
		return s.checker.RunCheck(ctx, owner, u)
	})
}

func (s *Service) nightWindow() *storage.Window {
	return &storage.Window{
		StartHour: s.cfg.NightStartHour,
		EndHour:   s.cfg.NightEndHour,
		Timezone:  s.cfg.Timezone,
	}
}

func (s *Service) activeWindow(w *storage.Window) *scheduler.ActiveWindow {
	if w == nil {
		return nil
	}
	loc := s.sched.Location()
	if tz := strings.TrimSpace(w.Timezone); tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		} else {
			s.log.Warn("invalid window timezone", logx.String("tz", tz), logx.Err(err))
		}
	}
	return &scheduler.ActiveWindow{StartHour: w.StartHour, EndHour: w.EndHour, Loc: loc}
}

func (s *Service) publish(typ string, t storage.Target) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: eventbus.TargetEvent{OwnerID: t.OwnerID, URL: t.URL, Key: t.Key()}})
}

// ValidateURL accepts absolute http(s) URLs with a host and returns the
// trimmed input unchanged otherwise.
func ValidateURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return s, nil
}

func hostOf(u string) string {
	p, err := url.Parse(u)
	if err != nil {
		return u
	}
	return p.Hostname()
}
