package dashboard

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	appLog "kioskcal/internal/log"
	"kioskcal/internal/model"
	"kioskcal/internal/timeline"
)

// ErrAlreadyStarted is returned by Start on a running service.
var ErrAlreadyStarted = errors.New("dashboard: already started")

// EventSource supplies events intersecting [rangeStart, rangeEnd).
type EventSource interface {
	Events(ctx context.Context, rangeStart, rangeEnd time.Time) ([]model.Event, error)
}

// CaptureFunc renders the current dashboard to an image.
type CaptureFunc func(ctx context.Context) error

// Options configures a Service.
type Options struct {
	Days timeline.DaysConfig

	// ShowAllDay controls whether all-day events are published.
	ShowAllDay bool

	// Location is the display zone; nil means time.Local.
	Location *time.Location

	// HorizonDays is how far ahead events are requested.
	HorizonDays int

	// Cron specs. Empty TickSpec defaults to "@every 1m" and empty
	// RefreshSpec to "*/15 * * * *". CaptureSpec is only used with Capture.
	TickSpec    string
	RefreshSpec string
	CaptureSpec string

	Capture CaptureFunc

	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Snapshot is the published state: the layouts computed on the last tick
// and the events they were computed from.
type Snapshot struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Day         timeline.DayView  `json:"day"`
	Week        timeline.MultiDay `json:"week"`
	Events      []model.Event     `json:"events"`
	RefreshedAt time.Time         `json:"refreshed_at"`
	RefreshErr  string            `json:"refresh_error,omitempty"`
}

// Service keeps a layout snapshot current. A cron tick recomputes the
// layouts from the last fetched events; a slower refresh job re-fetches
// them.
type Service struct {
	src  EventSource
	opts Options

	cron    *cron.Cron
	started atomic.Bool

	// refreshGen orders refreshes; a result older than the last applied one
	// is dropped.
	refreshGen atomic.Uint64

	mu          sync.RWMutex
	events      []model.Event
	appliedGen  uint64
	refreshedAt time.Time
	refreshErr  error
	snap        Snapshot
}

// New creates a Service. The first snapshot is computed immediately, with
// no events.
func New(src EventSource, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = 7
	}
	if opts.TickSpec == "" {
		opts.TickSpec = "@every 1m"
	}
	if opts.RefreshSpec == "" {
		opts.RefreshSpec = "*/15 * * * *"
	}

	s := &Service{
		src:  src,
		opts: opts,
		cron: cron.New(cron.WithLocation(opts.Location)),
	}
	s.Tick()
	return s
}

// Start runs an initial refresh and starts the cron jobs. A failed initial
// refresh is logged; the service still starts and retries on schedule.
func (s *Service) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	if _, err := s.cron.AddFunc(s.opts.TickSpec, func() { s.Tick() }); err != nil {
		return fmt.Errorf("scheduling tick %q: %w", s.opts.TickSpec, err)
	}
	if _, err := s.cron.AddFunc(s.opts.RefreshSpec, func() {
		if err := s.Refresh(ctx); err != nil {
			appLog.Error("scheduled refresh failed", err)
		}
	}); err != nil {
		return fmt.Errorf("scheduling refresh %q: %w", s.opts.RefreshSpec, err)
	}
	if s.opts.Capture != nil && s.opts.CaptureSpec != "" {
		if _, err := s.cron.AddFunc(s.opts.CaptureSpec, func() { s.capture(ctx) }); err != nil {
			return fmt.Errorf("scheduling capture %q: %w", s.opts.CaptureSpec, err)
		}
	}

	if err := s.Refresh(ctx); err != nil {
		appLog.Error("initial refresh failed", err)
	}

	s.cron.Start()
	appLog.Info("dashboard started",
		"tick", s.opts.TickSpec,
		"refresh", s.opts.RefreshSpec,
		"capture", s.opts.Capture != nil && s.opts.CaptureSpec != "",
	)
	return nil
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Service) Stop() {
	if !s.started.Load() {
		return
	}
	<-s.cron.Stop().Done()
	appLog.Info("dashboard stopped")
}

// Refresh re-fetches events and recomputes the snapshot. On error the
// previous events stay in place.
func (s *Service) Refresh(ctx context.Context) error {
	gen := s.refreshGen.Add(1)
	now := s.now()
	rangeStart, rangeEnd := s.fetchRange(now)

	events, err := s.src.Events(ctx, rangeStart, rangeEnd)

	s.mu.Lock()
	if gen < s.appliedGen {
		s.mu.Unlock()
		appLog.Debug("refresh result superseded", "gen", gen)
		return err
	}
	s.appliedGen = gen
	s.refreshErr = err
	if err == nil {
		s.events = events
		s.refreshedAt = now
	}
	s.mu.Unlock()

	if err != nil {
		s.Tick()
		return fmt.Errorf("refreshing events: %w", err)
	}

	appLog.Info("events refreshed", "count", len(events))
	s.Tick()
	return nil
}

// Tick recomputes the layouts for the current time from the last fetched
// events and publishes the result.
func (s *Service) Tick() Snapshot {
	now := s.now()

	s.mu.RLock()
	events := s.events
	refreshedAt := s.refreshedAt
	refreshErr := s.refreshErr
	s.mu.RUnlock()

	snap := Build(now, s.opts.Days, s.opts.ShowAllDay, events)
	snap.RefreshedAt = refreshedAt
	if refreshErr != nil {
		snap.RefreshErr = refreshErr.Error()
	}

	s.mu.Lock()
	// A concurrent tick may have published a newer snapshot already.
	if !snap.GeneratedAt.Before(s.snap.GeneratedAt) {
		s.snap = snap
	}
	s.mu.Unlock()

	appLog.Debug("layout tick",
		"now", now.Format(time.RFC3339),
		"day_items", len(snap.Day.Items),
		"lanes", len(snap.Week.Lanes),
	)
	return snap
}

// Snapshot returns the last published snapshot.
func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Build computes a snapshot for now from events without touching any
// service state.
func Build(now time.Time, cfg timeline.DaysConfig, showAllDay bool, events []model.Event) Snapshot {
	day := timeline.Day(now, cfg.Window, events, cfg.DedupAllDay)
	week := timeline.Days(now, cfg, events)
	if !showAllDay {
		day.AllDay = []model.Event{}
		week.AllDay = map[string][]model.Event{}
	}
	if events == nil {
		events = []model.Event{}
	}

	return Snapshot{
		GeneratedAt: now,
		Day:         day,
		Week:        week,
		Events:      slices.Clip(events),
	}
}

func (s *Service) capture(ctx context.Context) {
	start := time.Now()
	if err := s.opts.Capture(ctx); err != nil {
		appLog.Error("dashboard capture failed", err)
		return
	}
	appLog.Info("dashboard captured", "elapsed", time.Since(start).String())
}

// fetchRange covers every lane a multi-day view can show plus the rolling
// look-back, and HorizonDays ahead.
func (s *Service) fetchRange(now time.Time) (time.Time, time.Time) {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	ahead := max(s.opts.HorizonDays, timeline.MaxDays) + 1
	return today.AddDate(0, 0, -timeline.MaxDays), today.AddDate(0, 0, ahead)
}

func (s *Service) now() time.Time {
	return s.opts.Now().In(s.opts.Location)
}
