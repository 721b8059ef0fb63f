package ics

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	appLog "kioskcal/internal/log"
	"kioskcal/internal/model"
)

const defaultMaxOccurrencesPerEvent = 5000

// ErrInvalidRange is returned when RangeEnd is before RangeStart.
var ErrInvalidRange = errors.New("expand: RangeEnd is before RangeStart")

// ExpandConfig controls recurrence expansion.
type ExpandConfig struct {
	// DisplayLocation is the zone every occurrence is converted to.
	// If nil, time.Local is used.
	DisplayLocation *time.Location

	// Occurrences intersecting [RangeStart, RangeEnd) are returned.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps runaway rules. Zero means
	// defaultMaxOccurrencesPerEvent.
	MaxOccurrencesPerEvent int
}

// ExpandResult holds the expanded events and the UIDs that hit the cap.
type ExpandResult struct {
	Events          []model.Event
	TruncatedEvents []string
}

// ExpandOccurrences turns parsed VEVENTs into concrete events inside the
// configured range, applying RRULE, EXDATE and RECURRENCE-ID overrides.
// Every event is converted to DisplayLocation; all-day events become local
// midnights in that zone.
func ExpandOccurrences(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, ErrInvalidRange
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)
	order := make([]string, 0)

	for _, ev := range events {
		key := ev.Source.ID + "\x00" + ev.UID
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[key] = append(overridesByUID[key], ev)
			continue
		}
		if _, seen := baseByUID[key]; !seen {
			order = append(order, key)
		}
		baseByUID[key] = append(baseByUID[key], ev)
	}

	out := make([]model.Event, 0)
	for _, key := range order {
		ov := overridesByUID[key]
		truncated := false

		for _, ev := range baseByUID[key] {
			occ, hitCap := expandEvent(ev, ov, cfg)
			truncated = truncated || hitCap
			out = append(out, occ...)
		}

		if truncated {
			uid := baseByUID[key][0].UID
			result.TruncatedEvents = append(result.TruncatedEvents, uid)
			appLog.Error("expand: truncated occurrences for UID due to cap",
				errors.New("max occurrences reached"),
				"uid", uid,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
	}

	result.Events = out
	return result, nil
}

func expandEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Event, bool) {
	if ev.RawRRule == "" {
		return expandSingleEvent(ev, overrides, cfg), false
	}
	return expandRecurringEvent(ev, overrides, cfg)
}

func expandSingleEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []model.Event {
	if o, ok := findOverrideForStart(overrides, ev.Start); ok {
		ev = o
	}
	e := makeEvent(ev, ev.Start, ev.End, time.Time{}, cfg.DisplayLocation)
	if !overlaps(e.Start, e.End, cfg.RangeStart, cfg.RangeEnd) {
		return nil
	}
	return []model.Event{e}
}

func expandRecurringEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Event, bool) {
	set, err := buildSet(ev)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}

	dur := ev.End.Sub(ev.Start)
	loc := ev.Start.Location()

	// Start the search one duration early so occurrences already running at
	// RangeStart are kept. All-day dates move to DisplayLocation afterwards,
	// which can shift them by up to a day.
	var pad time.Duration
	if ev.AllDay {
		pad = 24 * time.Hour
	}
	rangeStart := cfg.RangeStart.Add(-dur - pad).In(loc)
	rangeEnd := cfg.RangeEnd.Add(pad).In(loc)

	starts := set.Between(rangeStart, rangeEnd, true)
	hitCap := false
	if len(starts) > cfg.MaxOccurrencesPerEvent {
		starts = starts[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	out := make([]model.Event, 0, len(starts))
	for _, occStart := range starts {
		occEnd := occStart.Add(dur)
		if ev.AllDay {
			occEnd = occStart.AddDate(0, 0, max(int(dur.Hours()+12)/24, 1))
		}

		src := ev
		instance := occStart
		if o, ok := findOverrideForStart(overrides, occStart); ok {
			src = o
			occStart, occEnd = o.Start, o.End
		}
		e := makeEvent(src, occStart, occEnd, instance, cfg.DisplayLocation)
		if !overlaps(e.Start, e.End, cfg.RangeStart, cfg.RangeEnd) {
			continue
		}
		out = append(out, e)
	}

	return out, hitCap
}

func buildSet(ev ParsedEvent) (*rrule.Set, error) {
	opts, err := rrule.StrToROption(ev.RawRRule)
	if err != nil {
		return nil, err
	}
	opts.Dtstart = ev.Start

	r, err := rrule.NewRRule(*opts)
	if err != nil {
		return nil, err
	}

	set := &rrule.Set{}
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}
	return set, nil
}

// findOverrideForStart finds the override whose RECURRENCE-ID equals start.
func findOverrideForStart(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

// makeEvent converts one occurrence into a model.Event in displayLoc.
// A non-zero instance (the RRULE start, before any override) is appended to
// the UID so every occurrence keeps a stable, distinct ID.
func makeEvent(ev ParsedEvent, start, end, instance time.Time, displayLoc *time.Location) model.Event {
	if ev.AllDay {
		start = localMidnight(start, displayLoc)
		end = localMidnight(end, displayLoc)
	} else {
		start = start.In(displayLoc)
		end = end.In(displayLoc)
	}

	id := ev.Source.ID + "/" + ev.UID
	if !instance.IsZero() {
		id = fmt.Sprintf("%s@%s", id, instance.UTC().Format(time.RFC3339))
	}

	return model.Event{
		ID:          id,
		Title:       ev.Summary,
		Location:    ev.Location,
		Description: ev.Description,
		CalendarID:  ev.Source.ID,
		AllDay:      ev.AllDay,
		Start:       start,
		End:         end,
	}
}

// localMidnight keeps the calendar date of t and moves it to midnight in loc.
func localMidnight(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	if !aEnd.After(aStart) {
		// Zero-length events count when they sit inside the range.
		return !aStart.Before(bStart) && aStart.Before(bEnd)
	}
	return aStart.Before(bEnd) && aEnd.After(bStart)
}
