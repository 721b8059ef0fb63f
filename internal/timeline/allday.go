package timeline

import (
	"strings"
	"time"

	"kioskcal/internal/model"
)

// DayKeyLayout formats the keys of all-day buckets and lanes.
const DayKeyLayout = "2006-01-02"

// DayKey returns the calendar-day key of t in its own location.
func DayKey(t time.Time) string {
	return t.Format(DayKeyLayout)
}

// GroupAllDay buckets the all-day events among events by the days they
// cover. Every day in days gets a bucket, possibly empty. Spans are compared
// by calendar date only; End is exclusive, and an End on or before the
// start date counts as a single day.
//
// With dedup set, events with the same trimmed, case-folded title are kept
// once per day (first occurrence wins), which hides the same holiday
// subscribed through two calendars.
func GroupAllDay(days []time.Time, events []model.Event, dedup bool) map[string][]model.Event {
	buckets := make(map[string][]model.Event, len(days))

	for _, day := range days {
		key := DayKey(day)
		d := civilDate(day)

		seen := make(map[string]struct{})
		bucket := make([]model.Event, 0)

		for _, ev := range events {
			if !ev.AllDay || !coversDate(ev, d) {
				continue
			}
			if dedup {
				titleKey := strings.ToLower(strings.TrimSpace(ev.Title))
				if _, dup := seen[titleKey]; dup {
					continue
				}
				seen[titleKey] = struct{}{}
			}
			bucket = append(bucket, ev)
		}

		// A repeated day in days keeps its first bucket.
		if _, ok := buckets[key]; !ok {
			buckets[key] = bucket
		}
	}

	return buckets
}

func coversDate(ev model.Event, d time.Time) bool {
	start := civilDate(ev.Start)
	end := civilDate(ev.End)
	if !end.After(start) {
		end = start.AddDate(0, 0, 1)
	}
	return !d.Before(start) && d.Before(end)
}

// civilDate drops the clock and location of t, keeping its local date.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
