package timeline

import (
	"time"

	"kioskcal/internal/model"
)

// StartDay selects the first day of a multi-day view.
type StartDay string

const (
	StartToday     StartDay = "today"
	StartWeekStart StartDay = "weekStart"
)

const (
	MinDays = 3
	MaxDays = 7
)

// DaysConfig configures a multi-day view.
type DaysConfig struct {
	Window       WindowConfig
	NumberOfDays int
	StartDay     StartDay
	// WeekStart is the first weekday used by StartWeekStart.
	WeekStart   time.Weekday
	DedupAllDay bool
}

// Lane is one calendar day's independent timeline.
type Lane struct {
	DayKey string       `json:"day_key"`
	Date   time.Time    `json:"date"`
	Window Window       `json:"window"`
	Items  []LayoutItem `json:"items"`
}

// DayView is the single-day view: one lane plus that day's all-day events.
type DayView struct {
	Lane
	AllDay []model.Event `json:"all_day"`
}

// MultiDay is the multi-day (week) view.
type MultiDay struct {
	Lanes  []Lane                   `json:"lanes"`
	AllDay map[string][]model.Event `json:"all_day"`
}

// Day lays out the single-day view for now. A rolling window that crosses
// midnight keeps the events after midnight in the same lane.
func Day(now time.Time, cfg WindowConfig, events []model.Event, dedupAllDay bool) DayView {
	today := midnight(now)
	w := Resolve(now, cfg)
	key := DayKey(today)

	return DayView{
		Lane: Lane{
			DayKey: key,
			Date:   today,
			Window: w,
			Items:  Layout(w, events),
		},
		AllDay: GroupAllDay([]time.Time{today}, events, dedupAllDay)[key],
	}
}

// Days lays out one lane per day of the configured range. Every lane gets
// the configured window on its own date; a rolling window keeps the clock
// span computed from now, so all lanes show the same hours. Each lane
// only sees the part of each event that falls on its own calendar day, so
// lanes never affect each other's columns.
func Days(now time.Time, cfg DaysConfig, events []model.Event) MultiDay {
	days := DayRange(now, cfg.NumberOfDays, cfg.StartDay, cfg.WeekStart)

	lanes := make([]Lane, 0, len(days))
	for _, day := range days {
		w := resolveOn(day, now, cfg.Window)
		lanes = append(lanes, Lane{
			DayKey: DayKey(day),
			Date:   day,
			Window: w,
			Items:  Layout(w, eventsOnDay(events, day)),
		})
	}

	return MultiDay{
		Lanes:  lanes,
		AllDay: GroupAllDay(days, events, cfg.DedupAllDay),
	}
}

// DayRange returns n consecutive local midnights (n clamped to
// MinDays..MaxDays) starting today or at the most recent weekStart.
func DayRange(now time.Time, n int, start StartDay, weekStart time.Weekday) []time.Time {
	n = min(max(n, MinDays), MaxDays)

	first := midnight(now)
	if start == StartWeekStart {
		offset := (int(first.Weekday()) - int(weekStart) + 7) % 7
		first = first.AddDate(0, 0, -offset)
	}

	days := make([]time.Time, n)
	for i := range days {
		days[i] = first.AddDate(0, 0, i)
	}
	return days
}

// eventsOnDay returns copies of the timed events intersecting the calendar
// day starting at day, clipped to that day.
func eventsOnDay(events []model.Event, day time.Time) []model.Event {
	dayEnd := day.AddDate(0, 0, 1)

	out := make([]model.Event, 0)
	for _, ev := range events {
		if ev.AllDay || !ev.Overlaps(day, dayEnd) {
			continue
		}
		clipped := ev
		if clipped.Start.Before(day) {
			clipped.Start = day
		}
		if clipped.End.After(dayEnd) {
			clipped.End = dayEnd
		}
		out = append(out, clipped)
	}
	return out
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
