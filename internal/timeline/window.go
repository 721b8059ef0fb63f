// Package timeline computes calendar timeline geometry: the visible time
// window, per-event vertical position and height as percentages of that
// window, and overlap-aware column packing.
//
// Everything here is a pure function of its arguments. Callers pass the
// reference instant explicitly; nothing reads the wall clock, fetches data,
// converts timezones or caches results.
package timeline

import (
	"errors"
	"fmt"
	"time"
)

// Mode selects how the visible window is derived from the reference instant.
type Mode string

const (
	// ModeFixed shows the same hours of the current day on every render.
	ModeFixed Mode = "fixed"
	// ModeRolling shows a window that slides with the reference instant.
	ModeRolling Mode = "rolling"
)

// ErrInvalidWindow is wrapped by WindowConfig.Validate.
var ErrInvalidWindow = errors.New("timeline: invalid window")

// WindowConfig describes the visible window. Only the fields relevant to
// Mode are consulted.
type WindowConfig struct {
	Mode Mode `yaml:"mode" json:"mode"`

	// Fixed mode: [StartHour:00, (EndHour+1):00) of the day.
	StartHour int `yaml:"start_hour" json:"start_hour"`
	EndHour   int `yaml:"end_hour" json:"end_hour"`

	// Rolling mode: [now - LookBackMinutes, +DurationHours).
	LookBackMinutes int `yaml:"look_back_minutes" json:"look_back_minutes"`
	DurationHours   int `yaml:"duration_hours" json:"duration_hours"`
}

// FixedWindow returns a fixed-hours WindowConfig.
func FixedWindow(startHour, endHour int) WindowConfig {
	return WindowConfig{Mode: ModeFixed, StartHour: startHour, EndHour: endHour}
}

// RollingWindow returns a rolling WindowConfig.
func RollingWindow(lookBackMinutes, durationHours int) WindowConfig {
	return WindowConfig{Mode: ModeRolling, LookBackMinutes: lookBackMinutes, DurationHours: durationHours}
}

// Validate reports whether c yields a non-empty window. Fixed windows may
// not cross midnight.
func (c WindowConfig) Validate() error {
	switch c.Mode {
	case ModeFixed:
		if c.StartHour < 0 || c.StartHour > 23 {
			return fmt.Errorf("%w: start_hour %d out of range 0..23", ErrInvalidWindow, c.StartHour)
		}
		if c.EndHour < 0 || c.EndHour > 23 {
			return fmt.Errorf("%w: end_hour %d out of range 0..23", ErrInvalidWindow, c.EndHour)
		}
		if c.EndHour < c.StartHour {
			return fmt.Errorf("%w: end_hour %d before start_hour %d", ErrInvalidWindow, c.EndHour, c.StartHour)
		}
	case ModeRolling:
		if c.LookBackMinutes < 0 {
			return fmt.Errorf("%w: negative look_back_minutes %d", ErrInvalidWindow, c.LookBackMinutes)
		}
		if c.DurationHours <= 0 {
			return fmt.Errorf("%w: duration_hours must be positive, got %d", ErrInvalidWindow, c.DurationHours)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidWindow, c.Mode)
	}
	return nil
}

// HourLabel is a gridline mark at a whole hour inside the window.
type HourLabel struct {
	Hour            int     `json:"hour"`
	PositionPercent float64 `json:"position_percent"`
}

// Window is a resolved visible interval [Start, End).
type Window struct {
	Start        time.Time   `json:"start"`
	End          time.Time   `json:"end"`
	TotalMinutes float64     `json:"total_minutes"`
	HourLabels   []HourLabel `json:"hour_labels"`

	// Clamped is set when the config was invalid and the window fell back
	// to a single hour.
	Clamped bool `json:"clamped,omitempty"`
}

// Resolve computes the visible window for now. Invalid configurations never
// produce an empty window: they fall back to one hour from the computed
// start.
func Resolve(now time.Time, cfg WindowConfig) Window {
	return resolveOn(now, now, cfg)
}

// resolveOn resolves cfg for the calendar day of day. Fixed windows take
// their hours from day. Rolling windows are computed from now and moved onto
// day's date, keeping the same wall-clock span.
func resolveOn(day, now time.Time, cfg WindowConfig) Window {
	var start, end time.Time

	switch cfg.Mode {
	case ModeRolling:
		lookBack := max(cfg.LookBackMinutes, 0)
		start = now.Truncate(time.Minute).Add(-time.Duration(lookBack) * time.Minute)
		start = start.AddDate(0, 0, daysBetween(now, day))
		end = start.Add(time.Duration(cfg.DurationHours) * time.Hour)
	default:
		y, m, d := day.Date()
		loc := day.Location()
		start = time.Date(y, m, d, clampHour(cfg.StartHour), 0, 0, 0, loc)
		// EndHour 23 normalizes to the next midnight.
		end = time.Date(y, m, d, clampHour(cfg.EndHour)+1, 0, 0, 0, loc)
	}

	clamped := cfg.Validate() != nil
	if clamped || !end.After(start) {
		end = start.Add(time.Hour)
		clamped = true
	}

	return newWindow(start, end, clamped)
}

// daysBetween counts calendar days from a's date to b's date.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

func newWindow(start, end time.Time, clamped bool) Window {
	w := Window{
		Start:        start,
		End:          end,
		TotalMinutes: end.Sub(start).Minutes(),
		Clamped:      clamped,
	}
	w.HourLabels = w.hourLabels()
	return w
}

// hourLabels emits one label per whole-hour instant in [Start, End).
func (w Window) hourLabels() []HourLabel {
	y, m, d := w.Start.Date()
	first := time.Date(y, m, d, w.Start.Hour(), 0, 0, 0, w.Start.Location())
	if first.Before(w.Start) {
		first = first.Add(time.Hour)
	}

	labels := make([]HourLabel, 0, int(w.TotalMinutes/60)+1)
	for t := first; t.Before(w.End); t = t.Add(time.Hour) {
		labels = append(labels, HourLabel{
			Hour:            t.Hour(),
			PositionPercent: w.Percent(t),
		})
	}
	return labels
}

// Percent maps t onto the window's 0..100 vertical axis. Values outside the
// window map outside that range.
func (w Window) Percent(t time.Time) float64 {
	if w.TotalMinutes <= 0 {
		return 0
	}
	return t.Sub(w.Start).Minutes() / w.TotalMinutes * 100
}

// Contains reports whether t lies in [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func clampHour(h int) int {
	return min(max(h, 0), 23)
}
