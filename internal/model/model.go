package model

import "time"

// Event is a single concrete calendar entry as consumed by the layout
// engine. Recurring events have already been expanded into one Event per
// occurrence and all times are in the viewer's display timezone.
type Event struct {
	// ID is stable across renders for the same occurrence.
	ID string `json:"id"`

	Title       string `json:"title"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`

	// CalendarID identifies the source calendar. Only used by renderers
	// to pick a color.
	CalendarID string `json:"calendar_id"`

	// AllDay events span whole local days; Start/End are midnights and
	// End is exclusive.
	AllDay bool `json:"all_day"`

	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns End - Start.
func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Overlaps reports whether e intersects the half-open range [start, end).
func (e Event) Overlaps(start, end time.Time) bool {
	return e.Start.Before(end) && e.End.After(start)
}
