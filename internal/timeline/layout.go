package timeline

import (
	"cmp"
	"slices"
	"time"

	"kioskcal/internal/model"
)

// MinHeightPercent is the smallest height an item is given so that very
// short events stay visible and clickable.
const MinHeightPercent = 2.0

// LayoutItem is the geometry of one visible event inside a window.
// Renderers place it at left = Column * (100 / TotalColumns) percent with
// width 100 / TotalColumns.
type LayoutItem struct {
	EventID string `json:"event_id"`

	Top          float64 `json:"top"`
	Height       float64 `json:"height"`
	EndPosition  float64 `json:"end_position"`
	Column       int     `json:"column"`
	TotalColumns int     `json:"total_columns"`

	// Start/End are the event bounds after clipping to the window.
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (it LayoutItem) overlaps(other LayoutItem) bool {
	return it.Top < other.EndPosition && other.Top < it.EndPosition
}

// Layout positions the timed events of one lane inside w.
//
// All-day events, events outside the window and zero-length events are
// dropped. The result is ordered by Top, ties kept in input order. Columns
// are assigned first-fit, which uses exactly as many columns as the largest
// set of mutually overlapping items. TotalColumns is shared by every item
// of a transitively overlapping cluster.
//
// Cluster detection compares item pairs and is O(n^2) in the worst case;
// a single personal calendar window holds a few dozen events at most.
func Layout(w Window, events []model.Event) []LayoutItem {
	items := make([]LayoutItem, 0, len(events))
	if w.TotalMinutes <= 0 {
		return items
	}

	for _, ev := range events {
		if ev.AllDay {
			continue
		}
		if it, ok := place(w, ev); ok {
			items = append(items, it)
		}
	}

	slices.SortStableFunc(items, func(a, b LayoutItem) int {
		return cmp.Compare(a.Top, b.Top)
	})

	assignColumns(items)
	assignTotalColumns(items)

	return items
}

// place clips ev to w and computes its vertical geometry.
func place(w Window, ev model.Event) (LayoutItem, bool) {
	start := ev.Start
	if start.Before(w.Start) {
		start = w.Start
	}
	end := ev.End
	if end.After(w.End) {
		end = w.End
	}
	if !end.After(start) {
		return LayoutItem{}, false
	}

	top := w.Percent(start)
	// End is mapped directly so back-to-back events meet exactly.
	endPos := w.Percent(end)
	height := endPos - top
	if height < MinHeightPercent {
		height = MinHeightPercent
		endPos = top + height
		// Stretched items ending past the window are lifted to stay inside it.
		if endPos > 100 {
			top = max(100-height, 0)
			endPos = top + height
		}
	}
	if height <= 0 {
		return LayoutItem{}, false
	}

	return LayoutItem{
		EventID:     ev.ID,
		Top:         top,
		Height:      height,
		EndPosition: endPos,
		Start:       start,
		End:         end,
	}, true
}

// assignColumns packs items, already sorted by Top, into the first column
// whose last item has ended by the time the next one starts.
func assignColumns(items []LayoutItem) {
	var columnEnds []float64
	for i := range items {
		col := -1
		for c, end := range columnEnds {
			if end <= items[i].Top {
				col = c
				break
			}
		}
		if col < 0 {
			col = len(columnEnds)
			columnEnds = append(columnEnds, 0)
		}
		columnEnds[col] = items[i].EndPosition
		items[i].Column = col
	}
}
