// Package termview draws day and week layouts as text, for previewing a
// configuration from the terminal.
package termview

import (
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"kioskcal/internal/model"
	"kioskcal/internal/timeline"
)

const gutterWidth = 6

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	hourStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	allDayStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	clampedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	separator = hourStyle.Render("│")

	// Block backgrounds, picked per calendar.
	palette = []lipgloss.Color{"24", "94", "28", "90", "136", "30"}
)

// Options controls the text canvas.
type Options struct {
	// Width is the total width in cells. Zero means 80.
	Width int
	// RowsPerHour is the vertical resolution. Zero means 2.
	RowsPerHour int
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = 80
	}
	if o.RowsPerHour <= 0 {
		o.RowsPerHour = 2
	}
	return o
}

// RenderDay draws the single-day view. events supplies titles and
// calendars for the laid out items.
func RenderDay(v timeline.DayView, events []model.Event, opts Options) string {
	return render([]timeline.Lane{v.Lane}, map[string][]model.Event{v.DayKey: v.AllDay}, events, opts)
}

// RenderWeek draws the multi-day view with one column per lane.
func RenderWeek(md timeline.MultiDay, events []model.Event, opts Options) string {
	return render(md.Lanes, md.AllDay, events, opts)
}

type cell struct {
	r   rune
	cal string
	set bool
}

func render(lanes []timeline.Lane, allDay map[string][]model.Event, events []model.Event, opts Options) string {
	if len(lanes) == 0 {
		return ""
	}
	opts = opts.withDefaults()

	byID := make(map[string]model.Event, len(events))
	for _, ev := range events {
		byID[ev.ID] = ev
	}

	laneWidth := max((opts.Width-gutterWidth)/len(lanes), 8)
	rows := max(int(math.Ceil(lanes[0].Window.TotalMinutes/60*float64(opts.RowsPerHour))), 1)

	var b strings.Builder

	// Header: day keys, then the all-day strip.
	b.WriteString(strings.Repeat(" ", gutterWidth))
	for _, l := range lanes {
		title := headerStyle.Render(truncate(l.DayKey+" "+l.Date.Weekday().String()[:3], laneWidth-2))
		if l.Window.Clamped {
			title += " " + clampedStyle.Render("!")
		}
		b.WriteString(lipgloss.NewStyle().Width(laneWidth).Render(title))
	}
	b.WriteByte('\n')

	if hasAllDay(lanes, allDay) {
		b.WriteString(strings.Repeat(" ", gutterWidth))
		for _, l := range lanes {
			titles := make([]string, 0, len(allDay[l.DayKey]))
			for _, ev := range allDay[l.DayKey] {
				titles = append(titles, ev.Title)
			}
			b.WriteString(allDayStyle.Width(laneWidth).Render(truncate(strings.Join(titles, ", "), laneWidth)))
		}
		b.WriteByte('\n')
	}

	grids := make([][][]cell, len(lanes))
	for i, l := range lanes {
		grids[i] = drawLane(l, byID, rows, laneWidth-1)
	}

	labels := make(map[int]int)
	for _, hl := range lanes[0].Window.HourLabels {
		labels[int(hl.PositionPercent/100*float64(rows))] = hl.Hour
	}

	for row := 0; row < rows; row++ {
		if h, ok := labels[row]; ok {
			b.WriteString(hourStyle.Render(fmt.Sprintf("%02d:00 ", h)))
		} else {
			b.WriteString(strings.Repeat(" ", gutterWidth))
		}
		for i := range lanes {
			b.WriteString(separator)
			b.WriteString(renderRow(grids[i][row]))
		}
		b.WriteByte('\n')
	}

	return b.String()
}

// drawLane rasterizes the items of one lane into rows x width cells.
func drawLane(l timeline.Lane, byID map[string]model.Event, rows, width int) [][]cell {
	grid := make([][]cell, rows)
	for i := range grid {
		grid[i] = make([]cell, width)
		for j := range grid[i] {
			grid[i][j] = cell{r: ' '}
		}
	}

	for _, it := range l.Items {
		total := max(it.TotalColumns, 1)
		colWidth := max(width/total, 1)
		x0 := min(it.Column*colWidth, width-1)
		x1 := min(x0+colWidth, width)
		if it.Column == total-1 {
			x1 = width
		}

		top := min(int(it.Top/100*float64(rows)), rows-1)
		bottom := min(max(int(math.Ceil(it.EndPosition/100*float64(rows))), top+1), rows)

		ev := byID[it.EventID]
		label := ev.Title
		if label == "" {
			label = it.EventID
		}
		label = it.Start.Format("15:04") + " " + label
		text := []rune(truncate(label, x1-x0-1))

		for y := top; y < bottom; y++ {
			for x := x0; x < x1; x++ {
				r := ' '
				if y == top && x-x0-1 >= 0 && x-x0-1 < len(text) {
					r = text[x-x0-1]
				}
				grid[y][x] = cell{r: r, cal: ev.CalendarID, set: true}
			}
		}
	}
	return grid
}

// renderRow styles runs of cells belonging to the same calendar together.
func renderRow(cells []cell) string {
	var b strings.Builder
	for i := 0; i < len(cells); {
		j := i
		var run strings.Builder
		for j < len(cells) && cells[j].set == cells[i].set && cells[j].cal == cells[i].cal {
			run.WriteRune(cells[j].r)
			j++
		}
		if cells[i].set {
			b.WriteString(blockStyle(cells[i].cal).Render(run.String()))
		} else {
			b.WriteString(run.String())
		}
		i = j
	}
	return b.String()
}

func blockStyle(calendarID string) lipgloss.Style {
	h := fnv.New32a()
	_, _ = h.Write([]byte(calendarID))
	return lipgloss.NewStyle().
		Background(palette[h.Sum32()%uint32(len(palette))]).
		Foreground(lipgloss.Color("15"))
}

func hasAllDay(lanes []timeline.Lane, allDay map[string][]model.Event) bool {
	for _, l := range lanes {
		if len(allDay[l.DayKey]) > 0 {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
