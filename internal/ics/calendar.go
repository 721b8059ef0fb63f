package ics

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	appLog "kioskcal/internal/log"
	"kioskcal/internal/model"
)

// ErrAllSourcesFailed is returned by Loader.Events when no source could be
// fetched or parsed.
var ErrAllSourcesFailed = errors.New("ics: all calendar sources failed")

// Loader runs the fetch, parse and expand pipeline for a set of sources.
type Loader struct {
	fetcher *Fetcher
	sources []Source
	loc     *time.Location
}

// NewLoader creates a Loader. A nil loc means time.Local.
func NewLoader(fetcher *Fetcher, sources []Source, loc *time.Location) *Loader {
	if loc == nil {
		loc = time.Local
	}
	return &Loader{
		fetcher: fetcher,
		sources: sources,
		loc:     loc,
	}
}

// Sources returns the configured sources.
func (l *Loader) Sources() []Source {
	return slices.Clone(l.sources)
}

// Events returns every occurrence intersecting [rangeStart, rangeEnd),
// sorted by start time. Individual source failures are logged; an error is
// returned only when every source failed.
func (l *Loader) Events(ctx context.Context, rangeStart, rangeEnd time.Time) ([]model.Event, error) {
	if len(l.sources) == 0 {
		return []model.Event{}, nil
	}

	results, fetchErrs := l.fetcher.FetchAll(ctx, l.sources)
	failed := len(fetchErrs)

	parsed := make([]ParsedEvent, 0)
	for _, res := range results {
		events, err := ParseICS(res.Source, res.Body)
		if err != nil {
			failed++
			fetchErrs = append(fetchErrs, err)
			appLog.Error("ics parse failed for source", err, "id", res.Source.ID)
			continue
		}
		parsed = append(parsed, events...)
	}

	if failed == len(l.sources) {
		return nil, fmt.Errorf("%w: %w", ErrAllSourcesFailed, errors.Join(fetchErrs...))
	}

	expanded, err := ExpandOccurrences(parsed, ExpandConfig{
		DisplayLocation: l.loc,
		RangeStart:      rangeStart,
		RangeEnd:        rangeEnd,
	})
	if err != nil {
		return nil, err
	}

	events := expanded.Events
	slices.SortStableFunc(events, func(a, b model.Event) int {
		return a.Start.Compare(b.Start)
	})

	appLog.Info("ics events loaded",
		"sources", len(l.sources),
		"failed", failed,
		"events", len(events),
		"truncated", len(expanded.TruncatedEvents),
	)
	return events, nil
}
