package ics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

var sampleICS = strings.Join([]string{
	"BEGIN:VCALENDAR",
	"VERSION:2.0",
	"PRODID:-//kioskcal//test//EN",
	"BEGIN:VEVENT",
	"UID:standup-1",
	"SUMMARY:Standup",
	"DTSTART:20250312T080000Z",
	"DTEND:20250312T083000Z",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:weekly-1",
	"SUMMARY:Planning",
	"DTSTART:20250312T090000Z",
	"DTEND:20250312T100000Z",
	"RRULE:FREQ=WEEKLY;COUNT=10",
	"EXDATE:20250319T090000Z",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:weekly-1",
	"SUMMARY:Planning (moved)",
	"RECURRENCE-ID:20250326T090000Z",
	"DTSTART:20250326T130000Z",
	"DTEND:20250326T140000Z",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:trip-1",
	"SUMMARY:Trip",
	"DTSTART;VALUE=DATE:20250313",
	"DTEND;VALUE=DATE:20250315",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"SUMMARY:No UID",
	"DTSTART:20250314T100000Z",
	"DTEND:20250314T110000Z",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:broken-1",
	"SUMMARY:Broken",
	"END:VEVENT",
	"END:VCALENDAR",
	"",
}, "\r\n")

var testSource = Source{ID: "work", URL: "https://example.com/work.ics"}

func utc(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestParseICS(t *testing.T) {
	events, err := ParseICS(testSource, []byte(sampleICS))
	if err != nil {
		t.Fatalf("ParseICS: %v", err)
	}
	// The VEVENT without DTSTART is skipped.
	if len(events) != 5 {
		t.Fatalf("got %d events, want 5", len(events))
	}

	weekly := events[1]
	if weekly.RawRRule != "FREQ=WEEKLY;COUNT=10" {
		t.Errorf("rrule = %q", weekly.RawRRule)
	}
	if len(weekly.ExDates) != 1 || !weekly.ExDates[0].Equal(utc(2025, 3, 19, 9, 0)) {
		t.Errorf("exdates = %v", weekly.ExDates)
	}

	override := events[2]
	if !override.IsOverride || override.Recurrence == nil || !override.Recurrence.Equal(utc(2025, 3, 26, 9, 0)) {
		t.Errorf("override not detected: %+v", override)
	}

	trip := events[3]
	if !trip.AllDay {
		t.Error("VALUE=DATE event not marked all-day")
	}
	if days := trip.End.Sub(trip.Start).Hours() / 24; days < 1.9 || days > 2.1 {
		t.Errorf("all-day span = %v days, want 2", days)
	}

	noUID := events[4]
	if noUID.UID == "" {
		t.Fatal("missing UID was not generated")
	}
	again, _ := ParseICS(testSource, []byte(sampleICS))
	if again[4].UID != noUID.UID {
		t.Errorf("generated UID not stable: %q vs %q", noUID.UID, again[4].UID)
	}
}

func TestParseICS_Empty(t *testing.T) {
	if _, err := ParseICS(testSource, []byte("  \r\n")); !errors.Is(err, ErrEmptyBody) {
		t.Errorf("err = %v, want ErrEmptyBody", err)
	}
}

func TestExpandOccurrences(t *testing.T) {
	parsed, err := ParseICS(testSource, []byte(sampleICS))
	if err != nil {
		t.Fatalf("ParseICS: %v", err)
	}

	res, err := ExpandOccurrences(parsed, ExpandConfig{
		DisplayLocation: time.UTC,
		RangeStart:      utc(2025, 3, 10, 0, 0),
		RangeEnd:        utc(2025, 4, 1, 0, 0),
	})
	if err != nil {
		t.Fatalf("ExpandOccurrences: %v", err)
	}

	byID := make(map[string]bool)
	var planning []time.Time
	for _, ev := range res.Events {
		byID[ev.ID] = true
		if ev.CalendarID != "work" {
			t.Errorf("%s: calendar id = %q", ev.ID, ev.CalendarID)
		}
		if strings.HasPrefix(ev.ID, "work/weekly-1@") {
			planning = append(planning, ev.Start)
		}
	}

	if len(res.Events) != 5 {
		t.Errorf("got %d events, want 5: %v", len(res.Events), byID)
	}
	// 03-12 as scheduled, 03-19 excluded, 03-26 moved to 13:00.
	want := []time.Time{utc(2025, 3, 12, 9, 0), utc(2025, 3, 26, 13, 0)}
	if len(planning) != len(want) {
		t.Fatalf("planning occurrences = %v, want %v", planning, want)
	}
	for i := range want {
		if !planning[i].Equal(want[i]) {
			t.Errorf("planning[%d] = %v, want %v", i, planning[i], want[i])
		}
	}
	if !byID["work/weekly-1@2025-03-26T09:00:00Z"] {
		t.Error("override should keep the ID of the instance it replaces")
	}
	if !byID["work/standup-1"] || !byID["work/trip-1"] {
		t.Errorf("single events missing: %v", byID)
	}

	for _, ev := range res.Events {
		if ev.ID == "work/trip-1" {
			if !ev.AllDay || !ev.Start.Equal(utc(2025, 3, 13, 0, 0)) || !ev.End.Equal(utc(2025, 3, 15, 0, 0)) {
				t.Errorf("trip = %+v", ev)
			}
		}
	}
}

func TestExpandOccurrences_Cap(t *testing.T) {
	parsed, _ := ParseICS(testSource, []byte(sampleICS))

	res, err := ExpandOccurrences(parsed, ExpandConfig{
		DisplayLocation:        time.UTC,
		RangeStart:             utc(2025, 3, 1, 0, 0),
		RangeEnd:               utc(2025, 6, 1, 0, 0),
		MaxOccurrencesPerEvent: 2,
	})
	if err != nil {
		t.Fatalf("ExpandOccurrences: %v", err)
	}
	if len(res.TruncatedEvents) != 1 || res.TruncatedEvents[0] != "weekly-1" {
		t.Errorf("truncated = %v", res.TruncatedEvents)
	}
}

func TestExpandOccurrences_InvalidRange(t *testing.T) {
	_, err := ExpandOccurrences(nil, ExpandConfig{
		RangeStart: utc(2025, 3, 2, 0, 0),
		RangeEnd:   utc(2025, 3, 1, 0, 0),
	})
	if !errors.Is(err, ErrInvalidRange) {
		t.Errorf("err = %v, want ErrInvalidRange", err)
	}
}

func TestFetcher_ConditionalRequests(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if code := int(status.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(sampleICS))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	src := Source{ID: "remote", URL: srv.URL + "/private/secret.ics"}
	ctx := context.Background()

	first, err := f.FetchOne(ctx, src)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if first.FromCache || string(first.Body) != sampleICS {
		t.Errorf("first fetch: fromCache=%v, %d bytes", first.FromCache, len(first.Body))
	}

	second, err := f.FetchOne(ctx, src)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if !second.FromCache || string(second.Body) != sampleICS {
		t.Errorf("304 should reuse cached body, fromCache=%v", second.FromCache)
	}

	status.Store(http.StatusBadGateway)
	third, err := f.FetchOne(ctx, src)
	if err != nil {
		t.Fatalf("fetch with server error: %v", err)
	}
	if !third.FromCache {
		t.Error("server error should fall back to cached body")
	}

	_, err = NewFetcher(t.TempDir()).FetchOne(ctx, src)
	if err == nil {
		t.Error("server error without cache should fail")
	}
}

func TestFetcher_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "family.ics")
	if err := os.WriteFile(path, []byte(sampleICS), 0o600); err != nil {
		t.Fatal(err)
	}

	res, err := NewFetcher(t.TempDir()).FetchOne(context.Background(), Source{ID: "family", URL: path})
	if err != nil {
		t.Fatalf("FetchOne: %v", err)
	}
	if string(res.Body) != sampleICS {
		t.Error("file body mismatch")
	}

	if _, err := NewFetcher("").FetchOne(context.Background(), Source{ID: "x"}); !errors.Is(err, ErrEmptySourceURL) {
		t.Errorf("err = %v, want ErrEmptySourceURL", err)
	}
}

func TestLoader_Events(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "work.ics")
	if err := os.WriteFile(good, []byte(sampleICS), 0o600); err != nil {
		t.Fatal(err)
	}

	sources := []Source{
		{ID: "work", URL: good},
		{ID: "missing", URL: filepath.Join(dir, "missing.ics")},
	}
	loader := NewLoader(NewFetcher(filepath.Join(dir, "cache")), sources, time.UTC)

	events, err := loader.Events(context.Background(), utc(2025, 3, 12, 0, 0), utc(2025, 3, 13, 0, 0))
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want standup and planning", len(events))
	}
	if events[0].Title != "Standup" || events[1].Title != "Planning" {
		t.Errorf("events not sorted by start: %q, %q", events[0].Title, events[1].Title)
	}

	onlyMissing := NewLoader(NewFetcher(filepath.Join(dir, "cache")), sources[1:], time.UTC)
	if _, err := onlyMissing.Events(context.Background(), utc(2025, 3, 12, 0, 0), utc(2025, 3, 13, 0, 0)); !errors.Is(err, ErrAllSourcesFailed) {
		t.Errorf("err = %v, want ErrAllSourcesFailed", err)
	}
}

func TestRedactURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://calendar.example.com/private-abc123/basic.ics", "https://calendar.example.com/...(redacted)"},
		{"/srv/calendars/family.ics", "file:family.ics"},
	}
	for _, tt := range tests {
		if got := redactURL(tt.in); got != tt.want {
			t.Errorf("redactURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
