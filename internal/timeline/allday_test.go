package timeline

import (
	"testing"
	"time"

	"kioskcal/internal/model"
)

func date(d int) time.Time {
	return time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC)
}

func allDayEvent(id, title string, startDay, endDay int) model.Event {
	return model.Event{
		ID:     id,
		Title:  title,
		AllDay: true,
		Start:  date(startDay),
		End:    date(endDay),
	}
}

func ids(events []model.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.ID)
	}
	return out
}

func TestGroupAllDay_Spans(t *testing.T) {
	days := []time.Time{date(10), date(11), date(12), date(13)}
	events := []model.Event{
		allDayEvent("trip", "Trip", 10, 13), // 10, 11, 12
		allDayEvent("single", "Dentist", 12, 13),
		allDayEvent("degenerate", "Zero length", 13, 13),
		allDayEvent("outside", "Last week", 3, 5),
		timed("timed", 9, 0, 10, 0),
	}

	got := GroupAllDay(days, events, false)

	want := map[string][]string{
		"2025-03-10": {"trip"},
		"2025-03-11": {"trip"},
		"2025-03-12": {"trip", "single"},
		"2025-03-13": {"degenerate"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d buckets, want %d", len(got), len(want))
	}
	for key, wantIDs := range want {
		gotIDs := ids(got[key])
		if len(gotIDs) != len(wantIDs) {
			t.Errorf("%s: got %v, want %v", key, gotIDs, wantIDs)
			continue
		}
		for i := range wantIDs {
			if gotIDs[i] != wantIDs[i] {
				t.Errorf("%s: got %v, want %v", key, gotIDs, wantIDs)
				break
			}
		}
	}
}

func TestGroupAllDay_EmptyDaysPresent(t *testing.T) {
	got := GroupAllDay([]time.Time{date(20)}, nil, true)
	bucket, ok := got["2025-03-20"]
	if !ok {
		t.Fatal("expected a bucket for every requested day")
	}
	if bucket == nil || len(bucket) != 0 {
		t.Errorf("expected empty non-nil bucket, got %v", bucket)
	}
}

func TestGroupAllDay_Dedup(t *testing.T) {
	days := []time.Time{date(10), date(11)}
	events := []model.Event{
		allDayEvent("work-holiday", "Public Holiday", 10, 11),
		allDayEvent("home-holiday", "  public holiday ", 10, 11),
		allDayEvent("bday", "Birthday", 10, 12),
		allDayEvent("bday-dup", "BIRTHDAY", 11, 12),
	}

	deduped := GroupAllDay(days, events, true)
	if got := ids(deduped["2025-03-10"]); len(got) != 2 || got[0] != "work-holiday" || got[1] != "bday" {
		t.Errorf("day 10 deduped = %v, want [work-holiday bday]", got)
	}
	if got := ids(deduped["2025-03-11"]); len(got) != 1 || got[0] != "bday" {
		t.Errorf("day 11 deduped = %v, want [bday]", got)
	}

	all := GroupAllDay(days, events, false)
	if got := ids(all["2025-03-10"]); len(got) != 3 {
		t.Errorf("day 10 without dedup = %v, want 3 events", got)
	}
	if got := ids(all["2025-03-11"]); len(got) != 2 {
		t.Errorf("day 11 without dedup = %v, want 2 events", got)
	}
}

func TestGroupAllDay_DateOnlyComparison(t *testing.T) {
	// Midnights in a zone east of UTC are still the 10th locally.
	loc := time.FixedZone("UTC+9", 9*60*60)
	ev := model.Event{
		ID:     "local",
		Title:  "Local holiday",
		AllDay: true,
		Start:  time.Date(2025, 3, 10, 0, 0, 0, 0, loc),
		End:    time.Date(2025, 3, 11, 0, 0, 0, 0, loc),
	}
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, loc)

	got := GroupAllDay([]time.Time{day, day.AddDate(0, 0, 1)}, []model.Event{ev}, false)
	if len(got["2025-03-10"]) != 1 {
		t.Errorf("expected event on the 10th, got %v", ids(got["2025-03-10"]))
	}
	if len(got["2025-03-11"]) != 0 {
		t.Errorf("exclusive end leaked into the 11th: %v", ids(got["2025-03-11"]))
	}
}
