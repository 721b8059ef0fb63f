package timeline

import (
	"reflect"
	"testing"
	"time"

	"kioskcal/internal/model"
)

func TestDayRange(t *testing.T) {
	now := at(15, 30) // Wednesday 2025-03-12

	tests := []struct {
		name      string
		n         int
		start     StartDay
		weekStart time.Weekday
		wantFirst string
		wantLen   int
	}{
		{"today", 5, StartToday, time.Monday, "2025-03-12", 5},
		{"monday week", 7, StartWeekStart, time.Monday, "2025-03-10", 7},
		{"sunday week", 7, StartWeekStart, time.Sunday, "2025-03-09", 7},
		{"week start is today", 3, StartWeekStart, time.Wednesday, "2025-03-12", 3},
		{"too few days", 1, StartToday, time.Monday, "2025-03-12", MinDays},
		{"too many days", 12, StartToday, time.Monday, "2025-03-12", MaxDays},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			days := DayRange(now, tt.n, tt.start, tt.weekStart)
			if len(days) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(days), tt.wantLen)
			}
			if got := DayKey(days[0]); got != tt.wantFirst {
				t.Errorf("first day = %s, want %s", got, tt.wantFirst)
			}
			for i := 1; i < len(days); i++ {
				if days[i].Sub(days[i-1]) != 24*time.Hour {
					t.Errorf("days %d and %d are not consecutive", i-1, i)
				}
				if days[i].Hour() != 0 || days[i].Minute() != 0 {
					t.Errorf("day %d is not a midnight: %v", i, days[i])
				}
			}
		})
	}
}

func TestDays_FixedWindowPerLane(t *testing.T) {
	now := at(15, 30)
	cfg := DaysConfig{
		Window:       FixedWindow(8, 17),
		NumberOfDays: 3,
		StartDay:     StartToday,
	}

	md := Days(now, cfg, nil)
	if len(md.Lanes) != 3 {
		t.Fatalf("expected 3 lanes, got %d", len(md.Lanes))
	}
	for i, lane := range md.Lanes {
		wantStart := time.Date(2025, 3, 12+i, 8, 0, 0, 0, time.UTC)
		if !lane.Window.Start.Equal(wantStart) {
			t.Errorf("lane %d window start = %v, want %v", i, lane.Window.Start, wantStart)
		}
		if lane.Window.TotalMinutes != 600 {
			t.Errorf("lane %d total minutes = %v, want 600", i, lane.Window.TotalMinutes)
		}
		if lane.DayKey != DayKey(wantStart) {
			t.Errorf("lane %d key = %s", i, lane.DayKey)
		}
	}
}

func TestDays_LanesAreIndependent(t *testing.T) {
	now := at(7, 0)
	cfg := DaysConfig{
		Window:       FixedWindow(0, 23),
		NumberOfDays: 3,
		StartDay:     StartToday,
	}

	events := []model.Event{
		// Same clock times on two different days: no cross-day overlap.
		{ID: "wed", Start: at(10, 0), End: at(11, 0)},
		{ID: "thu", Start: at(10, 0).AddDate(0, 0, 1), End: at(11, 0).AddDate(0, 0, 1)},
		{ID: "thu-2", Start: at(10, 30).AddDate(0, 0, 1), End: at(11, 30).AddDate(0, 0, 1)},
		// Spans midnight Wed -> Thu.
		{ID: "overnight", Start: at(23, 0), End: at(2, 0).AddDate(0, 0, 1)},
	}

	md := Days(now, cfg, events)

	wed := byID(md.Lanes[0].Items)
	thu := byID(md.Lanes[1].Items)
	fri := md.Lanes[2].Items

	if wed["wed"].TotalColumns != 1 {
		t.Errorf("wed total columns = %d, want 1", wed["wed"].TotalColumns)
	}
	if thu["thu"].TotalColumns != 2 || thu["thu-2"].TotalColumns != 2 {
		t.Errorf("thu cluster should use 2 columns, got %d/%d", thu["thu"].TotalColumns, thu["thu-2"].TotalColumns)
	}

	overWed, ok := wed["overnight"]
	if !ok {
		t.Fatal("overnight event missing from wednesday lane")
	}
	if !overWed.End.Equal(at(0, 0).AddDate(0, 0, 1)) {
		t.Errorf("wednesday part ends at %v, want midnight", overWed.End)
	}
	overThu, ok := thu["overnight"]
	if !ok {
		t.Fatal("overnight event missing from thursday lane")
	}
	if overThu.Top != 0 {
		t.Errorf("thursday part top = %v, want 0", overThu.Top)
	}
	if len(fri) != 0 {
		t.Errorf("friday lane should be empty, got %d items", len(fri))
	}

	if !events[3].Start.Equal(at(23, 0)) {
		t.Error("Days modified its input events")
	}
}

func TestDays_RollingWindowPerLane(t *testing.T) {
	// Wednesday 14:00, rolling 0/8: every lane shows 14:00-22:00 on its own date.
	now := at(14, 0)
	cfg := DaysConfig{
		Window:       RollingWindow(0, 8),
		NumberOfDays: 7,
		StartDay:     StartWeekStart,
		WeekStart:    time.Monday,
	}

	var events []model.Event
	for i := -2; i < 5; i++ {
		events = append(events, model.Event{
			ID:    DayKey(now.AddDate(0, 0, i)),
			Start: at(15, 0).AddDate(0, 0, i),
			End:   at(16, 0).AddDate(0, 0, i),
		})
	}
	// Before the window on its day.
	events = append(events, model.Event{ID: "morning", Start: at(9, 0).AddDate(0, 0, 1), End: at(10, 0).AddDate(0, 0, 1)})

	md := Days(now, cfg, events)
	if len(md.Lanes) != 7 {
		t.Fatalf("expected 7 lanes, got %d", len(md.Lanes))
	}
	for i, lane := range md.Lanes {
		offset := i - 2
		wantStart := at(14, 0).AddDate(0, 0, offset)
		wantEnd := at(22, 0).AddDate(0, 0, offset)
		if !lane.Window.Start.Equal(wantStart) || !lane.Window.End.Equal(wantEnd) {
			t.Errorf("lane %s window = [%v, %v), want [%v, %v)", lane.DayKey, lane.Window.Start, lane.Window.End, wantStart, wantEnd)
		}
		if len(lane.Items) != 1 || lane.Items[0].EventID != lane.DayKey {
			t.Errorf("lane %s items = %+v, want only %s", lane.DayKey, lane.Items, lane.DayKey)
		}
		if len(lane.Window.HourLabels) != 8 || lane.Window.HourLabels[0].Hour != 14 {
			t.Errorf("lane %s labels = %+v", lane.DayKey, lane.Window.HourLabels)
		}
	}
}

func TestDays_RollingLookBackAcrossMidnight(t *testing.T) {
	// 00:30 with a two hour look-back starts each lane at 22:30 the evening before.
	now := at(0, 30)
	cfg := DaysConfig{
		Window:       RollingWindow(120, 4),
		NumberOfDays: 3,
		StartDay:     StartToday,
	}

	md := Days(now, cfg, nil)
	for i, lane := range md.Lanes {
		want := at(22, 30).AddDate(0, 0, i-1)
		if !lane.Window.Start.Equal(want) {
			t.Errorf("lane %d start = %v, want %v", i, lane.Window.Start, want)
		}
	}
}

func TestDays_AllDayBuckets(t *testing.T) {
	now := at(9, 0)
	cfg := DaysConfig{
		Window:       FixedWindow(6, 21),
		NumberOfDays: 4,
		StartDay:     StartWeekStart,
		WeekStart:    time.Monday,
		DedupAllDay:  true,
	}
	events := []model.Event{
		allDayEvent("a", "Conference", 11, 13),
		allDayEvent("b", "conference", 11, 12),
	}

	md := Days(now, cfg, events)
	if len(md.AllDay) != 4 {
		t.Fatalf("expected 4 day buckets, got %d", len(md.AllDay))
	}
	if got := ids(md.AllDay["2025-03-11"]); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("2025-03-11 = %v, want [a]", got)
	}
	if got := ids(md.AllDay["2025-03-12"]); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("2025-03-12 = %v, want [a]", got)
	}
	for _, lane := range md.Lanes {
		if len(lane.Items) != 0 {
			t.Errorf("all-day events leaked into lane %s", lane.DayKey)
		}
	}
}

func TestDay_SingleLane(t *testing.T) {
	now := at(22, 0)
	events := []model.Event{
		{ID: "late", Start: at(23, 0), End: at(1, 0).AddDate(0, 0, 1)},
		allDayEvent("hol", "Holiday", 12, 13),
	}

	view := Day(now, RollingWindow(0, 4), events, true)

	if view.DayKey != "2025-03-12" {
		t.Errorf("day key = %s", view.DayKey)
	}
	if len(view.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(view.Items))
	}
	// The lane is not cut at midnight in the single-day view.
	if !view.Items[0].End.Equal(at(1, 0).AddDate(0, 0, 1)) {
		t.Errorf("item end = %v, want 01:00 next day", view.Items[0].End)
	}
	if len(view.AllDay) != 1 || view.AllDay[0].ID != "hol" {
		t.Errorf("all-day = %v, want [hol]", ids(view.AllDay))
	}
}

func TestDays_Idempotent(t *testing.T) {
	now := at(10, 0)
	cfg := DaysConfig{Window: FixedWindow(7, 19), NumberOfDays: 5, StartDay: StartToday}
	events := []model.Event{
		{ID: "a", Start: at(9, 0), End: at(10, 0)},
		{ID: "b", Start: at(9, 30), End: at(11, 0).AddDate(0, 0, 2)},
	}

	first := Days(now, cfg, events)
	second := Days(now, cfg, events)
	if !reflect.DeepEqual(first, second) {
		t.Error("Days is not idempotent")
	}
}
