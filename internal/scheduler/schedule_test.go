package scheduler

import (
	"testing"
	"time"
)

func TestNextSendTimeDaily(t *testing.T) {
	// Past today's slot: roll to tomorrow.
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	got := NextSendTime(FrequencyDaily, "09:00", now)
	want := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	// Before today's slot: fire later today.
	now = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	got = NextSendTime(FrequencyDaily, "09:00", now)
	want = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestNextSendTimeEvery2Days(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	got := NextSendTime(FrequencyEvery2Days, "09:00", now)
	want := time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestNextSendTimeWeeklyBoundary(t *testing.T) {
	// Monday 10:00, past the 09:00 slot: the next send is the following
	// Monday, never later the same day.
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC) // a Monday
	got := NextSendTime(FrequencyWeekly, "09:00", now)
	want := time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if got.Weekday() != now.Weekday() {
		t.Fatalf("expected same weekday, got %s", got.Weekday())
	}

	// Monday 08:00, before the slot: fire later today.
	now = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	got = NextSendTime(FrequencyWeekly, "09:00", now)
	want = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestNextSendTimeMonthlyRollover(t *testing.T) {
	now := time.Date(2024, 12, 15, 10, 0, 0, 0, time.UTC)
	got := NextSendTime(FrequencyMonthly, "09:00", now)
	want := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected January 1 of next year, got %v", got)
	}

	now = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	got = NextSendTime(FrequencyMonthly, "09:00", now)
	want = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestNextSendTimeUnknownDefaultsToWeekOut(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	got := NextSendTime("fortnightly", "09:00", now)
	want := now.Add(7 * 24 * time.Hour)
	if !got.Equal(want) {
		t.Fatalf("expected now+7d, got %v", got)
	}
}

func TestNextSendTimeAlwaysInFuture(t *testing.T) {
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC) // exactly on the slot
	for _, freq := range []Frequency{FrequencyDaily, FrequencyEvery2Days, FrequencyWeekly, FrequencyMonthly, "bogus"} {
		got := NextSendTime(freq, "09:00", now)
		if !got.After(now) {
			t.Fatalf("%s: next send %v is not after now %v", freq, got, now)
		}
	}
}

func TestNextSendTimeCronExpression(t *testing.T) {
	// Every Monday at 09:00.
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	got := NextSendTime("cron:0 9 * * 1", "", now)
	want := time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	// Malformed cron degrades to the week-out default.
	got = NextSendTime("cron:not a cron", "", now)
	if !got.Equal(now.Add(7 * 24 * time.Hour)) {
		t.Fatalf("expected now+7d fallback, got %v", got)
	}
}

func TestParseSendTime(t *testing.T) {
	cases := []struct {
		in     string
		h, min int
	}{
		{"09:00", 9, 0},
		{"23:59", 23, 59},
		{"7:30", 7, 30},
		{"25:00", 9, 0},
		{"garbage", 9, 0},
		{"", 9, 0},
	}
	for _, tc := range cases {
		h, min := ParseSendTime(tc.in)
		if h != tc.h || min != tc.min {
			t.Fatalf("%q: expected %02d:%02d, got %02d:%02d", tc.in, tc.h, tc.min, h, min)
		}
	}
}
