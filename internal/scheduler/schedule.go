package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/gorhill/cronexpr"
)

// Frequency is a user-facing delivery cadence.
type Frequency string

const (
	FrequencyDaily      Frequency = "daily"
	FrequencyEvery2Days Frequency = "every_2_days"
	FrequencyWeekly     Frequency = "weekly"
	FrequencyMonthly    Frequency = "monthly"
)

// cronPrefix marks a raw cron expression in place of a named frequency,
// e.g. "cron:0 9 * * 1".
const cronPrefix = "cron:"

// ParseSendTime parses an "HH:MM" clock value, defaulting to 09:00 on any
// malformed input.
func ParseSendTime(sendTime string) (hour, minute int) {
	hour, minute = 9, 0
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(sendTime), "%d:%d", &h, &m); err != nil {
		return hour, minute
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return hour, minute
	}
	return h, m
}

// NextSendTime computes the next delivery instant after now for the given
// frequency and send time. Slots that already passed today roll forward by
// the cadence interval; an unrecognized frequency falls back to one week
// out so a misconfigured job degrades gracefully instead of firing
// immediately.
func NextSendTime(frequency Frequency, sendTime string, now time.Time) time.Time {
	if raw, ok := strings.CutPrefix(string(frequency), cronPrefix); ok {
		if expr, err := cronexpr.Parse(raw); err == nil {
			return expr.Next(now)
		}
		return now.Add(7 * 24 * time.Hour)
	}

	hour, minute := ParseSendTime(sendTime)
	at := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, t.Location())
	}

	switch frequency {
	case FrequencyDaily:
		next := at(now)
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return next

	case FrequencyEvery2Days:
		next := at(now)
		if !next.After(now) {
			next = next.AddDate(0, 0, 2)
		}
		return next

	case FrequencyWeekly:
		next := at(now)
		if !next.After(now) {
			next = next.AddDate(0, 0, 7)
		}
		return next

	case FrequencyMonthly:
		// Always the 1st of the following month, with explicit December
		// rollover into January of the next year.
		year, month := now.Year(), now.Month()
		if month == time.December {
			year++
			month = time.January
		} else {
			month++
		}
		return time.Date(year, month, 1, hour, minute, 0, 0, now.Location())

	default:
		return now.Add(7 * 24 * time.Hour)
	}
}
