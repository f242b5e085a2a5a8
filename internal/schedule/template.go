// Package schedule holds the weekly posting template and the slot allocator
// that assigns ingested images to future publication times.
package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"instapost/internal/config"
)

// WeeklyTemplate is a static recurring posting schedule: weekday index
// (0=Monday..6=Sunday) to a sorted list of times-of-day. Read-only once
// built.
type WeeklyTemplate struct {
	slots [7][]time.Duration
}

// ParseTemplate builds a template from the config's weekday->times map.
func ParseTemplate(raw map[string][]string) (*WeeklyTemplate, error) {
	t := &WeeklyTemplate{}
	for key, times := range raw {
		day, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil || day < 0 || day > 6 {
			return nil, fmt.Errorf("invalid weekday key %q (want 0..6, 0=Monday)", key)
		}
		for _, ts := range times {
			off, err := config.ParseClock(ts)
			if err != nil {
				return nil, err
			}
			t.slots[day] = append(t.slots[day], off)
		}
	}
	for day := range t.slots {
		sort.Slice(t.slots[day], func(i, j int) bool { return t.slots[day][i] < t.slots[day][j] })
	}
	return t, nil
}

// DefaultTemplate is the stock posting rhythm: Monday 07:00, Wednesday
// 11:00, Friday 17:00, Saturday 09:00, Sunday 18:00.
func DefaultTemplate() *WeeklyTemplate {
	t, _ := ParseTemplate(map[string][]string{
		"0": {"07:00"},
		"2": {"11:00"},
		"4": {"17:00"},
		"5": {"09:00"},
		"6": {"18:00"},
	})
	return t
}

// FastTemplate collapses the whole week to a single slot a few minutes after
// now on today's weekday. Diagnostic fast mode only.
func FastTemplate(now time.Time) *WeeklyTemplate {
	slot := now.Add(5 * time.Minute)
	off := time.Duration(slot.Hour())*time.Hour +
		time.Duration(slot.Minute())*time.Minute +
		time.Duration(slot.Second())*time.Second
	t := &WeeklyTemplate{}
	t.slots[WeekdayIndex(now)] = []time.Duration{off}
	return t
}

// SlotsFor returns the (sorted) times-of-day for a weekday index.
func (t *WeeklyTemplate) SlotsFor(day int) []time.Duration {
	if day < 0 || day > 6 {
		return nil
	}
	return t.slots[day]
}

// HasSlots reports whether the weekday has any slot at all.
func (t *WeeklyTemplate) HasSlots(day int) bool { return len(t.SlotsFor(day)) > 0 }

// Empty reports whether the whole week has no slots.
func (t *WeeklyTemplate) Empty() bool {
	for day := range t.slots {
		if len(t.slots[day]) > 0 {
			return false
		}
	}
	return true
}

// SlotsBetween enumerates every template-implied timestamp on the calendar
// days [start, start+days), in chronological order.
func (t *WeeklyTemplate) SlotsBetween(start time.Time, days int) []time.Time {
	var out []time.Time
	day := midnight(start)
	for i := 0; i < days; i++ {
		for _, off := range t.SlotsFor(WeekdayIndex(day)) {
			out = append(out, day.Add(off))
		}
		day = day.AddDate(0, 0, 1)
	}
	return out
}

// WeekdayIndex maps a time to the template's weekday indexing (0=Monday).
func WeekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
