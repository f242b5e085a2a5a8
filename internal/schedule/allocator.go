package schedule

import (
	"errors"
	"time"

	"instapost/internal/ledger"
)

// HorizonDays bounds how far ahead the allocator will search for a free
// slot before giving up.
const HorizonDays = 14

// ErrNoSlot is returned when no template slot within the horizon can take
// the new entry.
var ErrNoSlot = errors.New("no available time slot within the scheduling horizon")

// Allocator hands out future publication times according to the weekly
// template. It is stateless; the caller supplies the current ledger
// contents on every call.
type Allocator struct {
	tmpl *WeeklyTemplate
	loc  *time.Location
	now  func() time.Time
}

func NewAllocator(tmpl *WeeklyTemplate, loc *time.Location) *Allocator {
	return &Allocator{tmpl: tmpl, loc: loc, now: time.Now}
}

// SetNow overrides the clock. Tests only.
func (a *Allocator) SetNow(now func() time.Time) { a.now = now }

// Next picks the publication time for the next entry.
//
// With an empty queue the allocator scans forward from now and returns the
// first template slot strictly in the future that does not collide with an
// existing entry. With a non-empty queue it continues after the latest
// assigned slot so that arrival order is preserved: later slot on the same
// day if the template has one, otherwise the first slot of the next
// weekday that has any.
func (a *Allocator) Next(entries []ledger.Entry) (time.Time, error) {
	if a.tmpl.Empty() {
		return time.Time{}, ErrNoSlot
	}
	now := a.now().In(a.loc)

	last, ok := latestScheduled(entries)
	if !ok {
		return a.scanFrom(now, now, entries)
	}
	last = last.In(a.loc)

	// Later slot on the same day as the last assignment.
	lastOff := clockOffset(last)
	for _, off := range a.tmpl.SlotsFor(WeekdayIndex(last)) {
		if off <= lastOff {
			continue
		}
		cand := midnight(last).Add(off)
		if cand.After(now) && len(ledger.CheckConflicts(entries, cand, "")) == 0 {
			return cand, nil
		}
	}
	return a.scanFrom(midnight(last).AddDate(0, 0, 1), now, entries)
}

// scanFrom walks day by day from start, returning the first slot that is
// strictly after now and free of conflicts.
func (a *Allocator) scanFrom(start, now time.Time, entries []ledger.Entry) (time.Time, error) {
	day := midnight(start)
	for i := 0; i <= HorizonDays; i++ {
		for _, off := range a.tmpl.SlotsFor(WeekdayIndex(day)) {
			cand := day.Add(off)
			if !cand.After(now) {
				continue
			}
			if len(ledger.CheckConflicts(entries, cand, "")) > 0 {
				continue
			}
			return cand, nil
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}, ErrNoSlot
}

func latestScheduled(entries []ledger.Entry) (time.Time, bool) {
	var last time.Time
	found := false
	for _, e := range entries {
		if !found || e.ScheduledAt.After(last) {
			last = e.ScheduledAt
			found = true
		}
	}
	return last, found
}

func clockOffset(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
}
