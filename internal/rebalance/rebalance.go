// Package rebalance compacts the posting queue: template slots that ended
// up unused (cancellations, manual reschedules) are refilled by pulling
// the latest-scheduled pending entries forward.
package rebalance

import (
	"sort"
	"time"

	"instapost/internal/ledger"
	"instapost/internal/schedule"
	"instapost/pkg/logx"
)

// DefaultHorizonDays bounds the gap search.
const DefaultHorizonDays = 365

// Change describes one entry movement.
type Change struct {
	Filename string
	OldTime  time.Time
	NewTime  time.Time
}

// Result summarizes a rebalance run.
type Result struct {
	GapsFound    int
	EntriesMoved int
	DryRun       bool
	Changes      []Change
}

// Rebalancer reads and rewrites the schedule ledger on demand. Published
// entries are never moved; they stay exactly where the history put them.
type Rebalancer struct {
	store     *ledger.ScheduleStore
	processed *ledger.ProcessedStore
	tmpl      *schedule.WeeklyTemplate
	loc       *time.Location
	log       logx.Logger
	now       func() time.Time
}

func New(store *ledger.ScheduleStore, processed *ledger.ProcessedStore, tmpl *schedule.WeeklyTemplate, loc *time.Location, log logx.Logger) *Rebalancer {
	return &Rebalancer{
		store:     store,
		processed: processed,
		tmpl:      tmpl,
		loc:       loc,
		log:       log,
		now:       time.Now,
	}
}

// SetNow overrides the clock. Tests only.
func (r *Rebalancer) SetNow(now func() time.Time) { r.now = now }

// Run computes the move plan and, unless dryRun, persists the rewritten
// ledger in one atomic replace.
func (r *Rebalancer) Run(horizonDays int, dryRun bool) (*Result, error) {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	entries, err := r.store.Load()
	if err != nil {
		return nil, err
	}
	done, err := r.processed.Filenames()
	if err != nil {
		return nil, err
	}

	now := r.now().In(r.loc)

	var pending, published []ledger.Entry
	occupied := map[int64]struct{}{}
	for _, e := range entries {
		occupied[e.ScheduledAt.Unix()] = struct{}{}
		if _, ok := done[e.Filename]; ok {
			published = append(published, e)
		} else {
			pending = append(pending, e)
		}
	}

	var gaps []time.Time
	for _, slot := range r.tmpl.SlotsBetween(now, horizonDays) {
		if !slot.After(now) {
			continue
		}
		if _, taken := occupied[slot.Unix()]; taken {
			continue
		}
		gaps = append(gaps, slot)
	}

	res := &Result{GapsFound: len(gaps), DryRun: dryRun}
	if len(gaps) == 0 || len(pending) == 0 {
		return res, nil
	}

	sort.Slice(pending, func(i, j int) bool { return pending[i].ScheduledAt.Before(pending[j].ScheduledAt) })

	n := moveCount(pending, gaps)
	if n == 0 {
		return res, nil
	}
	keep := pending[:len(pending)-n]
	moving := pending[len(pending)-n:]

	rewritten := make([]ledger.Entry, 0, len(entries))
	rewritten = append(rewritten, published...)
	rewritten = append(rewritten, keep...)
	for i, e := range moving {
		res.Changes = append(res.Changes, Change{
			Filename: e.Filename,
			OldTime:  e.ScheduledAt,
			NewTime:  gaps[i],
		})
		e.ScheduledAt = gaps[i]
		rewritten = append(rewritten, e)
	}
	res.EntriesMoved = n

	if dryRun {
		r.log.Info("rebalance dry run",
			logx.Int("gaps", res.GapsFound),
			logx.Int("would_move", res.EntriesMoved))
		return res, nil
	}

	if err := r.store.Replace(rewritten); err != nil {
		return nil, err
	}
	r.log.Info("rebalance applied",
		logx.Int("gaps", res.GapsFound),
		logx.Int("moved", res.EntriesMoved))
	return res, nil
}

// moveCount picks how many tail entries to pull forward: the largest k
// where pairing the k earliest gaps with the k latest entries moves every
// one of them to an earlier time. Without that restriction a gap sitting
// after the queue tail would push entries back and forth on repeated runs.
func moveCount(pending []ledger.Entry, gaps []time.Time) int {
	for k := min(len(gaps), len(pending)); k > 0; k-- {
		ok := true
		for i := 0; i < k; i++ {
			if !gaps[i].Before(pending[len(pending)-k+i].ScheduledAt) {
				ok = false
				break
			}
		}
		if ok {
			return k
		}
	}
	return 0
}
