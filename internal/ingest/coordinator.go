// Package ingest admits new images into the posting queue: new files are
// validated, assigned the next free template slot and written to the
// schedule ledger.
package ingest

import (
	"fmt"

	"instapost/internal/image"
	"instapost/internal/ledger"
	"instapost/internal/schedule"
	"instapost/pkg/logx"
)

// Status describes what Schedule did with a file.
type Status int

const (
	StatusScheduled Status = iota
	StatusAlreadyScheduled
	StatusAlreadyProcessed
)

func (s Status) String() string {
	switch s {
	case StatusScheduled:
		return "scheduled"
	case StatusAlreadyScheduled:
		return "already scheduled"
	case StatusAlreadyProcessed:
		return "already processed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Coordinator owns the ingest path. Re-presenting a known filename is a
// no-op, not an error, so a watcher may fire duplicate events freely.
type Coordinator struct {
	store     *ledger.ScheduleStore
	processed *ledger.ProcessedStore
	alloc     *schedule.Allocator
	log       logx.Logger

	validate func(path string) error
}

func NewCoordinator(store *ledger.ScheduleStore, processed *ledger.ProcessedStore, alloc *schedule.Allocator, log logx.Logger) *Coordinator {
	return &Coordinator{
		store:     store,
		processed: processed,
		alloc:     alloc,
		log:       log,
		validate:  image.Validate,
	}
}

// SetValidator overrides image validation. Tests only.
func (c *Coordinator) SetValidator(fn func(path string) error) { c.validate = fn }

// Schedule assigns the next free slot to a new image file. The filename is
// the entry's identity; originalPath is where the bytes live right now.
func (c *Coordinator) Schedule(filename, originalPath, caption string) (ledger.Entry, Status, error) {
	entries, err := c.store.Load()
	if err != nil {
		return ledger.Entry{}, 0, err
	}
	for _, e := range entries {
		if e.Filename == filename {
			c.log.Info("file already scheduled", logx.String("file", filename), logx.Time("at", e.ScheduledAt))
			return e, StatusAlreadyScheduled, nil
		}
	}

	done, err := c.processed.Filenames()
	if err != nil {
		return ledger.Entry{}, 0, err
	}
	if _, ok := done[filename]; ok {
		c.log.Info("file already processed, skipping", logx.String("file", filename))
		return ledger.Entry{}, StatusAlreadyProcessed, nil
	}

	if err := c.validate(originalPath); err != nil {
		return ledger.Entry{}, 0, err
	}

	entry, err := c.add(entries, filename, originalPath, caption)
	if err != nil {
		return ledger.Entry{}, 0, err
	}
	c.log.Info("file scheduled",
		logx.String("file", filename),
		logx.Time("at", entry.ScheduledAt))
	return entry, StatusScheduled, nil
}

// add allocates a slot and persists the entry. A conflict can slip in
// between allocation and save when another writer touched the ledger; one
// re-allocation against fresh state is attempted before giving up.
func (c *Coordinator) add(entries []ledger.Entry, filename, originalPath, caption string) (ledger.Entry, error) {
	for attempt := 0; attempt < 2; attempt++ {
		at, err := c.alloc.Next(entries)
		if err != nil {
			return ledger.Entry{}, err
		}
		entry := ledger.Entry{
			Filename:     filename,
			ScheduledAt:  at,
			OriginalPath: originalPath,
			Caption:      caption,
		}
		err = c.store.Add(entry)
		if err == nil {
			return entry, nil
		}
		if ledger.ValidationKindOf(err) != ledger.KindConflict || attempt == 1 {
			return ledger.Entry{}, err
		}
		c.log.Warn("slot conflict on save, reallocating", logx.String("file", filename), logx.Err(err))
		entries, err = c.store.Load()
		if err != nil {
			return ledger.Entry{}, err
		}
	}
	return ledger.Entry{}, fmt.Errorf("unreachable")
}
