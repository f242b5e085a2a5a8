package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	logx "instapost/pkg/logx"
)

// ScheduleStore owns schedule.json. It is the only writer in a running
// daemon; CLI mutations are operator-triggered and assumed non-concurrent
// with ingest, so a process-local mutex is the whole locking story.
type ScheduleStore struct {
	path string
	log  logx.Logger

	mu sync.Mutex

	// corrupt remembers that the last read failed to parse, so the next
	// successful mutation can warn before rewriting the document.
	corrupt bool

	now func() time.Time
}

func NewScheduleStore(path string, log logx.Logger) *ScheduleStore {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &ScheduleStore{path: path, log: log, now: time.Now}
}

// SetNow overrides the clock. Test hook.
func (s *ScheduleStore) SetNow(now func() time.Time) { s.now = now }

func (s *ScheduleStore) Path() string { return s.path }

// Load reads the pending ledger. A missing file is an empty ledger; an
// unparsable one is reported and treated as empty rather than crashing the
// caller's loop.
func (s *ScheduleStore) Load() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *ScheduleStore) loadLocked() ([]Entry, error) {
	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.corrupt = false
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(b, &entries); err != nil {
		if !s.corrupt {
			s.log.Warn("schedule ledger is unparsable; treating as empty",
				logx.String("path", s.path), logx.Err(err))
		}
		s.corrupt = true
		return nil, nil
	}
	s.corrupt = false
	return entries, nil
}

func (s *ScheduleStore) saveLocked(entries []Entry) error {
	if s.corrupt {
		// Never silently bury a corrupt document under a fresh one.
		s.log.Warn("rewriting previously unparsable schedule ledger",
			logx.String("path", s.path), logx.Int("entries", len(entries)))
		s.corrupt = false
	}
	if entries == nil {
		entries = []Entry{}
	}
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, b)
}

// Add appends a validated entry: time in the future, no conflict within the
// window, filename unique.
func (s *ScheduleStore) Add(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ValidateFuture(e.ScheduledAt, s.now()); err != nil {
		return err
	}
	entries, err := s.loadLocked()
	if err != nil {
		return err
	}
	for _, cur := range entries {
		if cur.Filename == e.Filename {
			return validationf(KindDuplicate, "already scheduled: %s", e.Filename)
		}
	}
	if conflicts := CheckConflicts(entries, e.ScheduledAt, ""); len(conflicts) > 0 {
		return validationf(KindConflict, "time conflict with existing post(s): %s", joinNames(conflicts))
	}
	entries = append(entries, e)
	return s.saveLocked(entries)
}

// Cancel removes the entry with the given filename.
func (s *ScheduleStore) Cancel(filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.loadLocked()
	if err != nil {
		return err
	}
	kept := entries[:0]
	found := false
	for _, e := range entries {
		if e.Filename == filename {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return validationf(KindNotFound, "entry not found: %s", filename)
	}
	return s.saveLocked(kept)
}

// Reschedule moves an entry to newTime after validating it against all other
// entries. The ledger is untouched on any validation failure.
func (s *ScheduleStore) Reschedule(filename string, newTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.loadLocked()
	if err != nil {
		return err
	}
	idx := -1
	for i := range entries {
		if entries[i].Filename == filename {
			idx = i
			break
		}
	}
	if idx < 0 {
		return validationf(KindNotFound, "entry not found: %s", filename)
	}
	if err := ValidateFuture(newTime, s.now()); err != nil {
		return err
	}
	if conflicts := CheckConflicts(entries, newTime, filename); len(conflicts) > 0 {
		return validationf(KindConflict, "time conflict with existing post(s): %s", joinNames(conflicts))
	}
	entries[idx].ScheduledAt = newTime
	return s.saveLocked(entries)
}

// Replace persists a whole new document. Used by the rebalancer's apply path.
func (s *ScheduleStore) Replace(entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ScheduledAt.Before(sorted[j].ScheduledAt) })
	return s.saveLocked(sorted)
}

// LastScheduled returns the chronologically last entry time, or false when
// the ledger has no entries with a resolvable time.
func (s *ScheduleStore) LastScheduled() (time.Time, bool, error) {
	entries, err := s.Load()
	if err != nil {
		return time.Time{}, false, err
	}
	var last time.Time
	found := false
	for _, e := range entries {
		if e.ScheduledAt.IsZero() {
			continue
		}
		if !found || e.ScheduledAt.After(last) {
			last = e.ScheduledAt
			found = true
		}
	}
	return last, found, nil
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}

// writeFileAtomic replaces path via a temp file + rename so a crashed writer
// can never leave a half-written ledger behind.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
