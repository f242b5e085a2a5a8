// Package ledger persists the two on-disk documents the posting pipeline
// coordinates through: schedule.json (pending publish intents) and
// processed.json (completed publications).
//
// Both are whole-document JSON arrays. Every mutation is load -> modify ->
// atomic replace; the documents are the contract shared with operators and
// external tooling, so the field layout is stable.
//
// processed.json is the sole source of truth for "already posted". A
// published entry is never removed from schedule.json; it is suppressed by
// ProcessedLedger membership instead, which keeps the schedule usable as an
// audit trail and keeps the rebalancer's horizon computation honest.
package ledger

import (
	"errors"
	"fmt"
	"time"
)

// ConflictWindow is the minimum separation between any two scheduled times.
const ConflictWindow = 60 * time.Second

// Entry is one pending publish intent in schedule.json.
// Filename is the entry's identity within the ledger.
type Entry struct {
	Filename     string    `json:"filename"`
	ScheduledAt  time.Time `json:"time"`
	OriginalPath string    `json:"original_path"`
	Caption      string    `json:"caption,omitempty"`
}

// ProcessedEntry is one completed publication in processed.json.
// URL is nil while a publication has started but is not confirmed.
type ProcessedEntry struct {
	Filename    string    `json:"filename"`
	ScheduledAt time.Time `json:"time"`
	URL         *string   `json:"url"`
	ProcessedAt time.Time `json:"timestamp"`
}

// ValidationKind classifies a rejected schedule mutation.
type ValidationKind string

const (
	KindBadTime   ValidationKind = "bad_time"
	KindPastTime  ValidationKind = "past_time"
	KindConflict  ValidationKind = "conflict"
	KindNotFound  ValidationKind = "not_found"
	KindDuplicate ValidationKind = "duplicate"
)

// ValidationError is returned synchronously for rejected mutations.
// It is never retried and never fatal to a caller's loop.
type ValidationError struct {
	Kind ValidationKind
	Msg  string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(kind ValidationKind, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ValidationKindOf returns the kind of a wrapped ValidationError, or "".
func ValidationKindOf(err error) ValidationKind {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return ""
}

// CheckConflicts returns the filenames of entries scheduled within the
// conflict window of t, skipping excludeFilename (used when rescheduling an
// entry against its peers).
func CheckConflicts(entries []Entry, t time.Time, excludeFilename string) []string {
	var conflicts []string
	for _, e := range entries {
		if excludeFilename != "" && e.Filename == excludeFilename {
			continue
		}
		d := t.Sub(e.ScheduledAt)
		if d < 0 {
			d = -d
		}
		if d < ConflictWindow {
			conflicts = append(conflicts, e.Filename)
		}
	}
	return conflicts
}

// ValidateFuture rejects zero or non-future times.
func ValidateFuture(t, now time.Time) error {
	if t.IsZero() {
		return validationf(KindBadTime, "invalid schedule time: zero time")
	}
	if !t.After(now) {
		ago := now.Sub(t).Round(time.Minute)
		return validationf(KindPastTime, "time is in the past (%s ago)", ago)
	}
	return nil
}
