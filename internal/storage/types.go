package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl + snapshot)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Audit actions.
const (
	ActionScheduled     = "scheduled"
	ActionPublished     = "published"
	ActionPublishFailed = "publish_failed"
	ActionCancelled     = "cancelled"
	ActionRescheduled   = "rescheduled"
	ActionRebalanced    = "rebalanced"
	ActionArchived      = "archived"
)

// AuditEntry records one action against a queued image.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At       time.Time
	Action   string
	Filename string
	Target   string // permalink, new slot, archive path; action dependent
	OK       int
	Fail     int
	Error    string
	TookMS   int64
	MetaJSON string
}
