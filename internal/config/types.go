package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Timezone is an IANA name (e.g. "America/New_York"). All slot times and
	// ledger timestamps are interpreted in this zone.
	Timezone string `json:"timezone"`

	// Schedule maps weekday index (0=Monday..6=Sunday) to "HH:MM" or
	// "HH:MM:SS" times. Days may be omitted; days with no slots are skipped.
	Schedule map[string][]string `json:"schedule"`

	Paths     PathsConfig     `json:"paths"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Publish   PublishConfig   `json:"publish"`
	Logging   LoggingConfig   `json:"logging"`
	Notify    *NotifyConfig   `json:"notify,omitempty"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
}

type PathsConfig struct {
	// WatchDir is scanned and watched for new images to ingest.
	WatchDir string `json:"watch_dir"`
	// ArchiveDir receives published images moved out of WatchDir.
	ArchiveDir string `json:"archive_dir"`
	// DataDir holds schedule.json, processed.json and pid files.
	DataDir string `json:"data_dir"`
}

// SchedulerConfig controls the publish loop.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type SchedulerConfig struct {
	// FastMode collapses the weekly schedule to a single slot a few minutes
	// ahead and publishes due entries immediately. Diagnostic use only.
	FastMode bool `json:"fast_mode,omitempty"`

	// CrashCooldown is how long the loop pauses after a tick panics.
	// Default "30s".
	CrashCooldown string `json:"crash_cooldown,omitempty"`

	// MoverInterval is the archive mover poll interval. Default "5s".
	MoverInterval string `json:"mover_interval,omitempty"`
}

// PublishConfig controls the upload-then-post pipeline.
type PublishConfig struct {
	// UploadTimeout bounds the storage upload step. Default "60s".
	UploadTimeout string `json:"upload_timeout,omitempty"`
	// PublishTimeout bounds the whole post step including its internal
	// retry loop. Default "180s".
	PublishTimeout string `json:"publish_timeout,omitempty"`

	// RetryMax is the attempt cap for the "media not ready" retry loop and
	// the outer transport retry. Default 5.
	RetryMax int `json:"retry_max,omitempty"`
	// RetryBase is the initial retry delay. Default "2s".
	RetryBase string `json:"retry_base,omitempty"`
	// RetryFactor multiplies the delay each attempt. Default 1.5.
	RetryFactor float64 `json:"retry_factor,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// NotifyConfig controls operator notifications over Telegram.
// The bot token comes from the environment (TELEGRAM_BOT_TOKEN), never from
// the config document.
type NotifyConfig struct {
	Enabled    bool  `json:"enabled"`
	ChatID     int64 `json:"chat_id"`
	RatePerSec int   `json:"rate_per_sec,omitempty"`
}

// StorageConfig controls the optional publish audit trail.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./instapost_audit" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// ScheduleFile returns the pending ledger path under DataDir.
func (p PathsConfig) ScheduleFile() string { return filepath.Join(p.DataDir, "schedule.json") }

// ProcessedFile returns the completed ledger path under DataDir.
func (p PathsConfig) ProcessedFile() string { return filepath.Join(p.DataDir, "processed.json") }

// PidFile returns the single-instance pid file path for a role.
func (p PathsConfig) PidFile(role string) string {
	return filepath.Join(p.DataDir, role+".pid")
}

// Validate checks everything that can be checked without touching the
// filesystem or the network. Used both at load time and as the hot-reload
// validator hook.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Timezone) != "" {
		if _, err := time.LoadLocation(strings.TrimSpace(c.Timezone)); err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
	}
	for day, times := range c.Schedule {
		d, err := strconv.Atoi(strings.TrimSpace(day))
		if err != nil || d < 0 || d > 6 {
			return fmt.Errorf("schedule: invalid weekday key %q (want 0..6, 0=Monday)", day)
		}
		for _, t := range times {
			if _, err := ParseClock(t); err != nil {
				return fmt.Errorf("schedule[%s]: %w", day, err)
			}
		}
	}
	if strings.TrimSpace(c.Paths.WatchDir) == "" {
		return fmt.Errorf("paths.watch_dir is required")
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return fmt.Errorf("paths.data_dir is required")
	}
	if _, err := ParseDurationField("scheduler.crash_cooldown", c.Scheduler.CrashCooldown); err != nil {
		return err
	}
	if _, err := ParseDurationField("scheduler.mover_interval", c.Scheduler.MoverInterval); err != nil {
		return err
	}
	if _, err := ParseDurationField("publish.upload_timeout", c.Publish.UploadTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("publish.publish_timeout", c.Publish.PublishTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("publish.retry_base", c.Publish.RetryBase); err != nil {
		return err
	}
	if c.Publish.RetryMax < 0 {
		return fmt.Errorf("publish.retry_max must be >= 0")
	}
	if c.Publish.RetryFactor < 0 {
		return fmt.Errorf("publish.retry_factor must be >= 0")
	}
	if c.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}

// Location resolves the configured timezone, defaulting to time.Local.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

// ParseClock parses "HH:MM" or "HH:MM:SS" into a seconds-of-day offset.
func ParseClock(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM or HH:MM:SS", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	sec := 0
	if len(parts) == 3 {
		sec, err = strconv.Atoi(parts[2])
		if err != nil || sec < 0 || sec > 59 {
			return 0, fmt.Errorf("invalid second in %q", s)
		}
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second, nil
}
