package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestParseJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"timezone": "America/New_York",
		"schedule": {"0": ["07:00"], "4": ["17:00", "09:30"]},
		"paths": {"watch_dir": "./in", "archive_dir": "./done", "data_dir": "./data"},
		"scheduler": {"crash_cooldown": "45s"},
		"publish": {"retry_max": 3, "retry_base": "1s", "retry_factor": 2.0},
		"logging": {"level": "debug", "console": true, "file": {"enabled": false, "path": ""}, "telegram": {"enabled": false, "min_level": "", "rate_per_sec": 0}},
		"notify": {"enabled": true, "chat_id": 12345}
	}`)

	cfg, err := NewManager(path).Parse()
	require.NoError(t, err)
	require.Equal(t, "America/New_York", cfg.Timezone)
	require.Equal(t, []string{"17:00", "09:30"}, cfg.Schedule["4"])
	require.Equal(t, "45s", cfg.Scheduler.CrashCooldown)
	require.Equal(t, 3, cfg.Publish.RetryMax)
	require.NotNil(t, cfg.Notify)
	require.Equal(t, int64(12345), cfg.Notify.ChatID)

	loc, err := cfg.Location()
	require.NoError(t, err)
	require.Equal(t, "America/New_York", loc.String())
}

func TestParseYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
timezone: UTC
schedule:
  "0": ["07:00"]
paths:
  watch_dir: ./in
  archive_dir: ./done
  data_dir: ./data
scheduler: {}
publish: {}
logging:
  level: info
  console: true
  file: {enabled: false, path: ""}
  telegram: {enabled: false, min_level: "", rate_per_sec: 0}
`)

	cfg, err := NewManager(path).Parse()
	require.NoError(t, err)
	require.Equal(t, "UTC", cfg.Timezone)
	require.Equal(t, "./in", cfg.Paths.WatchDir)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"paths": {"watch_dir": "./in", "data_dir": "./data"},
		"scheduler": {}, "publish": {},
		"logging": {"level": "", "console": false, "file": {"enabled": false, "path": ""}, "telegram": {"enabled": false, "min_level": "", "rate_per_sec": 0}},
		"surprise": true
	}`)
	_, err := NewManager(path).Parse()
	require.Error(t, err)
	require.Contains(t, err.Error(), "surprise")
}

func TestParseRejectsTrailingData(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"paths": {"watch_dir": "./in", "data_dir": "./data"},
		"scheduler": {}, "publish": {},
		"logging": {"level": "", "console": false, "file": {"enabled": false, "path": ""}, "telegram": {"enabled": false, "min_level": "", "rate_per_sec": 0}}
	}{}`)
	_, err := NewManager(path).Parse()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Timezone: "UTC",
			Schedule: map[string][]string{"0": {"07:00"}},
			Paths:    PathsConfig{WatchDir: "./in", DataDir: "./data"},
		}
	}

	require.NoError(t, base().Validate())

	cfg := base()
	cfg.Timezone = "Mars/Olympus"
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Schedule = map[string][]string{"7": {"07:00"}}
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Schedule = map[string][]string{"0": {"25:00"}}
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Paths.WatchDir = ""
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Publish.RetryBase = "soon"
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Publish.RetryMax = -1
	require.Error(t, cfg.Validate())
}

func TestParseClock(t *testing.T) {
	d, err := ParseClock("07:30")
	require.NoError(t, err)
	require.Equal(t, 7*time.Hour+30*time.Minute, d)

	d, err = ParseClock("23:59:59")
	require.NoError(t, err)
	require.Equal(t, 23*time.Hour+59*time.Minute+59*time.Second, d)

	for _, bad := range []string{"", "7", "24:00", "12:60", "12:00:60", "ab:cd"} {
		_, err := ParseClock(bad)
		require.Error(t, err, "input %q", bad)
	}
}

func TestParseDurationField(t *testing.T) {
	d, err := ParseDurationField("x", " 90s ")
	require.NoError(t, err)
	require.Equal(t, 90*time.Second, d)

	d, err = ParseDurationField("x", "")
	require.NoError(t, err)
	require.Zero(t, d)

	_, err = ParseDurationField("x", "-5s")
	require.Error(t, err)

	d, err = ParseDurationOrDefault("x", "", 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, d)
}

func TestPaths(t *testing.T) {
	p := PathsConfig{DataDir: "/var/lib/instapost"}
	require.Equal(t, filepath.Join("/var/lib/instapost", "schedule.json"), p.ScheduleFile())
	require.Equal(t, filepath.Join("/var/lib/instapost", "processed.json"), p.ProcessedFile())
	require.Equal(t, filepath.Join("/var/lib/instapost", "run.pid"), p.PidFile("run"))
}
