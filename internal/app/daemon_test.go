package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"instapost/internal/config"
)

func writeDaemonConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Config{
		Timezone: "UTC",
		Schedule: map[string][]string{"0": {"07:00"}},
		Paths: config.PathsConfig{
			WatchDir:   filepath.Join(dir, "in"),
			ArchiveDir: filepath.Join(dir, "done"),
			DataDir:    filepath.Join(dir, "data"),
		},
		Logging: config.LoggingConfig{Level: "error"},
	}
	b, err := json.Marshal(&cfg)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func setPublishEnv(t *testing.T, value string) {
	t.Helper()
	for _, k := range []string{
		"DROPBOX_APP_KEY", "DROPBOX_APP_SECRET", "DROPBOX_REFRESH_TOKEN",
		"FACEBOOK_APP_ID", "FACEBOOK_APP_SECRET", "FACEBOOK_ACCESS_TOKEN",
		"INSTAGRAM_BUSINESS_ACCOUNT_ID",
	} {
		t.Setenv(k, value)
	}
}

func TestRunSchedulerRequiresCredentials(t *testing.T) {
	setPublishEnv(t, "")
	a, err := New(writeDaemonConfig(t), "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	err = a.RunScheduler(context.Background())
	if err == nil {
		t.Fatal("RunScheduler succeeded without publish credentials")
	}
	if !strings.Contains(err.Error(), "DROPBOX_APP_KEY") {
		t.Fatalf("err = %v, want missing-variable report", err)
	}
}

func TestRunSchedulerRoleStopsOnCancel(t *testing.T) {
	setPublishEnv(t, "test-value")
	a, err := New(writeDaemonConfig(t), "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.RunScheduler(ctx) }()

	// The role is up once its pidfile is held.
	pidPath := a.Config().Paths.PidFile("scheduler")
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(pidPath); err == nil {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("scheduler role never acquired its pidfile")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunScheduler: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("scheduler role did not stop after cancel")
	}

	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Fatalf("pidfile still present after shutdown: %v", err)
	}
}
