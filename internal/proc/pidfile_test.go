package proc

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.pid")
	pf, err := Acquire(path, "run")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	pid, err := readPid(path)
	if err != nil || pid != os.Getpid() {
		t.Fatalf("pidfile holds %d (%v), want %d", pid, err, os.Getpid())
	}

	// Same live pid blocks a second acquire.
	if _, err := Acquire(path, "run"); err == nil {
		t.Fatal("second acquire succeeded")
	} else {
		var running *AlreadyRunningError
		if !errors.As(err, &running) || running.PID != os.Getpid() {
			t.Fatalf("err = %v", err)
		}
	}

	if err := pf.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := pf.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("pidfile still present")
	}
}

func TestAcquireReclaimsStalePidfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.pid")
	// A pid that cannot be a live process.
	if err := os.WriteFile(path, []byte(strconv.Itoa(1<<22+1234567)), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	pf, err := Acquire(path, "run")
	if err != nil {
		t.Fatalf("Acquire over stale pidfile: %v", err)
	}
	defer pf.Release()
	pid, _ := readPid(path)
	if pid != os.Getpid() {
		t.Fatalf("pidfile holds %d, want %d", pid, os.Getpid())
	}
}
