// Package proc handles process-level concerns: single-instance pidfiles
// and service-manager readiness notifications.
package proc

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrAlreadyRunning is returned when another live process holds the
// pidfile.
type AlreadyRunningError struct {
	Role string
	PID  int
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("another %s instance is already running (pid %d)", e.Role, e.PID)
}

// PidFile guards a role (run, watch, scheduler, mover) against concurrent
// instances. A pidfile left behind by a dead process is reclaimed.
type PidFile struct {
	path string
	role string
}

// Acquire writes the current pid, failing if a live process already holds
// the file.
func Acquire(path, role string) (*PidFile, error) {
	if pid, err := readPid(path); err == nil {
		if isProcessRunning(pid) {
			return nil, &AlreadyRunningError{Role: role, PID: pid}
		}
		// Stale pidfile from a dead process; take it over.
		_ = os.Remove(path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return nil, err
	}
	return &PidFile{path: path, role: role}, nil
}

// Release removes the pidfile. Safe to call more than once.
func (p *PidFile) Release() error {
	if p == nil {
		return nil
	}
	err := os.Remove(p.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func readPid(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid in %s: %w", path, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("invalid pid: %d", pid)
	}
	return pid, nil
}
