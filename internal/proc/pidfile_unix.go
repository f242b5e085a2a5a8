//go:build !windows

package proc

import (
	"os"
	"syscall"
)

// isProcessRunning probes a pid with signal 0, which checks existence
// without delivering anything.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	return err == nil
}
