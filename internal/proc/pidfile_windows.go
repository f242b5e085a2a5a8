//go:build windows

package proc

import "os"

// isProcessRunning on Windows: FindProcess only succeeds for live
// processes.
func isProcessRunning(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	p.Release()
	return true
}
