//go:build windows

package lock

import "os"

// processAlive reports whether a process with the given pid exists. On
// Windows, FindProcess fails for pids that no longer exist.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := os.FindProcess(pid)
	return err == nil
}
