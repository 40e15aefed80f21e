//go:build unix

package lock

import (
	"errors"
	"os"
	"syscall"
)

// processAlive reports whether a process with the given pid exists. Signal 0
// performs the existence check without delivering anything; EPERM still means
// the process is there, just owned by someone else.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
