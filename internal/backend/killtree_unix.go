//go:build !windows

package backend

import "syscall"

// killTree signals the child's process group. The child was started with
// Setpgid, so its group ID equals its PID and every descendant is included.
func killTree(pid int, force bool) error {
	sig := syscall.SIGTERM
	if force {
		sig = syscall.SIGKILL
	}
	err := syscall.Kill(-pid, sig)
	if err == syscall.ESRCH {
		// already gone
		return nil
	}
	return err
}

// processAlive reports whether the process group still exists.
func processAlive(pid int) bool {
	return syscall.Kill(-pid, 0) == nil
}
