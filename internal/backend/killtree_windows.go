//go:build windows

package backend

import (
	"os/exec"
	"strconv"
	"strings"
)

// killTree terminates the child and its descendants. Windows has no process
// group signals, so we delegate tree termination to taskkill.
func killTree(pid int, force bool) error {
	args := []string{"/T", "/PID", strconv.Itoa(pid)}
	if force {
		args = append(args, "/F")
	}
	if err := exec.Command("taskkill", args...).Run(); err != nil {
		// taskkill exits non-zero when the process is already gone; treat
		// that as success, termination is best-effort.
		if _, ok := err.(*exec.ExitError); ok {
			return nil
		}
		return err
	}
	return nil
}

// processAlive reports whether the process still exists.
func processAlive(pid int) bool {
	out, err := exec.Command("tasklist", "/FI", "PID eq "+strconv.Itoa(pid), "/NH").Output()
	if err != nil {
		return false
	}
	return !strings.Contains(strings.ToLower(string(out)), "no tasks")
}
