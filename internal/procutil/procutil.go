// Package procutil resolves recorded pids against the live process table and
// coordinates stopping and launching target application processes. Recorded
// pids are never trusted blindly: a process only counts as "this instance"
// when its command line still points at the instance's data directory.
package procutil

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

const (
	terminateGrace = 20 * time.Second
	terminatePoll  = 200 * time.Millisecond
)

// Alive reports whether pid resolves to a live process whose command line
// references dataDir. Stale pid records resolve to false, never to an error.
func Alive(pid int32, dataDir string) bool {
	if pid <= 0 {
		return false
	}
	proc, err := process.NewProcess(pid)
	if err != nil {
		return false
	}
	running, err := proc.IsRunning()
	if err != nil || !running {
		return false
	}
	return matchesDataDir(proc, dataDir)
}

// FindByDataDir scans the process table for a process run against dataDir.
func FindByDataDir(dataDir string) (int32, bool) {
	procs, err := process.Processes()
	if err != nil {
		return 0, false
	}
	for _, proc := range procs {
		if matchesDataDir(proc, dataDir) {
			return proc.Pid, true
		}
	}
	return 0, false
}

func matchesDataDir(proc *process.Process, dataDir string) bool {
	if dataDir == "" {
		return false
	}
	cmdline, err := proc.Cmdline()
	if err != nil || cmdline == "" {
		return false
	}
	needle := filepath.Clean(dataDir)
	if strings.Contains(cmdline, "--user-data-dir="+needle) || strings.Contains(cmdline, "--user-data-dir "+needle) {
		return true
	}
	// Some launchers pass the directory as a bare trailing argument.
	return strings.Contains(cmdline, needle)
}

// Terminate stops pid gracefully, escalating to a kill after the grace
// period. Exceeding the bounded wait is reported, not retried.
func Terminate(ctx context.Context, pid int32) error {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return nil // already gone
	}
	if err := proc.Terminate(); err != nil {
		if running, _ := proc.IsRunning(); !running {
			return nil
		}
		return fmt.Errorf("terminate pid %d: %w", pid, err)
	}

	deadline := time.Now().Add(terminateGrace)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(terminatePoll):
		}
		if running, _ := proc.IsRunning(); !running {
			return nil
		}
	}

	if err := proc.Kill(); err != nil {
		if running, _ := proc.IsRunning(); !running {
			return nil
		}
		return fmt.Errorf("pid %d survived grace period and kill failed: %w", pid, err)
	}
	return nil
}

// Launch starts binary detached with args and returns the new pid. The
// child keeps running after this process exits.
func Launch(binary string, args []string) (int32, error) {
	cmd := exec.Command(binary, args...)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("launch %s: %w", binary, err)
	}
	pid := int32(cmd.Process.Pid)
	if err := cmd.Process.Release(); err != nil {
		return pid, nil
	}
	return pid, nil
}
