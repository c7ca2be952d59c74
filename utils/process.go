package utils

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const killPollInterval = 100 * time.Millisecond

// WritePIDFile writes pid to path with 0600 permissions.
func WritePIDFile(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o600)
}

// ReadPIDFile reads a PID integer from path. Returns 0 and an error if the
// file is absent or malformed.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path) //nolint:gosec // internal runtime path
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse PID from %s: %w", path, err)
	}
	return pid, nil
}

// IsProcessAlive returns true if a process with the given PID currently
// exists. Uses kill(pid, 0) — no signal is delivered.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}

// VerifyProcess returns true if pid is alive and its executable name matches
// comm. Guards against signalling a recycled PID.
func VerifyProcess(pid int, comm string) bool {
	if !IsProcessAlive(pid) {
		return false
	}
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid)) //nolint:gosec
	if err != nil {
		// /proc unavailable — fall back to liveness only.
		return true
	}
	return strings.TrimSpace(string(data)) == comm
}

// TerminateProcess sends SIGTERM to pid, waits up to gracePeriod for it to
// exit, then falls back to SIGKILL.
func TerminateProcess(ctx context.Context, pid int, gracePeriod time.Duration) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil // already gone
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		if !IsProcessAlive(pid) {
			return nil
		}
		return proc.Kill()
	}
	waitErr := WaitFor(ctx, gracePeriod, killPollInterval, func() (bool, error) {
		return !IsProcessAlive(pid), nil
	})
	if waitErr == nil {
		return nil
	}
	return proc.Kill()
}
