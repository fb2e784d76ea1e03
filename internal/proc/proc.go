// Package proc inspects and terminates process trees.
//
// Both session backends use it: tmux sessions are stopped by killing the pane
// process tree, and background workers are stopped through their recorded PID.
package proc

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultGracePeriod is how long Terminate waits after SIGTERM before SIGKILL.
const DefaultGracePeriod = 500 * time.Millisecond

const pollInterval = 50 * time.Millisecond

// Alive reports whether a process with the given PID exists.
// EPERM means the process exists but belongs to another user.
// Zombies count as exited.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err != nil && !errors.Is(err, unix.EPERM) {
		return false
	}
	return !zombie(pid)
}

// zombie reports whether /proc shows pid in state Z. Without procfs it
// reports false.
func zombie(pid int) bool {
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return false
	}
	// The state field follows the parenthesised command name.
	i := bytes.LastIndexByte(data, ')')
	return i >= 0 && i+2 < len(data) && data[i+2] == 'Z'
}

// Identity returns a token naming the process currently holding pid: the
// kernel boot ID plus the process start time in clock ticks, both from
// procfs. A reused PID or a reboot yields a different token. ok is false
// when procfs has no entry for pid.
func Identity(pid int) (identity string, ok bool) {
	if pid <= 0 {
		return "", false
	}
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return "", false
	}
	i := bytes.LastIndexByte(data, ')')
	if i < 0 || i+2 >= len(data) {
		return "", false
	}
	// Fields after the command name start at field 3 (state); starttime is 22.
	fields := strings.Fields(string(data[i+2:]))
	if len(fields) < 20 {
		return "", false
	}
	boot, _ := os.ReadFile("/proc/sys/kernel/random/boot_id")
	return strings.TrimSpace(string(boot)) + ":" + fields[19], true
}

// CommandLine returns the argv of pid from procfs, or nil.
func CommandLine(pid int) []string {
	if pid <= 0 {
		return nil
	}
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/cmdline")
	if err != nil || len(data) == 0 {
		return nil
	}
	return strings.Split(strings.TrimSuffix(string(data), "\x00"), "\x00")
}

// Descendants returns all descendant PIDs of pid, parents before children.
func Descendants(ctx context.Context, pid int) []int {
	if pid <= 0 {
		return nil
	}

	out, err := exec.CommandContext(ctx, "pgrep", "-P", strconv.Itoa(pid)).Output()
	if err != nil {
		return nil
	}

	var result []int
	for _, field := range strings.Fields(string(out)) {
		child, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		result = append(result, child)
		result = append(result, Descendants(ctx, child)...)
	}
	return result
}

// Tree returns pid followed by its descendants, or nil for a dead pid.
func Tree(ctx context.Context, pid int) []int {
	if !Alive(pid) {
		return nil
	}
	return append([]int{pid}, Descendants(ctx, pid)...)
}

// KillAll sends SIGKILL to every live pid, last first, so children
// go before the parents that would otherwise respawn or reap them.
func KillAll(pids []int) {
	for i := len(pids) - 1; i >= 0; i-- {
		if Alive(pids[i]) {
			_ = unix.Kill(pids[i], unix.SIGKILL)
		}
	}
}

// WaitExit polls until pid exits, the timeout elapses or ctx is done.
// It returns true if the process is gone.
func WaitExit(ctx context.Context, pid int, timeout time.Duration) bool {
	if !Alive(pid) {
		return true
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return !Alive(pid)
		case <-deadline.C:
			return !Alive(pid)
		case <-ticker.C:
			if !Alive(pid) {
				return true
			}
		}
	}
}

// Terminate stops pid and its descendants: SIGTERM to the process (and to its
// process group when it leads one), a grace period, then SIGKILL for survivors.
// A pid that is already gone is not an error.
func Terminate(ctx context.Context, pid int, grace time.Duration) error {
	tree := Tree(ctx, pid)
	if len(tree) == 0 {
		return nil
	}

	if pgid, err := unix.Getpgid(pid); err == nil && pgid == pid {
		_ = unix.Kill(-pid, unix.SIGTERM)
	}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}

	WaitExit(ctx, pid, grace)
	KillAll(tree)
	return nil
}
