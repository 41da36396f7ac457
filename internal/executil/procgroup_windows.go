//go:build windows

package executil

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"
)

func configureProcessGroup(cmd *exec.Cmd) {
	// Best-effort isolation: create a new process group.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// killProcessGroup terminates the child and its descendants. PowerShell
// commands routinely spawn sub-processes; killing only the direct child
// would leave them running past the timeout.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	pid := strconv.Itoa(cmd.Process.Pid)
	runTaskkill := func(args ...string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return exec.CommandContext(ctx, "taskkill", args...).Run()
	}

	// Soft termination first (no /F), then force.
	if err := runTaskkill("/T", "/PID", pid); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			_ = cmd.Process.Kill()
			return
		}
	}
	time.Sleep(250 * time.Millisecond)
	if err := runTaskkill("/T", "/F", "/PID", pid); err != nil {
		_ = cmd.Process.Kill()
	}
}

func exitCodeFromProcessState(ps *os.ProcessState) int {
	if ps == nil {
		return -1
	}
	return ps.ExitCode()
}
