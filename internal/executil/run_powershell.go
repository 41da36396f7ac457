// Package executil launches the PowerShell interpreter and captures its
// output as raw bytes. Decoding is deliberately left to callers: letting the
// platform layer pre-decode would double-decode UTF-16 output.
package executil

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"time"
)

const (
	// MaxCaptureBytes bounds how much of each stream is retained in memory.
	// The head is kept: the text-level trimmer downstream also keeps the
	// head, so tail bytes past the cap could never be shown anyway.
	MaxCaptureBytes = 4 << 20

	// Exit codes synthesized when the child did not report one.
	ExitCodeTimeout    = 124
	ExitCodeSpawnFault = 127
)

// RawResult is the untouched outcome of one interpreter invocation.
type RawResult struct {
	Stdout []byte
	Stderr []byte

	ExitCode int
	TimedOut bool
	Duration time.Duration

	StdoutTotal int64
	StderrTotal int64
}

// SingleShotArgs builds the argv for a non-interactive invocation with the
// command passed as a single -Command argument.
func SingleShotArgs(exePath, command string) []string {
	return []string{
		exePath,
		"-NoLogo", "-NoProfile", "-NonInteractive",
		"-ExecutionPolicy", "Bypass",
		"-Command", command,
	}
}

// InteractiveArgs builds the argv for a persistent session: the interpreter
// stays alive reading commands from stdin.
func InteractiveArgs(exePath string) []string {
	return []string{exePath, "-NoLogo", "-NoProfile", "-NoExit", "-Command", "-"}
}

// RunPowerShell executes one command synchronously. On timeout the whole
// process group is terminated and whatever bytes were buffered are returned
// with TimedOut set. The returned error is non-nil only for spawn failures
// (missing interpreter, permission error); a nonzero exit is not an error.
func RunPowerShell(
	parent context.Context,
	exePath string,
	command string,
	workdir string,
	env []string,
	timeout time.Duration,
) (RawResult, error) {
	ctx := parent
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, timeout)
		defer cancel()
	}

	args := SingleShotArgs(exePath, command)

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // Exec shell command.
	cmd.Dir = workdir
	cmd.Env = env

	configureProcessGroup(cmd)

	stdoutW := newCappedWriter(MaxCaptureBytes)
	stderrW := newCappedWriter(MaxCaptureBytes)
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return RawResult{}, err
	}

	// Wait in a goroutine so the deadline can fire while the child runs.
	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
	}()

	killedByCtx := false
	var waitErr error

	select {
	case waitErr = <-waitCh:
		// Completed before the deadline.
	case <-ctx.Done():
		// If the process already finished, do not kill.
		select {
		case waitErr = <-waitCh:
		default:
			killedByCtx = true
			killProcessGroup(cmd)
			waitErr = <-waitCh
		}
	}
	dur := time.Since(start)

	// Only a kill caused by the deadline counts as a timeout; parent-context
	// cancellation surfaces as a plain kill.
	timedOut := killedByCtx && errors.Is(ctx.Err(), context.DeadlineExceeded)

	return RawResult{
		Stdout: stdoutW.Bytes(),
		Stderr: stderrW.Bytes(),

		ExitCode: exitCodeFromWait(waitErr, timedOut),
		TimedOut: timedOut,
		Duration: dur,

		StdoutTotal: stdoutW.Total(),
		StderrTotal: stderrW.Total(),
	}, nil
}

func exitCodeFromWait(waitErr error, timedOut bool) int {
	if timedOut && waitErr != nil {
		return ExitCodeTimeout
	}
	if waitErr == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(waitErr, &ee) {
		return exitCodeFromProcessState(ee.ProcessState)
	}
	return ExitCodeSpawnFault
}

// cappedWriter keeps the first limit bytes and counts the rest.
type cappedWriter struct {
	mu    sync.Mutex
	limit int
	buf   []byte
	total int64
}

func newCappedWriter(limit int) *cappedWriter {
	if limit <= 0 {
		limit = MaxCaptureBytes
	}
	return &cappedWriter{limit: limit}
}

func (w *cappedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.total += int64(len(p))
	if room := w.limit - len(w.buf); room > 0 {
		w.buf = append(w.buf, p[:min(room, len(p))]...)
	}
	return len(p), nil
}

func (w *cappedWriter) Bytes() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]byte, len(w.buf))
	copy(out, w.buf)
	return out
}

func (w *cappedWriter) Total() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.total
}
