package executil

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestSingleShotArgs(t *testing.T) {
	got := SingleShotArgs(`C:\ps\powershell.exe`, "Get-Date")
	want := []string{
		`C:\ps\powershell.exe`,
		"-NoLogo", "-NoProfile", "-NonInteractive",
		"-ExecutionPolicy", "Bypass",
		"-Command", "Get-Date",
	}
	if len(got) != len(want) {
		t.Fatalf("argv length %d, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("argv[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSingleShotArgs_CommandIsSingleArgument(t *testing.T) {
	// Metacharacters must ride through as one argv element, not be re-split.
	cmd := `Write-Output "a b"; & dir`
	got := SingleShotArgs("pwsh", cmd)
	if got[len(got)-1] != cmd {
		t.Fatalf("command mangled: %q", got[len(got)-1])
	}
}

func TestInteractiveArgs(t *testing.T) {
	got := InteractiveArgs("pwsh")
	want := []string{"pwsh", "-NoLogo", "-NoProfile", "-NoExit", "-Command", "-"}
	if len(got) != len(want) {
		t.Fatalf("argv %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("argv[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExitCodeFromWait(t *testing.T) {
	if got := exitCodeFromWait(nil, false); got != 0 {
		t.Fatalf("clean exit = %d, want 0", got)
	}
	if got := exitCodeFromWait(errors.New("killed"), true); got != ExitCodeTimeout {
		t.Fatalf("timeout = %d, want %d", got, ExitCodeTimeout)
	}
	if got := exitCodeFromWait(errors.New("pipe broke"), false); got != ExitCodeSpawnFault {
		t.Fatalf("non-exit error = %d, want %d", got, ExitCodeSpawnFault)
	}
	// A completed child is never reported as timed out.
	if got := exitCodeFromWait(nil, true); got != 0 {
		t.Fatalf("finished-then-deadline = %d, want 0", got)
	}
}

func TestCappedWriter(t *testing.T) {
	w := newCappedWriter(8)

	n, err := w.Write([]byte("12345"))
	if err != nil || n != 5 {
		t.Fatalf("write: n=%d err=%v", n, err)
	}
	n, err = w.Write([]byte("67890"))
	if err != nil || n != 5 {
		t.Fatalf("write: n=%d err=%v", n, err)
	}
	n, err = w.Write([]byte("overflow"))
	if err != nil || n != 8 {
		t.Fatalf("write past cap: n=%d err=%v", n, err)
	}

	if got := string(w.Bytes()); got != "12345678" {
		t.Fatalf("head = %q, want first 8 bytes", got)
	}
	if got := w.Total(); got != 18 {
		t.Fatalf("total = %d, want 18", got)
	}

	// Bytes returns a copy.
	b := w.Bytes()
	b[0] = 'Z'
	if got := string(w.Bytes()); got != "12345678" {
		t.Fatalf("internal buffer aliased: %q", got)
	}
}

func TestRunPowerShell_SpawnFailure(t *testing.T) {
	_, err := RunPowerShell(context.Background(),
		filepath.Join(t.TempDir(), "no-such-interpreter"),
		"Get-Date", "", nil, time.Second)
	if err == nil {
		t.Fatalf("expected spawn error for missing interpreter")
	}
}

// writeStub drops an executable script that ignores the PowerShell flags it
// receives and runs the given body, standing in for the interpreter.
func writeStub(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub interpreter needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "stub.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestRunPowerShell_CapturesStreamsAndExitCode(t *testing.T) {
	exe := writeStub(t, `echo out-line; echo err-line >&2; exit 5`)

	raw, err := RunPowerShell(context.Background(), exe, "ignored", "", nil, 10*time.Second)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if raw.TimedOut {
		t.Fatalf("unexpected timeout")
	}
	if raw.ExitCode != 5 {
		t.Fatalf("exit code = %d, want 5", raw.ExitCode)
	}
	if got := string(raw.Stdout); got != "out-line\n" {
		t.Fatalf("stdout = %q", got)
	}
	if got := string(raw.Stderr); got != "err-line\n" {
		t.Fatalf("stderr = %q", got)
	}
	if raw.StdoutTotal != int64(len("out-line\n")) {
		t.Fatalf("stdout total = %d", raw.StdoutTotal)
	}
}

func TestRunPowerShell_TimeoutKillsAndReturnsPartial(t *testing.T) {
	exe := writeStub(t, `echo before-sleep; sleep 30; echo after-sleep`)

	start := time.Now()
	raw, err := RunPowerShell(context.Background(), exe, "ignored", "", nil, 300*time.Millisecond)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !raw.TimedOut {
		t.Fatalf("expected timeout")
	}
	if raw.ExitCode != ExitCodeTimeout {
		t.Fatalf("exit code = %d, want %d", raw.ExitCode, ExitCodeTimeout)
	}
	if !strings.Contains(string(raw.Stdout), "before-sleep") {
		t.Fatalf("partial output lost: %q", raw.Stdout)
	}
	if strings.Contains(string(raw.Stdout), "after-sleep") {
		t.Fatalf("child outlived the deadline")
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("kill took %v", elapsed)
	}
}

func TestRunPowerShell_WorkdirAndEnv(t *testing.T) {
	exe := writeStub(t, `pwd; echo "$STUB_MARKER"`)
	dir := t.TempDir()

	raw, err := RunPowerShell(context.Background(), exe, "ignored", dir,
		[]string{"PATH=" + os.Getenv("PATH"), "STUB_MARKER=present"}, 10*time.Second)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	out := string(raw.Stdout)
	if !strings.Contains(out, filepath.Base(dir)) {
		t.Fatalf("workdir not applied: %q", out)
	}
	if !strings.Contains(out, "present") {
		t.Fatalf("env not applied: %q", out)
	}
}
