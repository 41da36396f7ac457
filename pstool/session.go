package pstool

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BerejikB/LmsPs/internal/config"
	"github.com/BerejikB/LmsPs/internal/encutil"
	"github.com/BerejikB/LmsPs/internal/executil"
	"github.com/BerejikB/LmsPs/internal/logutil"
)

const (
	sessionProbeTimeout = 5 * time.Second
	bannerDrainWindow   = 1500 * time.Millisecond
	helperCmdTimeout    = 15 * time.Second
	sessionLineBuffer   = 1024
	maxLineBytes        = 1 << 20
)

// Session owns one long-lived interactive PowerShell. All exchanges are
// serialized through a single lock: the interpreter cannot attribute output
// lines to a caller, so at most one command is ever in flight.
//
// Each exchange is framed by a per-call sentinel token: the command is
// followed by an instruction that prints the sentinel, and everything read
// before the sentinel line is the command's output. A command that never
// returns control to the prompt (or that breaks the parser) simply times
// out; the session is then marked stale and relaunched before the next
// exchange, so a late sentinel can never corrupt later framing.
type Session struct {
	mu    sync.Mutex
	cfg   config.Config
	state *State

	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines <-chan string
	stale bool
}

// NewSession prepares a session; the interpreter is launched lazily on
// first use.
func NewSession(cfg config.Config, st *State) *Session {
	return &Session{cfg: cfg, state: st}
}

// Execute runs one command through the session and returns its
// sentinel-delimited output. timedOut reports that the deadline elapsed
// first; the partial output read so far is still returned.
func (s *Session) Execute(ctx context.Context, command string, timeout time.Duration) (out string, timedOut bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executeLocked(ctx, command, timeout)
}

func (s *Session) executeLocked(ctx context.Context, command string, timeout time.Duration) (string, bool, error) {
	if err := s.ensureStartedLocked(ctx); err != nil {
		return "", false, err
	}

	sentinel := "LMSPS-" + uuid.NewString()
	if err := s.writeExchange(command, sentinel); err != nil {
		// The interpreter likely died; one restart-and-retry, then give up.
		logutil.Warn("session write failed, restarting", "err", err)
		s.stopLocked()
		if err := s.ensureStartedLocked(ctx); err != nil {
			return "", false, err
		}
		if err := s.writeExchange(command, sentinel); err != nil {
			s.stale = true
			return "", false, fmt.Errorf("session write: %w", err)
		}
	}

	out, timedOut, err := s.readUntil(ctx, sentinel, timeout)
	if timedOut {
		// The command may still be running and emit its sentinel later;
		// force a relaunch before the next exchange rather than let that
		// stray line be taken for another call's terminator.
		s.stale = true
	}
	return out, timedOut, err
}

func (s *Session) writeExchange(command, sentinel string) error {
	if s.stdin == nil {
		return errors.New("session stdin closed")
	}
	_, err := io.WriteString(s.stdin, command+"\n"+`Write-Output "`+sentinel+`"`+"\n")
	return err
}

func (s *Session) readUntil(ctx context.Context, sentinel string, timeout time.Duration) (string, bool, error) {
	var acc []string
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				s.stale = true
				return strings.Join(acc, "\n"), false, errors.New("session terminated unexpectedly")
			}
			if strings.Contains(line, sentinel) {
				return strings.Join(acc, "\n"), false, nil
			}
			acc = append(acc, line)
		case <-deadline.C:
			return strings.Join(acc, "\n"), true, nil
		case <-ctx.Done():
			s.stale = true
			return strings.Join(acc, "\n"), false, ctx.Err()
		}
	}
}

// Reset terminates the current interpreter, if any, and launches a fresh
// one. Returns a fixed acknowledgement.
func (s *Session) Reset(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	if err := s.ensureStartedLocked(ctx); err != nil {
		return "", err
	}
	return "reset", nil
}

// Close tears the session down for good.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Cwd asks the interpreter itself for its location.
func (s *Session) Cwd(ctx context.Context) (string, error) {
	out, timedOut, err := s.Execute(ctx, "(Get-Location).Path", helperCmdTimeout)
	if err != nil {
		return "", err
	}
	if timedOut {
		return "", errors.New("timeout querying working directory")
	}
	return lastNonEmptyLine(out), nil
}

// ChangeDir drives the interpreter's own Set-Location. The path is
// single-quoted with embedded quotes doubled, so quote or metacharacter
// content in the path cannot inject commands.
func (s *Session) ChangeDir(ctx context.Context, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("path is empty")
	}
	cmd := "Set-Location -LiteralPath " + QuotePS(path) + " -ErrorAction Stop; (Get-Location).Path"
	out, timedOut, err := s.Execute(ctx, cmd, helperCmdTimeout)
	if err != nil {
		return "", err
	}
	if timedOut {
		return "", errors.New("timeout changing directory")
	}
	if strings.Contains(out, "Set-Location") {
		return "", fmt.Errorf("directory not found: %s", path)
	}
	return lastNonEmptyLine(out), nil
}

// SetEnv sets an interpreter-level environment variable for subsequent
// commands in this session.
func (s *Session) SetEnv(ctx context.Context, key, value string) error {
	if !validSessionEnvKey(key) {
		return fmt.Errorf("invalid env name: %q", key)
	}
	_, timedOut, err := s.Execute(ctx, "$env:"+key+" = "+QuotePS(value), helperCmdTimeout)
	if err != nil {
		return err
	}
	if timedOut {
		return errors.New("timeout setting env")
	}
	return nil
}

// EnvValue reads an environment variable from the interpreter.
func (s *Session) EnvValue(ctx context.Context, key string) (string, error) {
	if !validSessionEnvKey(key) {
		return "", fmt.Errorf("invalid env name: %q", key)
	}
	out, timedOut, err := s.Execute(ctx, "Write-Output $env:"+key, helperCmdTimeout)
	if err != nil {
		return "", err
	}
	if timedOut {
		return "", errors.New("timeout reading env")
	}
	return lastNonEmptyLine(out), nil
}

func (s *Session) ensureStartedLocked(ctx context.Context) error {
	if s.cmd != nil && !s.stale {
		return nil
	}
	if s.stale {
		s.stopLocked()
	}
	return s.startLocked(ctx)
}

func (s *Session) startLocked(ctx context.Context) error {
	exe, err := s.resolveExe(ctx)
	if err != nil {
		return err
	}

	args := executil.InteractiveArgs(exe)
	cmd := exec.Command(args[0], args[1:]...) //nolint:gosec // Launch configured interpreter.
	cmd.Dir = s.state.Cwd()
	cmd.Env = s.state.EffectiveEnv()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("session stdin: %w", err)
	}
	// Standard error is merged into standard output: interactive PowerShell
	// interleaves them anyway and the framing is line-based.
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("session stdout: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("session start: %w", err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.lines = readLines(stdout)
	s.stale = false

	s.drainBannerLocked()
	logutil.Info("session started", "exe", exe, "pid", cmd.Process.Pid)
	return nil
}

// drainBannerLocked discards any startup banner so it does not leak into
// the first command's output. The window is wall-clock bounded; a silent
// interpreter just costs the window once.
func (s *Session) drainBannerLocked() {
	deadline := time.NewTimer(bannerDrainWindow)
	defer deadline.Stop()
	for {
		select {
		case _, ok := <-s.lines:
			if !ok {
				return
			}
		case <-deadline.C:
			return
		}
	}
}

// resolveExe probes the configured interpreter with a trivial version query
// and falls back to the secondary executable name if it cannot start.
func (s *Session) resolveExe(ctx context.Context) (string, error) {
	if probeExe(ctx, s.cfg.ShellPath) {
		return s.cfg.ShellPath, nil
	}
	if s.cfg.FallbackShell != "" {
		if p, err := exec.LookPath(s.cfg.FallbackShell); err == nil && probeExe(ctx, p) {
			logutil.Warn("primary interpreter unavailable, using fallback",
				"primary", s.cfg.ShellPath, "fallback", p)
			return p, nil
		}
	}
	return "", fmt.Errorf("no usable interpreter (%s, fallback %s)", s.cfg.ShellPath, s.cfg.FallbackShell)
}

func probeExe(ctx context.Context, exe string) bool {
	if strings.TrimSpace(exe) == "" {
		return false
	}
	pctx, cancel := context.WithTimeout(ctx, sessionProbeTimeout)
	defer cancel()
	cmd := exec.CommandContext(pctx, exe,
		"-NoLogo", "-NoProfile", "-NonInteractive",
		"-Command", "$PSVersionTable.PSVersion")
	return cmd.Run() == nil
}

func (s *Session) stopLocked() {
	if s.cmd == nil {
		return
	}
	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	executil.KillTree(s.cmd)
	// Reap asynchronously; the reader goroutine exits on pipe EOF.
	go func(c *exec.Cmd) { _ = c.Wait() }(s.cmd)
	s.cmd = nil
	s.stdin = nil
	s.lines = nil
	s.stale = false
}

// readLines decodes the merged output stream line by line. Per-line
// decoding keeps code-page output readable; interactive PowerShell does not
// emit UTF-16 over a pipe, so line splitting on \n is safe here.
func readLines(r io.Reader) <-chan string {
	ch := make(chan string, sessionLineBuffer)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), maxLineBytes)
		for sc.Scan() {
			raw := append([]byte(nil), sc.Bytes()...)
			ch <- strings.TrimRight(encutil.Decode(raw), "\r")
		}
	}()
	return ch
}

// QuotePS single-quotes s for PowerShell. Inside single quotes the only
// special character is the quote itself, escaped by doubling.
func QuotePS(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func validSessionEnvKey(key string) bool {
	if key == "" {
		return false
	}
	for i, r := range key {
		switch {
		case r == '_',
			r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func lastNonEmptyLine(out string) string {
	lines := strings.Split(out, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
