package pstool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/encoding"

	"github.com/BerejikB/LmsPs/internal/config"
	"github.com/BerejikB/LmsPs/internal/encutil"
	"github.com/BerejikB/LmsPs/internal/executil"
	"github.com/BerejikB/LmsPs/internal/logutil"
)

const commandPreviewChars = 120

// launchFunc matches executil.RunPowerShell; swapped out in tests.
type launchFunc func(
	ctx context.Context,
	exePath, command, workdir string,
	env []string,
	timeout time.Duration,
) (executil.RawResult, error)

// Runner executes validated commands through either the single-shot
// launcher or, when configured, the persistent interactive session.
type Runner struct {
	cfg      config.Config
	state    *State
	fallback encoding.Encoding
	launch   launchFunc
	session  *Session
}

// NewRunner builds the single-shot runner. The fallback code page from the
// config is resolved once; an unknown name is logged and disabled rather
// than failing startup.
func NewRunner(cfg config.Config, st *State) *Runner {
	r := &Runner{
		cfg:    cfg,
		state:  st,
		launch: executil.RunPowerShell,
	}
	if cfg.FallbackCodePage != "" {
		enc, ok := encutil.EncodingByName(cfg.FallbackCodePage)
		if !ok {
			logutil.Warn("unknown fallback codepage ignored", "name", cfg.FallbackCodePage)
		}
		r.fallback = enc
	}
	return r
}

// NewSessionRunner builds a runner backed by a persistent interactive
// session instead of per-call processes.
func NewSessionRunner(cfg config.Config, st *State) *Runner {
	r := NewRunner(cfg, st)
	r.session = NewSession(cfg, st)
	return r
}

// Session returns the persistent session, or nil in single-shot mode.
func (r *Runner) Session() *Session { return r.session }

// Run executes one command and always returns a well-formed RunResult; no
// error and no panic ever escapes to the caller.
func (r *Runner) Run(ctx context.Context, req RunRequest) RunResult {
	timeoutSec := req.TimeoutSec
	if timeoutSec <= 0 {
		timeoutSec = r.cfg.TimeoutSec
	}
	trimChars := req.TrimChars
	if trimChars <= 0 {
		trimChars = r.cfg.TrimChars
	}

	if err := ValidateCommand(req.Command, r.cfg.MaxCommandChars); err != nil {
		return RunResult{
			Status:  StatusInvalidCommand,
			Message: fmt.Sprintf("error: invalid-command: %v", err),
		}
	}

	if r.session != nil {
		return r.runViaSession(ctx, req.Command, timeoutSec, trimChars)
	}
	return r.runSingleShot(ctx, req.Command, timeoutSec, trimChars)
}

func (r *Runner) runSingleShot(ctx context.Context, command string, timeoutSec, trimChars int) RunResult {
	cwd := r.state.Cwd()
	env := r.state.EffectiveEnv()
	timeout := time.Duration(timeoutSec) * time.Second

	logutil.Info("ps_run start",
		"timeoutSec", timeoutSec,
		"trimChars", trimChars,
		"cwd", cwd,
		"cmd", preview(command))

	raw, err := r.launch(ctx, r.cfg.ShellPath, command, cwd, env, timeout)
	if err != nil {
		logutil.Error("ps_run launch failed", "err", err)
		return RunResult{
			Status:  StatusInternalError,
			Message: fmt.Sprintf("error: %s: %v", errKind(err), err),
		}
	}

	stdout := Trim(r.decode(raw.Stdout), trimChars)
	stderr := Trim(r.decode(raw.Stderr), trimChars)

	logutil.Info("ps_run done",
		"rc", raw.ExitCode,
		"timedOut", raw.TimedOut,
		"stdoutBytes", raw.StdoutTotal,
		"stderrBytes", raw.StderrTotal,
		"durationMS", raw.Duration.Milliseconds())

	if raw.TimedOut {
		return RunResult{
			Status:     StatusTimeout,
			Stdout:     stdout,
			Stderr:     stderr,
			Message:    fmt.Sprintf("timeout after %ds", timeoutSec),
			DurationMS: raw.Duration.Milliseconds(),
		}
	}

	code := raw.ExitCode
	res := RunResult{
		Stdout:     stdout,
		Stderr:     stderr,
		ExitCode:   &code,
		DurationMS: raw.Duration.Milliseconds(),
	}
	if code == 0 {
		res.Status = StatusOK
		if stdout == "" && stderr == "" {
			res.Message = "(ok)"
		}
	} else {
		res.Status = StatusPowerShellError
		res.Message = fmt.Sprintf("PowerShell exited with code %d", code)
	}
	return res
}

func (r *Runner) runViaSession(ctx context.Context, command string, timeoutSec, trimChars int) RunResult {
	logutil.Info("ps_run session start",
		"timeoutSec", timeoutSec,
		"trimChars", trimChars,
		"cmd", preview(command))

	out, timedOut, err := r.session.Execute(ctx, command, time.Duration(timeoutSec)*time.Second)
	if err != nil {
		logutil.Error("ps_run session failed", "err", err)
		return RunResult{
			Status:  StatusInternalError,
			Message: fmt.Sprintf("error: %s: %v", errKind(err), err),
		}
	}

	stdout := Trim(out, trimChars)
	if timedOut {
		return RunResult{
			Status:  StatusTimeout,
			Stdout:  stdout,
			Message: fmt.Sprintf("timeout after %ds", timeoutSec),
		}
	}
	res := RunResult{Status: StatusOK, Stdout: stdout}
	if stdout == "" {
		res.Message = "(ok)"
	}
	return res
}

// Cwd reports the working directory: the shared state in single-shot mode,
// the interpreter's own location in session mode.
func (r *Runner) Cwd(ctx context.Context) (string, error) {
	if r.session != nil {
		return r.session.Cwd(ctx)
	}
	return r.state.Cwd(), nil
}

// ChangeDir switches the working directory for subsequent commands.
func (r *Runner) ChangeDir(ctx context.Context, path string) (string, error) {
	if r.session != nil {
		return r.session.ChangeDir(ctx, path)
	}
	return r.state.ChangeDir(path)
}

func (r *Runner) decode(b []byte) string {
	return encutil.DecodeWithFallback(b, r.fallback)
}

func preview(command string) string {
	r := []rune(command)
	if len(r) <= commandPreviewChars {
		return command
	}
	return string(r[:commandPreviewChars]) + "..."
}

// errKind names the concrete error type, so the caller sees a classified
// summary instead of a stack trace.
func errKind(err error) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}
