// Package pstool is the command-execution core behind the ps_run tool
// family: validation, launch, output decoding, trimming and result
// classification for PowerShell commands issued by an LLM host.
package pstool

// Status classifies the outcome of a ps_run invocation.
type Status string

const (
	// StatusOK: the interpreter ran and exited zero.
	StatusOK Status = "ok"
	// StatusPowerShellError: the interpreter ran and exited nonzero.
	StatusPowerShellError Status = "powershell-error"
	// StatusTimeout: the deadline elapsed; partial output is best-effort.
	StatusTimeout Status = "timeout"
	// StatusInvalidCommand: the validation gate rejected the input; no
	// process was spawned.
	StatusInvalidCommand Status = "invalid-command"
	// StatusInternalError: the core's own plumbing failed (spawn fault,
	// pipe I/O, recovered panic).
	StatusInternalError Status = "internal-error"
)

// RunRequest carries one ps_run invocation. Zero TimeoutSec/TrimChars mean
// "use the configured default".
type RunRequest struct {
	Command    string `json:"command"`
	TimeoutSec int    `json:"timeout_sec,omitempty"`
	TrimChars  int    `json:"trim_chars,omitempty"`
}

// RunResult is the uniform, structured outcome of every invocation. Stdout
// and Stderr are always decoded text, never raw bytes. Every failure path
// still produces a well-formed RunResult.
type RunResult struct {
	Status Status `json:"status"`
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`

	// ExitCode is set when the interpreter actually ran to completion.
	ExitCode *int `json:"exit_code,omitempty"`

	// Message carries the human-readable classification detail: "(ok)",
	// "PowerShell exited with code N", "timeout after Ns", or an error
	// summary.
	Message string `json:"message,omitempty"`

	DurationMS int64 `json:"duration_ms,omitempty"`
}
