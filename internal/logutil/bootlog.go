package logutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// BootLogName is the append-only diagnostic log file created under the
// configured log directory.
const BootLogName = "lmsps_boot.log"

// OpenBootLog opens (creating the directory if needed) the append-only boot
// log under dir and returns a JSON-line slog logger writing to it, plus a
// close func. Any failure yields a no-op logger: diagnostics are best-effort
// and must never break the server or leak onto stdout/stderr.
func OpenBootLog(dir string) (*slog.Logger, func() error) {
	noop := func() error { return nil }
	if dir == "" {
		return slog.New(slog.DiscardHandler), noop
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return slog.New(slog.DiscardHandler), noop
	}
	path := filepath.Join(dir, BootLogName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return slog.New(slog.DiscardHandler), noop
	}
	h := slog.NewJSONHandler(failsafeWriter{f}, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(h), f.Close
}

// failsafeWriter swallows write errors. A full disk or rotated-away file
// must not surface as a tool failure.
type failsafeWriter struct {
	w io.Writer
}

func (fw failsafeWriter) Write(p []byte) (int, error) {
	_, _ = fw.w.Write(p)
	return len(p), nil
}
