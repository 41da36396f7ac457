// Package config resolves server settings from an optional lmsps.toml file
// and LMSPS_* environment variables. Precedence: environment > file >
// defaults. Malformed numeric values fall back to the default instead of
// failing startup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Environment variable names. EnvLegacyShellPath is the historical name for
// the interpreter path and stays honored for compatibility.
const (
	EnvShellPath        = "LMSPS_POWERSHELL_PATH"
	EnvLegacyShellPath  = "LMSPS_PWSH"
	EnvFallbackShell    = "LMSPS_FALLBACK_SHELL"
	EnvTimeoutSec       = "LMSPS_TIMEOUT_SEC"
	EnvTrimChars        = "LMSPS_TRIM_CHARS"
	EnvMaxCommandChars  = "LMSPS_MAX_COMMAND_CHARS"
	EnvLogDir           = "LMSPS_LOGDIR"
	EnvWorkDir          = "LMSPS_CWD"
	EnvSessionMode      = "LMSPS_SESSION_MODE"
	EnvFallbackCodePage = "LMSPS_FALLBACK_CODEPAGE"
)

const (
	// DefaultShellPath targets Windows PowerShell 5.1, present on every
	// supported Windows host regardless of whether pwsh is installed.
	DefaultShellPath = `C:\Windows\System32\WindowsPowerShell\v1.0\powershell.exe`

	DefaultFallbackShell   = "pwsh"
	DefaultTimeoutSec      = 30
	DefaultTrimChars       = 500
	DefaultMaxCommandChars = 8192
)

type Config struct {
	// ShellPath is the PowerShell executable used for every invocation.
	ShellPath string
	// FallbackShell is probed when ShellPath fails to start (session mode).
	FallbackShell string

	TimeoutSec      int
	TrimChars       int
	MaxCommandChars int

	LogDir  string
	WorkDir string

	// SessionMode switches ps_run to the persistent interactive session.
	SessionMode bool

	// FallbackCodePage optionally names an IANA code page tried by the
	// output decoder before its permissive final fallback.
	FallbackCodePage string
}

type fileConfig struct {
	ShellPath        string `toml:"powershell_path"`
	FallbackShell    string `toml:"fallback_shell"`
	TimeoutSec       int    `toml:"timeout_sec"`
	TrimChars        int    `toml:"trim_chars"`
	MaxCommandChars  int    `toml:"max_command_chars"`
	LogDir           string `toml:"log_dir"`
	WorkDir          string `toml:"work_dir"`
	SessionMode      bool   `toml:"session_mode"`
	FallbackCodePage string `toml:"fallback_codepage"`
}

// Default returns the built-in configuration, anchored at the process
// working directory.
func Default() Config {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return Config{
		ShellPath:       DefaultShellPath,
		FallbackShell:   DefaultFallbackShell,
		TimeoutSec:      DefaultTimeoutSec,
		TrimChars:       DefaultTrimChars,
		MaxCommandChars: DefaultMaxCommandChars,
		LogDir:          filepath.Join(cwd, "logs"),
		WorkDir:         cwd,
	}
}

// Load resolves the effective configuration. filePath may be empty, in which
// case only env and defaults apply; a missing file at an explicit path is an
// error, any other file problem too.
func Load(filePath string) (Config, error) {
	cfg := Default()

	if filePath != "" {
		if err := applyFile(&cfg, filePath); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	cfg.normalize()
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config file: %w", err)
	}

	if meta.IsDefined("powershell_path") && strings.TrimSpace(raw.ShellPath) != "" {
		cfg.ShellPath = strings.TrimSpace(raw.ShellPath)
	}
	if meta.IsDefined("fallback_shell") && strings.TrimSpace(raw.FallbackShell) != "" {
		cfg.FallbackShell = strings.TrimSpace(raw.FallbackShell)
	}
	if meta.IsDefined("timeout_sec") && raw.TimeoutSec > 0 {
		cfg.TimeoutSec = raw.TimeoutSec
	}
	if meta.IsDefined("trim_chars") && raw.TrimChars > 0 {
		cfg.TrimChars = raw.TrimChars
	}
	if meta.IsDefined("max_command_chars") && raw.MaxCommandChars > 0 {
		cfg.MaxCommandChars = raw.MaxCommandChars
	}
	if meta.IsDefined("log_dir") && strings.TrimSpace(raw.LogDir) != "" {
		cfg.LogDir = strings.TrimSpace(raw.LogDir)
	}
	if meta.IsDefined("work_dir") && strings.TrimSpace(raw.WorkDir) != "" {
		cfg.WorkDir = strings.TrimSpace(raw.WorkDir)
	}
	if meta.IsDefined("session_mode") {
		cfg.SessionMode = raw.SessionMode
	}
	if meta.IsDefined("fallback_codepage") {
		cfg.FallbackCodePage = strings.TrimSpace(raw.FallbackCodePage)
	}
	return nil
}

func applyEnv(cfg *Config) {
	// Dedicated name first, then the legacy alias.
	if v := strings.TrimSpace(os.Getenv(EnvShellPath)); v != "" {
		cfg.ShellPath = v
	} else if v := strings.TrimSpace(os.Getenv(EnvLegacyShellPath)); v != "" {
		cfg.ShellPath = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvFallbackShell)); v != "" {
		cfg.FallbackShell = v
	}
	if n, ok := envPositiveInt(EnvTimeoutSec); ok {
		cfg.TimeoutSec = n
	}
	if n, ok := envPositiveInt(EnvTrimChars); ok {
		cfg.TrimChars = n
	}
	if n, ok := envPositiveInt(EnvMaxCommandChars); ok {
		cfg.MaxCommandChars = n
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogDir)); v != "" {
		cfg.LogDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvWorkDir)); v != "" {
		cfg.WorkDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSessionMode)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.SessionMode = b
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvFallbackCodePage)); v != "" {
		cfg.FallbackCodePage = v
	}
}

func envPositiveInt(name string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func (c *Config) normalize() {
	if c.TimeoutSec <= 0 {
		c.TimeoutSec = DefaultTimeoutSec
	}
	if c.TrimChars <= 0 {
		c.TrimChars = DefaultTrimChars
	}
	if c.MaxCommandChars <= 0 {
		c.MaxCommandChars = DefaultMaxCommandChars
	}
	c.WorkDir = filepath.Clean(c.WorkDir)
}
