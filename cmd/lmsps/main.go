// Command lmsps serves PowerShell execution tools to an LLM host over MCP
// stdio. Stdout/stderr carry the RPC transport; every diagnostic goes to
// the append-only boot log instead.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BerejikB/LmsPs/internal/config"
	"github.com/BerejikB/LmsPs/internal/logutil"
	"github.com/BerejikB/LmsPs/server"
)

// Set at build time via ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	root := &cobra.Command{
		Use:          "lmsps",
		Short:        "LmsPs — PowerShell bridge for LLM hosts (MCP over stdio)",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), versionCmd())

	// Default to serve: MCP hosts launch the binary with no arguments.
	root.RunE = func(cmd *cobra.Command, args []string) error {
		return runServe("")
	}

	if err := root.Execute(); err != nil {
		// Cobra already printed the error; the exit code is all that is left.
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP tool surface on stdin/stdout",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe(configFile)
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "optional lmsps.toml path (env vars still win)")
	return cmd
}

func runServe(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	logger, closeLog := logutil.OpenBootLog(cfg.LogDir)
	defer func() { _ = closeLog() }()
	logutil.SetDefault(logger)

	exe, _ := os.Executable()
	logutil.Info("BOOT",
		"exe", exe,
		"version", version,
		"commit", commit,
		"shellPath", cfg.ShellPath,
		"fallbackShell", cfg.FallbackShell,
		"timeoutSec", cfg.TimeoutSec,
		"trimChars", cfg.TrimChars,
		"maxCommandChars", cfg.MaxCommandChars,
		"cwd", cfg.WorkDir,
		"logDir", cfg.LogDir,
		"sessionMode", cfg.SessionMode)

	srv := server.New(cfg, version)
	if err := srv.ServeStdio(); err != nil {
		logutil.Error("serve exited", "err", err)
		return err
	}
	logutil.Info("serve exited cleanly")
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("lmsps %s (commit: %s)\n", version, commit)
		},
	}
}
