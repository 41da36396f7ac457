// Package server exposes the command-execution core as MCP tools over
// stdio. It is thin glue: every handler validates arguments, calls into
// pstool and forwards the structured result verbatim.
package server

import (
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/BerejikB/LmsPs/internal/config"
	"github.com/BerejikB/LmsPs/internal/logutil"
	"github.com/BerejikB/LmsPs/pstool"
)

const serverName = "lmsps"

// Server bundles the MCP server with the execution core behind it.
type Server struct {
	mcp    *mcpserver.MCPServer
	cfg    config.Config
	state  *pstool.State
	runner *pstool.Runner
}

// New builds the server and registers the tool surface exactly once.
func New(cfg config.Config, version string) *Server {
	st := pstool.NewState(cfg.WorkDir)

	var runner *pstool.Runner
	if cfg.SessionMode {
		runner = pstool.NewSessionRunner(cfg, st)
	} else {
		runner = pstool.NewRunner(cfg, st)
	}

	s := &Server{
		mcp: mcpserver.NewMCPServer(
			serverName,
			version,
			mcpserver.WithToolCapabilities(false),
		),
		cfg:    cfg,
		state:  st,
		runner: runner,
	}
	s.registerTools()
	return s
}

// ServeStdio blocks serving the MCP protocol on stdin/stdout until the
// client disconnects.
func (s *Server) ServeStdio() error {
	logutil.Info("BOOT serving stdio", "tools", s.toolNames())
	defer func() {
		if sess := s.runner.Session(); sess != nil {
			sess.Close()
		}
	}()
	return mcpserver.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("ps_run",
		mcp.WithDescription("Run a PowerShell command and return a structured result (stdout, stderr, status, exit code). Output is trimmed to a configurable length."),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description("The PowerShell command to execute"),
		),
		mcp.WithNumber("timeout_sec",
			mcp.Description("Per-call timeout in seconds (default from server config)"),
		),
		mcp.WithNumber("trim_chars",
			mcp.Description("Per-call output trim length in characters (default from server config)"),
		),
	), s.handlePsRun)

	s.mcp.AddTool(mcp.NewTool("cwd",
		mcp.WithDescription("Return the current working directory"),
	), s.handleCwd)

	s.mcp.AddTool(mcp.NewTool("cd",
		mcp.WithDescription("Change the working directory; relative paths resolve against the current one. Returns the new absolute path."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Target directory, absolute or relative"),
		),
	), s.handleCd)

	s.mcp.AddTool(mcp.NewTool("env_get",
		mcp.WithDescription("Get an environment value (process env merged with session overrides), or the full session override map when no key is given"),
		mcp.WithString("key",
			mcp.Description("Variable name; omit to list session overrides"),
		),
	), s.handleEnvGet)

	s.mcp.AddTool(mcp.NewTool("env_set",
		mcp.WithDescription("Set a session-local environment override for subsequent commands; the host environment itself is not modified"),
		mcp.WithString("key",
			mcp.Required(),
			mcp.Description("Variable name"),
		),
		mcp.WithString("value",
			mcp.Required(),
			mcp.Description("Variable value"),
		),
	), s.handleEnvSet)

	s.mcp.AddTool(mcp.NewTool("ping",
		mcp.WithDescription("Health check"),
	), s.handlePing)

	if s.cfg.SessionMode {
		s.mcp.AddTool(mcp.NewTool("reset_session",
			mcp.WithDescription("Terminate and relaunch the persistent PowerShell session"),
		), s.handleResetSession)
	}
}

func (s *Server) toolNames() []string {
	names := []string{"ps_run", "cwd", "cd", "env_get", "env_set", "ping"}
	if s.cfg.SessionMode {
		names = append(names, "reset_session")
	}
	return names
}
