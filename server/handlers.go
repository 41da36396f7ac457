package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/BerejikB/LmsPs/internal/jsonutil"
	"github.com/BerejikB/LmsPs/internal/logutil"
	"github.com/BerejikB/LmsPs/internal/toolutil"
	"github.com/BerejikB/LmsPs/pstool"
)

// handlePsRun decodes the arguments strictly and hands off to the core. A
// malformed argument object is an invalid-command result, not a transport
// error: the model should see the same result shape for every outcome.
func (s *Server) handlePsRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolutil.WithRecoveryResp(func() (*mcp.CallToolResult, error) {
		raw, err := json.Marshal(req.GetArguments())
		if err != nil {
			return resultJSON(invalidCommand(fmt.Sprintf("error: invalid-command: %v", err)))
		}
		runReq, err := jsonutil.DecodeJSONRaw[pstool.RunRequest](raw)
		if err != nil {
			return resultJSON(invalidCommand(fmt.Sprintf("error: invalid-command: %v", err)))
		}
		return resultJSON(s.runner.Run(ctx, runReq))
	})
}

func (s *Server) handleCwd(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolutil.WithRecoveryResp(func() (*mcp.CallToolResult, error) {
		dir, err := s.runner.Cwd(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(dir), nil
	})
}

func (s *Server) handleCd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolutil.WithRecoveryResp(func() (*mcp.CallToolResult, error) {
		path, err := req.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		dir, err := s.runner.ChangeDir(ctx, path)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		logutil.Info("cd", "dir", dir)
		return mcp.NewToolResultText(dir), nil
	})
}

func (s *Server) handleEnvGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolutil.WithRecoveryResp(func() (*mcp.CallToolResult, error) {
		key := mcp.ParseString(req, "key", "")
		if key == "" {
			// Overlay only: the full host environment is already visible to
			// the host, listing it back adds nothing.
			raw, err := jsonutil.EncodeToJSONRaw(s.state.Overlay())
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(string(raw)), nil
		}

		if sess := s.runner.Session(); sess != nil {
			v, err := sess.EnvValue(ctx, key)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(v), nil
		}
		return mcp.NewToolResultText(s.state.EnvValue(key)), nil
	})
}

func (s *Server) handleEnvSet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolutil.WithRecoveryResp(func() (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		value, err := req.RequireString("value")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		if err := s.state.SetEnv(key, value); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		// In session mode the interpreter keeps its own environment; set it
		// there as well so subsequent commands observe the override.
		if sess := s.runner.Session(); sess != nil {
			if err := sess.SetEnv(ctx, key, value); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
		}
		logutil.Info("env_set", "key", key)
		return mcp.NewToolResultText("ok"), nil
	})
}

func (s *Server) handlePing(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText("pong"), nil
}

func (s *Server) handleResetSession(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolutil.WithRecoveryResp(func() (*mcp.CallToolResult, error) {
		sess := s.runner.Session()
		if sess == nil {
			return mcp.NewToolResultError("no persistent session configured"), nil
		}
		ack, err := sess.Reset(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		logutil.Info("session reset")
		return mcp.NewToolResultText(ack), nil
	})
}

func invalidCommand(msg string) pstool.RunResult {
	return pstool.RunResult{Status: pstool.StatusInvalidCommand, Message: msg}
}

func resultJSON(res pstool.RunResult) (*mcp.CallToolResult, error) {
	raw, err := jsonutil.EncodeToJSONRaw(res)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(raw)), nil
}
