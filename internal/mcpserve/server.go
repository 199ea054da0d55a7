// Package mcpserve exposes the daemon to MCP clients over stdio. Each tool
// call is forwarded as one invocation on its own daemon connection.
package mcpserve

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/lydakis/zowex/internal/ipc"
)

// RunTool is the name of the tool that forwards argv to the daemon.
const RunTool = "run"

// ErrPromptUnsupported is returned to the daemon when a command asks for
// interactive input during an MCP tool call.
var ErrPromptUnsupported = errors.New("interactive prompts are not supported over MCP")

// Connector opens a daemon connection, spawning the daemon if needed.
type Connector func() (*ipc.Client, error)

// Options describes the invocation context every forwarded call carries.
type Options struct {
	Version string
	Cwd     string
	Env     map[string]string
}

// Server forwards MCP tool calls to the daemon.
type Server struct {
	connect Connector
	opts    Options
	mcp     *server.MCPServer
}

// New builds the MCP server and registers its tools.
func New(connect Connector, opts Options) *Server {
	s := &Server{connect: connect, opts: opts}
	s.mcp = server.NewMCPServer("zowex", opts.Version, server.WithToolCapabilities(true))
	s.mcp.AddTool(mcp.NewTool(RunTool,
		mcp.WithDescription("Run a zowex command through the daemon and return its output."),
		mcp.WithArray("args",
			mcp.Required(),
			mcp.Description("Command line arguments, without the program name"),
			mcp.WithStringItems(),
		),
		mcp.WithString("stdin", mcp.Description("Data forwarded to the command as standard input")),
		mcp.WithString("cwd", mcp.Description("Working directory for the command; defaults to the server's")),
	), s.handleRun)
	return s
}

// MCP returns the underlying server for transports other than stdio.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// Serve speaks MCP over in and out until ctx ends or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

func (s *Server) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	argv, err := req.RequireStringSlice("args")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(argv) == 0 {
		return mcp.NewToolResultError("args must name a command"), nil
	}

	cwd := req.GetString("cwd", s.opts.Cwd)
	var stdin []byte
	if raw := req.GetString("stdin", ""); raw != "" {
		stdin = []byte(raw)
	}

	c, err := s.connect()
	if err != nil {
		return nil, err
	}
	defer c.Close()

	env := make(map[string]string, len(s.opts.Env))
	for k, v := range s.opts.Env {
		env[k] = v
	}

	var out bytes.Buffer
	code, err := c.Invoke(ctx, &ipc.Request{Argv: argv, Cwd: cwd, Env: env}, stdin, ipc.InvokeOptions{
		Stdout: &out,
		Prompt: func(text string, _ bool) (string, error) {
			return "", fmt.Errorf("%w: %s", ErrPromptUnsupported, strings.TrimSpace(text))
		},
	})
	if err != nil {
		if errors.Is(err, ErrPromptUnsupported) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, fmt.Errorf("running %q: %w", strings.Join(argv, " "), err)
	}
	if code != ipc.ExitOK {
		return mcp.NewToolResultError(fmt.Sprintf("%sexit code %d", out.String(), code)), nil
	}
	return mcp.NewToolResultText(out.String()), nil
}
