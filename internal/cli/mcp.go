package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lydakis/zowex/internal/config"
	"github.com/lydakis/zowex/internal/ipc"
	"github.com/lydakis/zowex/internal/mcpserve"
)

var serveMCPFn = func(ctx context.Context, s *mcpserve.Server) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

func maybeHandleMCPCommand(args []string, cfg *config.Config) (bool, int) {
	if len(args) == 0 || args[0] != "mcp" {
		return false, 0
	}
	if len(args) > 1 {
		if isHelpFlag(args[1]) {
			fmt.Fprintln(rootStdout, "Usage: zowex mcp")
			fmt.Fprintln(rootStdout, "")
			fmt.Fprintln(rootStdout, "Serve MCP over stdio with a \"run\" tool that executes zowex commands in the daemon.")
			return true, ipc.ExitOK
		}
		fmt.Fprintln(rootStderr, "zowex: mcp takes no arguments")
		return true, ipc.ExitUsageErr
	}

	s := mcpserve.New(func() (*ipc.Client, error) {
		return connect(cfg)
	}, mcpserve.Options{
		Version: buildVersion,
		Cwd:     callerWorkingDirectory(),
		Env:     forwardedEnv(environFn(), cfg.Client.Prefixes()),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := serveMCPFn(ctx, s); err != nil && ctx.Err() == nil {
		fmt.Fprintf(rootStderr, "zowex: mcp: %v\n", err)
		return true, ipc.ExitInternal
	}
	return true, ipc.ExitOK
}
