package cli

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/lydakis/zowex/internal/config"
	"github.com/lydakis/zowex/internal/daemon"
	"github.com/lydakis/zowex/internal/ipc"
)

var (
	loadConfigFn               = config.Load
	spawnOrConnectFn           = daemon.SpawnOrConnect
	dialFn                     = ipc.Dial
	stdinIsTTYFn               = stdinIsTTY
	environFn                  = os.Environ
	rootStdin        io.Reader = os.Stdin
)

// Run is the main CLI entry point. Returns an exit code.
func Run(args []string) int {
	if handled, code := handleRootFlags(args); handled {
		return code
	}

	if handled, code := maybeHandleCompletionCommand(args, rootStdout, rootStderr); handled {
		return code
	}

	cfg, err := loadConfigFn()
	if err != nil {
		fmt.Fprintf(rootStderr, "zowex: %v\n", err)
		return ipc.ExitInternal
	}
	if verr := config.Validate(cfg); verr != nil {
		fmt.Fprintf(rootStderr, "zowex: invalid config: %v\n", verr)
		return ipc.ExitUsageErr
	}

	if handled, code := maybeHandleDaemonCommand(args, cfg, rootStdout, rootStderr); handled {
		return code
	}

	if handled, code := maybeHandleMCPCommand(args, cfg); handled {
		return code
	}

	return forward(args, cfg)
}

// connect makes sure a daemon is listening and opens a connection to it.
func connect(cfg *config.Config) (*ipc.Client, error) {
	socketPath := cfg.SocketPath()
	if err := spawnOrConnectFn(socketPath); err != nil {
		return nil, err
	}
	return dialFn(socketPath)
}

func stdinIsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func callerWorkingDirectory() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return cwd
}
