package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/lydakis/zowex/internal/config"
	"github.com/lydakis/zowex/internal/daemon"
	"github.com/lydakis/zowex/internal/ipc"
	"github.com/lydakis/zowex/internal/paths"
)

var (
	daemonStatusFn = daemon.Status
	daemonStopFn   = daemon.Stop
	configPathFn   = paths.ConfigFile
)

const stopTimeout = 10 * time.Second

func maybeHandleDaemonCommand(args []string, cfg *config.Config, stdout, stderr io.Writer) (bool, int) {
	if len(args) < 2 || args[0] != "daemon" {
		if len(args) == 1 && args[0] == "daemon" {
			printDaemonHelp(stdout)
			return true, ipc.ExitOK
		}
		return false, 0
	}

	switch args[1] {
	case "start":
		return true, runDaemonStart(args[2:], cfg, stdout, stderr)
	case "stop":
		return true, runDaemonStop(args[2:], cfg, stdout, stderr)
	case "restart":
		return true, runDaemonRestart(args[2:], cfg, stdout, stderr)
	case "status":
		return runDaemonStatus(args[2:], cfg, stdout, stderr)
	case "config":
		return true, runDaemonConfig(args[2:], stdout, stderr)
	case "--help", "-h":
		printDaemonHelp(stdout)
		return true, ipc.ExitOK
	default:
		// Unknown subcommands belong to the daemon's own command tree.
		return false, 0
	}
}

func runDaemonStart(args []string, cfg *config.Config, stdout, stderr io.Writer) int {
	if code, ok := noArgs("daemon start", args, stdout, stderr); !ok {
		return code
	}

	socketPath := cfg.SocketPath()
	if daemonStatusFn(socketPath).Running {
		fmt.Fprintf(stdout, "daemon already running on %s\n", socketPath)
		return ipc.ExitOK
	}
	if err := spawnOrConnectFn(socketPath); err != nil {
		fmt.Fprintf(stderr, "zowex: %v\n", err)
		return ipc.ExitInternal
	}
	fmt.Fprintf(stdout, "daemon started on %s\n", socketPath)
	return ipc.ExitOK
}

func runDaemonStop(args []string, cfg *config.Config, stdout, stderr io.Writer) int {
	if code, ok := noArgs("daemon stop", args, stdout, stderr); !ok {
		return code
	}
	return stopDaemon(cfg, stdout, stderr)
}

func stopDaemon(cfg *config.Config, stdout, stderr io.Writer) int {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	msg, err := daemonStopFn(ctx, cfg.SocketPath())
	if errors.Is(err, daemon.ErrNotRunning) {
		fmt.Fprintln(stdout, "daemon is not running")
		return ipc.ExitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "zowex: %v\n", err)
		return ipc.ExitInternal
	}
	if msg != "" {
		fmt.Fprintln(stdout, msg)
	}
	return ipc.ExitOK
}

func runDaemonRestart(args []string, cfg *config.Config, stdout, stderr io.Writer) int {
	if code, ok := noArgs("daemon restart", args, stdout, stderr); !ok {
		return code
	}
	if code := stopDaemon(cfg, stdout, stderr); code != ipc.ExitOK {
		return code
	}
	if err := spawnOrConnectFn(cfg.SocketPath()); err != nil {
		fmt.Fprintf(stderr, "zowex: %v\n", err)
		return ipc.ExitInternal
	}
	fmt.Fprintf(stdout, "daemon started on %s\n", cfg.SocketPath())
	return ipc.ExitOK
}

// runDaemonStatus reports a stopped daemon locally. A running daemon answers
// "daemon status" itself, so those invocations are forwarded.
func runDaemonStatus(args []string, cfg *config.Config, stdout, stderr io.Writer) (bool, int) {
	info := daemonStatusFn(cfg.SocketPath())
	if info.Running {
		return false, 0
	}
	if len(args) > 0 && isHelpFlag(args[0]) {
		fmt.Fprintln(stdout, "Usage: zowex daemon status [--format text|json|yaml]")
		return true, ipc.ExitOK
	}
	fmt.Fprintln(stdout, "daemon is not running")
	fmt.Fprintf(stdout, "socket: %s\n", info.Socket)
	return true, ipc.ExitCommandErr
}

func runDaemonConfig(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || isHelpFlag(args[0]) {
		fmt.Fprintln(stdout, "Usage: zowex daemon config init [--force]")
		return ipc.ExitOK
	}
	if args[0] != "init" {
		fmt.Fprintf(stderr, "zowex: unknown daemon config command: %s\n", args[0])
		return ipc.ExitUsageErr
	}

	force := false
	for _, arg := range args[1:] {
		switch arg {
		case "--force", "-f":
			force = true
		case "--help", "-h":
			fmt.Fprintln(stdout, "Usage: zowex daemon config init [--force]")
			return ipc.ExitOK
		default:
			fmt.Fprintf(stderr, "zowex: unknown flag for daemon config init: %s\n", arg)
			return ipc.ExitUsageErr
		}
	}

	path := configPathFn()
	cfg := config.Default()
	verb := "wrote"
	if _, err := os.Stat(path); err == nil && !force {
		existing, err := config.LoadForEditFrom(path)
		if err != nil {
			fmt.Fprintf(stderr, "zowex: %v (use --force to overwrite)\n", err)
			return ipc.ExitCommandErr
		}
		existing.FillDefaults()
		cfg = existing
		verb = "updated"
	}
	if err := config.SaveTo(path, cfg); err != nil {
		fmt.Fprintf(stderr, "zowex: %v\n", err)
		return ipc.ExitInternal
	}
	fmt.Fprintf(stdout, "%s %s\n", verb, path)
	return ipc.ExitOK
}

func noArgs(command string, args []string, stdout, stderr io.Writer) (int, bool) {
	if len(args) == 0 {
		return 0, true
	}
	if len(args) == 1 && isHelpFlag(args[0]) {
		fmt.Fprintf(stdout, "Usage: zowex %s\n", command)
		return ipc.ExitOK, false
	}
	fmt.Fprintf(stderr, "zowex: %s takes no arguments\n", command)
	return ipc.ExitUsageErr, false
}

func isHelpFlag(arg string) bool {
	return arg == "--help" || arg == "-h"
}

func printDaemonHelp(out io.Writer) {
	fmt.Fprintln(out, "Usage: zowex daemon <command>")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  start           Start the daemon if it is not running")
	fmt.Fprintln(out, "  stop            Ask the daemon to shut down")
	fmt.Fprintln(out, "  restart         Stop then start the daemon")
	fmt.Fprintln(out, "  status          Show daemon status")
	fmt.Fprintln(out, "  config init     Write a config file, filling in missing defaults")
}
