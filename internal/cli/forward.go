package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"

	"github.com/lydakis/zowex/internal/config"
	"github.com/lydakis/zowex/internal/ipc"
)

var notifyInterruptFn = func(c chan<- os.Signal) func() {
	signal.Notify(c, os.Interrupt)
	return func() { signal.Stop(c) }
}

// forward runs args as a command in the daemon and relays its output,
// prompts, and exit code.
func forward(args []string, cfg *config.Config) int {
	var stdin []byte
	if !stdinIsTTYFn() {
		data, err := io.ReadAll(rootStdin)
		if err != nil {
			fmt.Fprintf(rootStderr, "zowex: reading stdin: %v\n", err)
			return ipc.ExitInternal
		}
		stdin = data
	}

	client, err := connect(cfg)
	if err != nil {
		fmt.Fprintf(rootStderr, "zowex: %v\n", err)
		return ipc.ExitInternal
	}
	defer client.Close()

	req := &ipc.Request{
		Argv: args,
		Cwd:  callerWorkingDirectory(),
		Env:  forwardedEnv(environFn(), cfg.Client.Prefixes()),
	}
	if req.Argv == nil {
		req.Argv = []string{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	armed := cfg.Daemon.ShutdownArmed()
	interrupted := make(chan struct{})
	var interruptOnce sync.Once
	sigs := make(chan os.Signal, 2)
	stopNotify := notifyInterruptFn(sigs)
	defer stopNotify()
	go func() {
		for {
			select {
			case <-sigs:
				first := false
				interruptOnce.Do(func() {
					first = true
					close(interrupted)
				})
				// An armed daemon reads the control character as a shutdown
				// request, so there the command is canceled by hanging up.
				if !first || armed {
					cancel()
					return
				}
				_ = client.Interrupt()
			case <-ctx.Done():
				return
			}
		}
	}()

	code, err := client.Invoke(ctx, req, stdin, ipc.InvokeOptions{
		Stdout: rootStdout,
		Prompt: interruptiblePrompt(promptFn, interrupted),
	})
	if err == nil {
		return code
	}

	switch {
	case errors.Is(err, ipc.ErrDaemonShutdown):
		fmt.Fprintln(rootStderr, "zowex: daemon shut down")
		return ipc.ExitInterrupted
	case errors.Is(err, errPromptInterrupted), errors.Is(err, context.Canceled):
		return ipc.ExitInterrupted
	case errors.Is(err, ipc.ErrConnectionClosed):
		fmt.Fprintf(rootStderr, "zowex: %v\n", err)
		return ipc.ExitInternal
	default:
		fmt.Fprintf(rootStderr, "zowex: %v\n", err)
		return code
	}
}
