package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/lydakis/zowex/internal/ipc"
	"github.com/lydakis/zowex/internal/paths"
)

// ErrNotRunning is returned when no daemon listens on the socket.
var ErrNotRunning = errors.New("daemon is not running")

var (
	dialFn        = ipc.Dial
	readPIDFn     = readPID
	signalPIDFn   = func(pid int) error { return syscall.Kill(pid, syscall.SIGTERM) }
	waitForStopFn = waitForStop
)

// ackTimeout bounds the wait for a shutdown acknowledgment before falling
// back to signalling the pid.
var ackTimeout = 2 * time.Second

// Info describes the daemon as seen from a client.
type Info struct {
	Running bool
	PID     int
	Socket  string
}

// Status reports whether a daemon is listening on socketPath.
func Status(socketPath string) Info {
	info := Info{Socket: socketPath, Running: isListeningFn(socketPath)}
	if info.Running {
		if pid, err := readPIDFn(); err == nil {
			info.PID = pid
		}
	}
	return info
}

// Stop asks the daemon on socketPath to shut down with the control
// character and waits for the socket to go away. A daemon that does not
// acknowledge (shutdown_on_ctrl_c = false) is sent SIGTERM instead.
func Stop(ctx context.Context, socketPath string) (string, error) {
	if !isListeningFn(socketPath) {
		return "", ErrNotRunning
	}

	msg, err := requestShutdown(ctx, socketPath)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		pid, perr := readPIDFn()
		if perr != nil {
			return "", fmt.Errorf("stopping daemon: %w", err)
		}
		if serr := signalPIDFn(pid); serr != nil {
			return "", fmt.Errorf("signalling daemon pid %d: %w", pid, serr)
		}
		msg = fmt.Sprintf("sent SIGTERM to daemon pid %d", pid)
	}

	if err := waitForStopFn(ctx, socketPath); err != nil {
		return msg, err
	}
	return msg, nil
}

func requestShutdown(ctx context.Context, socketPath string) (string, error) {
	c, err := dialFn(socketPath)
	if err != nil {
		return "", err
	}
	defer c.Close()

	ackCtx, cancel := context.WithTimeout(ctx, ackTimeout)
	defer cancel()
	return c.Shutdown(ackCtx)
}

func waitForStop(ctx context.Context, socketPath string) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(startTimeout)
	for isListeningFn(socketPath) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("daemon still listening after %s", startTimeout)
		case <-ticker.C:
		}
	}
	return nil
}

func readPID() (int, error) {
	data, err := os.ReadFile(paths.PidPath())
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parsing pid file: %w", err)
	}
	return pid, nil
}
