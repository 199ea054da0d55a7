package daemon

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lydakis/zowex/internal/paths"
)

var (
	isListeningFn      = isListening
	spawnDaemonFn      = spawnDaemon
	waitForDaemonFn    = waitForDaemon
	acquireSpawnLockFn = acquireSpawnLock
	execCommandFn      = exec.Command
)

const startTimeout = 5 * time.Second

// SpawnOrConnect ensures a daemon is listening on socketPath. If none is, it
// spawns one and waits for it to be ready.
func SpawnOrConnect(socketPath string) error {
	if err := paths.EnsureDir(paths.RuntimeDir()); err != nil {
		return fmt.Errorf("creating runtime dir: %w", err)
	}
	if err := paths.EnsureDir(filepath.Dir(socketPath)); err != nil {
		return fmt.Errorf("creating socket dir: %w", err)
	}

	releaseLock, err := acquireSpawnLockFn(paths.LockPath())
	if err != nil {
		return fmt.Errorf("acquiring daemon lock: %w", err)
	}
	defer releaseLock() //nolint:errcheck

	if isListeningFn(socketPath) {
		return nil
	}

	clearDaemonRuntimeState(socketPath)

	if err := spawnDaemonFn(); err != nil {
		return err
	}
	return waitForDaemonFn(socketPath)
}

func clearDaemonRuntimeState(socketPath string) {
	_ = os.Remove(socketPath)
	_ = os.Remove(paths.PidPath())
}

func acquireSpawnLock(path string) (func() error, error) {
	lockFile, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		lockFile.Close()
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}

	return func() error {
		unlockErr := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN)
		closeErr := lockFile.Close()
		if unlockErr != nil {
			return unlockErr
		}
		return closeErr
	}, nil
}

func spawnDaemon() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("finding executable: %w", err)
	}

	cmd, cleanup, err := newDaemonCommand(exe)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawning daemon: %w", err)
	}

	// Detach: don't wait for the daemon process
	go cmd.Wait() //nolint: errcheck
	return nil
}

func newDaemonCommand(exe string) (*exec.Cmd, func(), error) {
	cmd := execCommandFn(exe, "__daemon")
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", os.DevNull, err)
	}

	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	// New session: a terminal Ctrl-C aimed at the front end must not reach
	// the daemon.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return cmd, func() {
		_ = devNull.Close()
	}, nil
}

func waitForDaemon(socketPath string) error {
	deadline := time.Now().Add(startTimeout)
	for time.Now().Before(deadline) {
		if isListening(socketPath) {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not start within %s", startTimeout)
}

func isListening(socketPath string) bool {
	conn, err := net.DialTimeout("unix", socketPath, 500*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
