package daemon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lydakis/zowex/internal/config"
)

func saveControlHooks() func() {
	oldReadPID := readPIDFn
	oldSignal := signalPIDFn
	oldWait := waitForStopFn
	oldAck := ackTimeout
	return func() {
		readPIDFn = oldReadPID
		signalPIDFn = oldSignal
		waitForStopFn = oldWait
		ackTimeout = oldAck
	}
}

func TestStatusReportsNotRunning(t *testing.T) {
	info := Status(shortTempDir(t) + "/missing.sock")
	if info.Running {
		t.Fatal("Status().Running = true with no daemon")
	}
	if info.PID != 0 {
		t.Fatalf("Status().PID = %d, want 0", info.PID)
	}
}

func TestStatusReadsPIDForRunningDaemon(t *testing.T) {
	restore := saveControlHooks()
	defer restore()

	d := newTestDaemon(t, nil)
	readPIDFn = func() (int, error) { return 4242, nil }

	info := Status(d.socketPath)
	if !info.Running || info.PID != 4242 || info.Socket != d.socketPath {
		t.Fatalf("Status() = %+v", info)
	}
}

func TestStopNotRunning(t *testing.T) {
	_, err := Stop(context.Background(), shortTempDir(t)+"/missing.sock")
	if !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Stop() error = %v, want ErrNotRunning", err)
	}
}

func TestStopUsesShutdownAcknowledgment(t *testing.T) {
	restore := saveControlHooks()
	defer restore()

	d := newTestDaemon(t, nil)
	signalPIDFn = func(int) error {
		t.Fatal("signalPID called for an armed daemon")
		return nil
	}
	go func() {
		<-d.srv.Done()
		d.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, err := Stop(ctx, d.socketPath)
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if msg != "daemon shutting down" {
		t.Fatalf("Stop() message = %q", msg)
	}
	if isListening(d.socketPath) {
		t.Fatal("daemon still listening after Stop")
	}
}

func TestStopFallsBackToSignalWhenUnarmed(t *testing.T) {
	restore := saveControlHooks()
	defer restore()

	d := newTestDaemon(t, func(cfg *config.Config) {
		armed := false
		cfg.Daemon.ShutdownOnCtrlC = &armed
	})
	ackTimeout = 100 * time.Millisecond
	readPIDFn = func() (int, error) { return 4242, nil }
	var signalled int
	signalPIDFn = func(pid int) error {
		signalled = pid
		d.Close()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, err := Stop(ctx, d.socketPath)
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if signalled != 4242 {
		t.Fatalf("signalled pid = %d, want 4242", signalled)
	}
	if msg != "sent SIGTERM to daemon pid 4242" {
		t.Fatalf("Stop() message = %q", msg)
	}
}

func TestStopReportsMissingPIDWhenUnarmed(t *testing.T) {
	restore := saveControlHooks()
	defer restore()

	d := newTestDaemon(t, func(cfg *config.Config) {
		armed := false
		cfg.Daemon.ShutdownOnCtrlC = &armed
	})
	ackTimeout = 50 * time.Millisecond
	readPIDFn = func() (int, error) { return 0, errors.New("no pid file") }

	_, err := Stop(context.Background(), d.socketPath)
	if err == nil {
		t.Fatal("Stop() error = nil, want failure")
	}
}
