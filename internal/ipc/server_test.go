package ipc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func echoHandler() Handler {
	return HandlerFunc(func(ctx context.Context, inv *Invocation) error {
		stdin, _ := io.ReadAll(inv.Stdin)
		fmt.Fprintf(inv.Stdout, "%s:%s", strings.Join(inv.Argv, " "), stdin)
		return nil
	})
}

func TestStartSetsSocketMode0600(t *testing.T) {
	socketPath := filepath.Join(shortTempDir(t), "daemon.sock")
	s := NewServer(socketPath, echoHandler())

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatalf("stat socket: %v", err)
	}
	if got := info.Mode().Perm(); got != 0o600 {
		t.Fatalf("socket mode = %o, want %o", got, 0o600)
	}
}

func TestStopRemovesSocket(t *testing.T) {
	socketPath := filepath.Join(shortTempDir(t), "daemon.sock")
	s := NewServer(socketPath, echoHandler())
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s.Stop()

	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Fatalf("socket still present after Stop: %v", err)
	}
}

func TestHandleConnRejectsPeerUIDMismatch(t *testing.T) {
	restorePeer := peerUIDFn
	peerUIDFn = func(conn net.Conn) (uint32, error) { return uint32(os.Getuid()) + 1, nil }
	defer func() {
		peerUIDFn = restorePeer
	}()

	s := NewServer("", HandlerFunc(func(ctx context.Context, inv *Invocation) error {
		t.Fatal("handler should not be called on peer uid mismatch")
		return nil
	}))

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	go func() {
		s.handleConn(serverConn)
		serverConn.Close()
	}()

	out, err := io.ReadAll(clientConn)
	if err != nil {
		t.Fatalf("reading rejection: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("peer uid mismatch\n")) {
		t.Fatalf("rejection = %q", out)
	}
	if !bytes.Contains(out, []byte(`"exitCode":3`)) {
		t.Fatalf("rejection has no internal exit notice: %q", out)
	}
}

func TestHandleConnRejectsPeerUIDError(t *testing.T) {
	restorePeer := peerUIDFn
	peerUIDFn = func(conn net.Conn) (uint32, error) { return 0, errors.New("no credentials") }
	defer func() {
		peerUIDFn = restorePeer
	}()

	s := NewServer("", echoHandler())
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	go func() {
		s.handleConn(serverConn)
		serverConn.Close()
	}()

	out, _ := io.ReadAll(clientConn)
	if !bytes.HasPrefix(out, []byte("peer uid check failed\n")) {
		t.Fatalf("rejection = %q", out)
	}
}

func TestServerEndToEnd(t *testing.T) {
	socketPath := filepath.Join(shortTempDir(t), "daemon.sock")
	var opened, closed atomic.Int32
	s := NewServer(socketPath, echoHandler(),
		WithShutdownOnControl(true),
		WithSessionHooks(func() { opened.Add(1) }, func() { closed.Add(1) }),
	)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	c, err := Dial(socketPath)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	for _, stdin := range []string{"first", "", "third"} {
		var out bytes.Buffer
		code, err := c.Invoke(context.Background(), &Request{Argv: []string{"zos-files", "list"}}, []byte(stdin), InvokeOptions{Stdout: &out})
		if err != nil {
			t.Fatalf("Invoke() error = %v", err)
		}
		if code != ExitOK || out.String() != "zos-files list:"+stdin {
			t.Fatalf("Invoke() = (%d, %q)", code, out.String())
		}
	}
	if got := s.Sessions(); got != 1 {
		t.Fatalf("Sessions() = %d, want 1", got)
	}

	stopper, err := Dial(socketPath)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer stopper.Close()
	if _, err := stopper.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	recv(t, s.Done(), "server shutdown")

	if _, err := net.Dial("unix", socketPath); err == nil {
		t.Fatal("listener still accepting after shutdown")
	}
	// The first client's session stays live until Stop.
	if _, err := c.Invoke(context.Background(), &Request{Argv: []string{"still"}}, nil, InvokeOptions{}); err != nil {
		t.Fatalf("Invoke() on live session after shutdown error = %v", err)
	}

	s.Stop()
	if opened.Load() != 2 || closed.Load() != 2 {
		t.Fatalf("hooks opened=%d closed=%d, want 2/2", opened.Load(), closed.Load())
	}
}

func TestServerUnarmedControlCharacterKeepsListening(t *testing.T) {
	socketPath := filepath.Join(shortTempDir(t), "daemon.sock")
	s := NewServer(socketPath, echoHandler(), WithShutdownOnControl(false))
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	c, err := Dial(socketPath)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()
	if err := c.Interrupt(); err != nil {
		t.Fatalf("Interrupt() error = %v", err)
	}

	other, err := Dial(socketPath)
	if err != nil {
		t.Fatalf("Dial() after control character error = %v", err)
	}
	defer other.Close()
	code, err := other.Invoke(context.Background(), &Request{Argv: []string{"version"}}, nil, InvokeOptions{})
	if err != nil || code != ExitOK {
		t.Fatalf("Invoke() = (%d, %v)", code, err)
	}

	select {
	case <-s.Done():
		t.Fatal("unarmed control character shut the server down")
	default:
	}
}

func TestStopClosesLiveSessions(t *testing.T) {
	socketPath := filepath.Join(shortTempDir(t), "daemon.sock")
	s := NewServer(socketPath, echoHandler())
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitFor(t, "session to register", func() bool { return s.Sessions() == 1 })

	s.Stop()

	if _, err := conn.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Fatalf("read after Stop error = %v, want EOF", err)
	}
	if got := s.Sessions(); got != 0 {
		t.Fatalf("Sessions() = %d after Stop", got)
	}
}
