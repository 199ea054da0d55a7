package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"go.uber.org/zap"
)

var peerUIDFn = peerUID

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the daemon logger. Sessions derive their loggers from it.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithShutdownOnControl arms every session so the control character stops
// the daemon.
func WithShutdownOnControl(armed bool) Option {
	return func(s *Server) {
		s.armed = armed
	}
}

// WithSessionHooks registers callbacks run when a session opens and closes.
func WithSessionHooks(onOpen, onClose func()) Option {
	return func(s *Server) {
		s.onOpen = onOpen
		s.onClose = onClose
	}
}

// Server listens for client connections on a Unix socket.
type Server struct {
	socketPath string
	handler    Handler
	logger     *zap.Logger
	armed      bool
	onOpen     func()
	onClose    func()

	listener  net.Listener
	closeOnce sync.Once
	closeErr  error
	shutdown  *ShutdownCoordinator
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu       sync.Mutex
	sessions map[*Session]struct{}
}

// NewServer creates a new server.
func NewServer(socketPath string, handler Handler, opts ...Option) *Server {
	s := &Server{
		socketPath: socketPath,
		handler:    handler,
		logger:     zap.NewNop(),
		sessions:   make(map[*Session]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.shutdown = NewShutdownCoordinator(s.closeListener)
	return s
}

// Start begins listening for connections. It removes any stale socket file first.
func (s *Server) Start() error {
	// Remove stale socket
	os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		ln.Close()
		os.Remove(s.socketPath)
		return fmt.Errorf("setting socket permissions: %w", err)
	}
	s.Serve(ln)
	return nil
}

// Serve accepts connections from ln in the background.
func (s *Server) Serve(ln net.Listener) {
	s.listener = ln
	s.logger.Info("daemon listening", zap.String("socket", s.socketPath))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()
}

// Done is closed when a client requested shutdown.
func (s *Server) Done() <-chan struct{} {
	return s.shutdown.Done()
}

// Sessions returns the number of live sessions.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Stop closes the listener and every live connection, then waits for
// their goroutines.
func (s *Server) Stop() {
	_ = s.closeListener()
	s.cancel()

	s.mu.Lock()
	for sess := range s.sessions {
		_ = sess.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	if s.socketPath != "" {
		os.Remove(s.socketPath)
	}
}

func (s *Server) closeListener() error {
	s.closeOnce.Do(func() {
		if s.listener != nil {
			s.closeErr = s.listener.Close()
		}
	})
	return s.closeErr
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Warn("accept failed", zap.Error(err))
			}
			return // listener closed
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	uid, err := peerUIDFn(conn)
	if err != nil {
		s.logger.Warn("peer uid check failed", zap.Error(err))
		rejectConn(conn, "peer uid check failed")
		return
	}
	if uid != uint32(os.Getuid()) {
		s.logger.Warn("rejected connection from another user", zap.Uint32("peer_uid", uid))
		rejectConn(conn, "peer uid mismatch")
		return
	}

	var shutdown *ShutdownCoordinator
	if s.armed {
		shutdown = s.shutdown
	}
	sess := NewSession(conn, s.handler, s.logger.With(zap.Uint32("peer_uid", uid)), shutdown)

	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()
	if s.onOpen != nil {
		s.onOpen()
	}
	sess.logger.Debug("client connected")

	sess.Serve(s.ctx)

	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
	if s.onClose != nil {
		s.onClose()
	}
}

func rejectConn(conn net.Conn, msg string) {
	notice, _ := EncodeNotice(Notice{Kind: NoticeExit, ExitCode: ExitInternal, Message: msg})
	conn.Write(append([]byte(msg+"\n"), notice...)) //nolint: errcheck
}
