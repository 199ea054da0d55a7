package ipc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is the position of a session in its request cycle.
type State int32

const (
	StateIdle State = iota
	StateParsing
	StateAwaitingStdin
	StateExecuting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateParsing:
		return "parsing"
	case StateAwaitingStdin:
		return "awaiting_stdin"
	case StateExecuting:
		return "executing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Handler is the command entry point. It runs one invocation to completion.
type Handler interface {
	Handle(ctx context.Context, inv *Invocation) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, inv *Invocation) error

func (f HandlerFunc) Handle(ctx context.Context, inv *Invocation) error {
	return f(ctx, inv)
}

// Invocation is one command run on behalf of a client.
type Invocation struct {
	SessionID string
	Argv      []string
	Cwd       string
	Env       map[string]string

	// Stdin reads the forwarded stdin tail. It is always non-nil; HasStdin
	// is false when the client forwarded nothing.
	Stdin    io.Reader
	HasStdin bool

	Stdout   io.Writer
	Stderr   io.Writer
	Prompter Prompter
}

var errAbandoned = errors.New("command abandoned")

const readBufferSize = 32 << 10

// Session serves one client connection.
type Session struct {
	id       string
	conn     net.Conn
	handler  Handler
	logger   *zap.Logger
	shutdown *ShutdownCoordinator

	prompts promptBroker
	cmds    sync.WaitGroup
	writeMu sync.Mutex
	closing atomic.Bool

	mu      sync.Mutex
	framing State
	seq     uint64
	gen     uint64
	cancel  context.CancelFunc
}

// NewSession binds a connection to handler. A non-nil shutdown arms the
// session: the control character then stops the daemon instead of
// cancelling the running command.
func NewSession(conn net.Conn, handler Handler, logger *zap.Logger, shutdown *ShutdownCoordinator) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	return &Session{
		id:       id,
		conn:     conn,
		handler:  handler,
		logger:   logger.With(zap.String("session", id)),
		shutdown: shutdown,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current request-cycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != 0 {
		return StateExecuting
	}
	return s.framing
}

// Close ends the connection from the daemon side.
func (s *Session) Close() error {
	s.closing.Store(true)
	return s.conn.Close()
}

// Serve reads envelopes until the connection ends, running each request
// through the handler. It returns after every command it started has
// returned.
func (s *Session) Serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.prompts.close()
		s.cmds.Wait()
		_ = s.conn.Close()
	}()

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	var framer Framer
	buf := make([]byte, readBufferSize)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			frames, ferr := framer.Feed(buf[:n])
			switch {
			case framer.AwaitingStdin():
				s.setFraming(StateAwaitingStdin)
			case len(framer.Pending()) > 0:
				s.setFraming(StateParsing)
			default:
				s.setFraming(StateIdle)
			}
			for _, frame := range frames {
				if s.closing.Load() {
					break
				}
				if derr := s.dispatch(ctx, frame); derr != nil {
					ferr = derr
					break
				}
			}
			if ferr != nil && !s.closing.Load() {
				s.reportFrameError(ferr)
				_ = s.Close()
			}
		}
		if err != nil {
			switch {
			case s.closing.Load() || errors.Is(err, net.ErrClosed):
				s.logger.Info("client closed")
			case errors.Is(err, io.EOF):
				s.logger.Info("daemon client disconnected")
				if ferr := framer.Finish(); ferr != nil {
					s.reportFrameError(ferr)
				}
			default:
				s.logger.Warn("reading from client", zap.Error(err))
			}
			return
		}
	}
}

func (s *Session) setFraming(state State) {
	s.mu.Lock()
	s.framing = state
	s.mu.Unlock()
}

// dispatch routes one envelope. A request arriving while a command is
// still executing means the client lost track of the conversation, so it is
// reported as a desync and ends the connection.
func (s *Session) dispatch(ctx context.Context, frame Frame) error {
	msg := frame.Message
	switch msg.Kind {
	case KindPrompt:
		if msg.Prompt.IsControl() {
			s.interrupt()
			return nil
		}
		if !s.prompts.deliver(msg.Prompt.Stdin) {
			s.logger.Warn("prompt response with no outstanding prompt")
		}
	case KindRequest:
		if !s.start(ctx, msg.Request, frame.Stdin) {
			return &FrameError{
				Kind: FrameErrorDesync,
				Msg:  "request received while a command is executing",
				Raw:  frame.Raw,
			}
		}
	}
	return nil
}

// start launches req unless another command is executing.
func (s *Session) start(ctx context.Context, req *Request, stdin []byte) bool {
	s.mu.Lock()
	if s.gen != 0 {
		s.mu.Unlock()
		return false
	}
	s.seq++
	gen := s.seq
	cmdCtx, cancel := context.WithCancel(ctx)
	s.gen = gen
	s.cancel = cancel
	s.mu.Unlock()

	out := &sessionWriter{session: s, gen: gen}
	inv := &Invocation{
		SessionID: s.id,
		Argv:      req.Argv,
		Cwd:       req.Cwd,
		Env:       req.Env,
		Stdin:     bytes.NewReader(stdin),
		HasStdin:  req.StdinLength > 0,
		Stdout:    out,
		Stderr:    out,
		Prompter:  &sessionPrompter{session: s, gen: gen},
	}
	if inv.Env == nil {
		inv.Env = map[string]string{}
	}

	s.logger.Debug("executing command",
		zap.Strings("argv", req.Argv),
		zap.String("cwd", req.Cwd),
		zap.Int("stdin_bytes", len(stdin)),
	)

	s.cmds.Add(1)
	go func() {
		defer s.cmds.Done()
		defer cancel()
		err := s.run(cmdCtx, inv)
		s.finish(gen, err)
	}()
	return true
}

func (s *Session) run(ctx context.Context, inv *Invocation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("command panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			err = &ExitError{Code: ExitInternal, Err: fmt.Errorf("internal error: %v", r)}
		}
	}()
	return s.handler.Handle(ctx, inv)
}

// finish reports the result of command gen unless it was abandoned. The
// exit notice is written before the session accepts the next request.
func (s *Session) finish(gen uint64, err error) {
	code := ExitCodeOf(err)
	if err != nil && !silentExit(err) {
		msg := err.Error()
		if len(msg) > 0 && msg[len(msg)-1] != '\n' {
			msg += "\n"
		}
		_ = s.writeFor(gen, escapeOutput([]byte(msg)))
	}

	notice, encErr := EncodeNotice(Notice{Kind: NoticeExit, ExitCode: code})
	if encErr != nil {
		s.logger.Error("encoding exit notice", zap.Error(encErr))
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.gen = 0
	s.cancel = nil
	s.mu.Unlock()

	if _, werr := s.conn.Write(notice); werr != nil {
		s.logger.Debug("writing exit notice", zap.Error(werr))
	}
	s.logger.Debug("command finished", zap.Int("exit_code", code))
}

// interrupt handles the control character.
func (s *Session) interrupt() {
	if s.shutdown != nil {
		s.logger.Info("shutdown requested by client")
		err := s.shutdown.Trigger(
			func() error {
				return s.writeNotice(0, Notice{Kind: NoticeShutdown, Message: "daemon shutting down"})
			},
			s.Close,
		)
		if err != nil {
			s.logger.Debug("shutdown", zap.Error(err))
		}
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	gen, cancel := s.gen, s.cancel
	s.gen = 0
	s.cancel = nil
	s.mu.Unlock()

	if gen == 0 {
		s.logger.Debug("control character with no running command")
		return
	}
	cancel()

	notice, err := EncodeNotice(Notice{Kind: NoticeExit, ExitCode: ExitInterrupted})
	if err != nil {
		s.logger.Error("encoding exit notice", zap.Error(err))
		return
	}
	if _, err := s.conn.Write(notice); err != nil {
		s.logger.Debug("writing exit notice", zap.Error(err))
	}
	s.logger.Info("command interrupted")
}

// writeFor writes p on behalf of command gen. Output of an abandoned
// command is dropped. gen 0 writes unconditionally.
func (s *Session) writeFor(gen uint64, p []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if gen != 0 {
		s.mu.Lock()
		active := s.gen == gen
		s.mu.Unlock()
		if !active {
			return errAbandoned
		}
	}
	_, err := s.conn.Write(p)
	return err
}

func (s *Session) writeNotice(gen uint64, n Notice) error {
	data, err := EncodeNotice(n)
	if err != nil {
		return err
	}
	return s.writeFor(gen, data)
}

func (s *Session) reportFrameError(err error) {
	var raw []byte
	fields := []zap.Field{zap.Error(err)}
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		raw = frameErr.Raw
		fields = append(fields, zap.Stringer("kind", frameErr.Kind))
	}
	s.logger.Error("invalid daemon request", fields...)
	s.logger.Error("First 1024 bytes of daemon request:\n" + head(raw))
}

// sessionWriter forwards command output to the client as it is written.
type sessionWriter struct {
	session *Session
	gen     uint64
}

func (w *sessionWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	err := w.session.writeFor(w.gen, escapeOutput(p))
	if errors.Is(err, errAbandoned) {
		return len(p), nil
	}
	if err != nil {
		return 0, err
	}
	return len(p), nil
}
