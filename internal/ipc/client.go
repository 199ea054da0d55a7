package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

var (
	// ErrConnectionClosed is returned when the daemon ends the connection
	// before the command finished.
	ErrConnectionClosed = errors.New("daemon closed the connection")
	// ErrDaemonShutdown is returned when the daemon acknowledged a shutdown
	// while a command was running.
	ErrDaemonShutdown = errors.New("daemon shut down")
)

// DialTimeout bounds how long Dial waits for the daemon socket.
const DialTimeout = 2 * time.Second

// Client is one persistent connection to the daemon. It runs invocations
// one after another; only Interrupt may be called concurrently with Invoke.
type Client struct {
	wmu     sync.Mutex
	conn    net.Conn
	dec     NoticeDecoder
	pending []Event
	buf     []byte
}

// Dial connects to the daemon listening on socketPath.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connecting to daemon: %w", err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn) *Client {
	return &Client{conn: conn, buf: make([]byte, readBufferSize)}
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// InvokeOptions controls where an invocation's output and prompts go.
type InvokeOptions struct {
	Stdout io.Writer
	// Prompt answers a prompt notice. Returning an error abandons the
	// invocation and closes the connection.
	Prompt func(text string, secure bool) (string, error)
}

// Invoke sends req with stdin, streams output to opts.Stdout, answers
// prompts, and returns the command's exit code.
func (c *Client) Invoke(ctx context.Context, req *Request, stdin []byte, opts InvokeOptions) (int, error) {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}

	data, err := EncodeRequest(req, stdin)
	if err != nil {
		return ExitInternal, err
	}

	stop := c.watch(ctx)
	defer stop()

	if err := c.write(data); err != nil {
		return ExitInternal, c.ctxErr(ctx, fmt.Errorf("sending request: %w", err))
	}

	for {
		ev, err := c.next()
		if err != nil {
			return ExitInternal, c.ctxErr(ctx, err)
		}
		if len(ev.Output) > 0 {
			if _, err := opts.Stdout.Write(ev.Output); err != nil {
				return ExitInternal, fmt.Errorf("writing output: %w", err)
			}
			continue
		}

		n := ev.Notice
		switch n.Kind {
		case NoticeExit:
			return n.ExitCode, nil
		case NoticeShutdown:
			return ExitInterrupted, ErrDaemonShutdown
		case NoticePrompt:
			if opts.Prompt == nil {
				c.conn.Close()
				return ExitInternal, fmt.Errorf("daemon prompted %q with no way to answer", n.Text)
			}
			answer, err := opts.Prompt(n.Text, n.Secure)
			if err != nil {
				c.conn.Close()
				return ExitInterrupted, err
			}
			if err := c.send(answer); err != nil {
				return ExitInternal, c.ctxErr(ctx, err)
			}
		}
	}
}

// Interrupt sends the control character.
func (c *Client) Interrupt() error {
	return c.send(ControlChar)
}

// Shutdown sends the control character and waits for the daemon's
// termination acknowledgment, returning its message.
func (c *Client) Shutdown(ctx context.Context) (string, error) {
	stop := c.watch(ctx)
	defer stop()

	if err := c.Interrupt(); err != nil {
		return "", c.ctxErr(ctx, err)
	}
	for {
		ev, err := c.next()
		if err != nil {
			return "", c.ctxErr(ctx, err)
		}
		if ev.Notice != nil && ev.Notice.Kind == NoticeShutdown {
			return ev.Notice.Message, nil
		}
	}
}

func (c *Client) send(answer string) error {
	data, err := EncodePrompt(answer)
	if err != nil {
		return err
	}
	if err := c.write(data); err != nil {
		return fmt.Errorf("sending prompt response: %w", err)
	}
	return nil
}

func (c *Client) write(data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := c.conn.Write(data)
	return err
}

func (c *Client) next() (Event, error) {
	for len(c.pending) == 0 {
		n, err := c.conn.Read(c.buf)
		if n > 0 {
			events, derr := c.dec.Feed(c.buf[:n])
			if derr != nil {
				return Event{}, derr
			}
			c.pending = append(c.pending, events...)
		}
		if err != nil && len(c.pending) == 0 {
			if errors.Is(err, io.EOF) {
				return Event{}, ErrConnectionClosed
			}
			return Event{}, fmt.Errorf("reading from daemon: %w", err)
		}
	}
	ev := c.pending[0]
	c.pending = c.pending[1:]
	return ev, nil
}

// watch unblocks pending I/O when ctx is done.
func (c *Client) watch(ctx context.Context) func() bool {
	return context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
}

func (c *Client) ctxErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
