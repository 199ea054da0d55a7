package ipc

import (
	"errors"
	"sync"
)

// ShutdownCoordinator stops the daemon when an armed session receives the
// control character. Stopping the listener is one-way and happens once.
type ShutdownCoordinator struct {
	stopListener func() error
	once         sync.Once
	done         chan struct{}
}

// NewShutdownCoordinator returns a coordinator that calls stopListener the
// first time it is triggered.
func NewShutdownCoordinator(stopListener func() error) *ShutdownCoordinator {
	return &ShutdownCoordinator{
		stopListener: stopListener,
		done:         make(chan struct{}),
	}
}

// Trigger acknowledges termination to the client, stops the listener, and
// closes the client connection, in that order. Every step runs even when an
// earlier one fails.
func (c *ShutdownCoordinator) Trigger(ack, closeConn func() error) error {
	var errs []error
	if ack != nil {
		if err := ack(); err != nil {
			errs = append(errs, err)
		}
	}
	c.once.Do(func() {
		if c.stopListener != nil {
			if err := c.stopListener(); err != nil {
				errs = append(errs, err)
			}
		}
		close(c.done)
	})
	if closeConn != nil {
		if err := closeConn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Done is closed once shutdown has been triggered.
func (c *ShutdownCoordinator) Done() <-chan struct{} {
	return c.done
}

// Triggered reports whether shutdown has been triggered.
func (c *ShutdownCoordinator) Triggered() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
