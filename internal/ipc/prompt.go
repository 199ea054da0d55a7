package ipc

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrPromptReplaced is returned to a waiting prompt when a newer prompt
	// on the same session takes its place.
	ErrPromptReplaced = errors.New("prompt replaced by a newer prompt")
	// ErrSessionClosed is returned to a waiting prompt when the connection
	// ends before an answer arrives.
	ErrSessionClosed = errors.New("session closed")
)

// Prompter asks the connected client a question and waits for the answer.
type Prompter interface {
	Prompt(ctx context.Context, text string, secure bool) (string, error)
}

type promptResult struct {
	answer string
	err    error
}

type promptWaiter struct {
	ch chan promptResult
}

// promptBroker holds at most one outstanding prompt per session.
type promptBroker struct {
	mu     sync.Mutex
	waiter *promptWaiter
	closed bool
}

// wait registers a new outstanding prompt. When active is non-nil and
// reports false the waiter is failed with errAbandoned and the current
// waiter is left alone.
func (b *promptBroker) wait(active func() bool) *promptWaiter {
	w := &promptWaiter{ch: make(chan promptResult, 1)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		w.ch <- promptResult{err: ErrSessionClosed}
		return w
	}
	if active != nil && !active() {
		w.ch <- promptResult{err: errAbandoned}
		return w
	}
	if b.waiter != nil {
		b.waiter.ch <- promptResult{err: ErrPromptReplaced}
	}
	b.waiter = w
	return w
}

// deliver hands answer to the outstanding prompt. It reports false when no
// prompt is waiting.
func (b *promptBroker) deliver(answer string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.waiter == nil {
		return false
	}
	b.waiter.ch <- promptResult{answer: answer}
	b.waiter = nil
	return true
}

func (b *promptBroker) forget(w *promptWaiter) {
	b.mu.Lock()
	if b.waiter == w {
		b.waiter = nil
	}
	b.mu.Unlock()
}

func (b *promptBroker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.waiter != nil {
		b.waiter.ch <- promptResult{err: ErrSessionClosed}
		b.waiter = nil
	}
}

// sessionPrompter is the Prompter handed to one command invocation.
type sessionPrompter struct {
	session *Session
	gen     uint64
}

func (p *sessionPrompter) Prompt(ctx context.Context, text string, secure bool) (string, error) {
	w := p.session.prompts.wait(p.active)
	defer p.session.prompts.forget(w)

	select {
	case res := <-w.ch:
		return res.answer, res.err
	default:
	}

	if err := p.session.writeNotice(p.gen, Notice{Kind: NoticePrompt, Text: text, Secure: secure}); err != nil {
		return "", err
	}

	select {
	case res := <-w.ch:
		return res.answer, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (p *sessionPrompter) active() bool {
	p.session.mu.Lock()
	defer p.session.mu.Unlock()
	return p.session.gen == p.gen
}
