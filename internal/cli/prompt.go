package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// errPromptInterrupted abandons a prompt when the user presses Ctrl-C.
var errPromptInterrupted = errors.New("prompt interrupted")

var (
	promptFn  = promptTerminal
	openTTYFn = func() (*os.File, error) { return os.Open("/dev/tty") }
)

// promptTerminal shows text on stderr and reads one answer from the
// controlling terminal. Secure prompts are read without echo.
func promptTerminal(text string, secure bool) (string, error) {
	tty, err := openTTYFn()
	if err != nil {
		return "", fmt.Errorf("answering prompt %q: no terminal: %w", strings.TrimSpace(text), err)
	}
	defer tty.Close()

	fmt.Fprint(rootStderr, text)
	if secure && term.IsTerminal(int(tty.Fd())) {
		answer, err := term.ReadPassword(int(tty.Fd()))
		fmt.Fprintln(rootStderr)
		if err != nil {
			return "", fmt.Errorf("reading secure answer: %w", err)
		}
		return string(answer), nil
	}
	return readAnswer(tty)
}

func readAnswer(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("reading answer: %w", io.ErrUnexpectedEOF)
		}
		return "", fmt.Errorf("reading answer: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// interruptiblePrompt runs prompt in the background so a Ctrl-C can abandon
// it without waiting for the terminal read.
func interruptiblePrompt(prompt func(string, bool) (string, error), interrupted <-chan struct{}) func(string, bool) (string, error) {
	return func(text string, secure bool) (string, error) {
		type result struct {
			answer string
			err    error
		}
		done := make(chan result, 1)
		go func() {
			answer, err := prompt(text, secure)
			done <- result{answer, err}
		}()
		select {
		case r := <-done:
			return r.answer, r.err
		case <-interrupted:
			fmt.Fprintln(rootStderr)
			return "", errPromptInterrupted
		}
	}
}
