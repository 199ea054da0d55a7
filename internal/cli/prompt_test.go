package cli

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestReadAnswer(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "ibmuser\n", want: "ibmuser"},
		{in: "ibmuser\r\nrest\n", want: "ibmuser"},
		{in: "no newline", want: "no newline"},
		{in: "\n", want: ""},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := readAnswer(strings.NewReader(tt.in))
		if (err != nil) != tt.wantErr {
			t.Fatalf("readAnswer(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if err == nil && got != tt.want {
			t.Fatalf("readAnswer(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if tt.wantErr && !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Fatalf("readAnswer(%q) error = %v, want unexpected EOF", tt.in, err)
		}
	}
}

func TestPromptTerminalReadsFromTTY(t *testing.T) {
	restore := saveCLIHooks()
	defer restore()
	oldOpen := openTTYFn
	defer func() { openTTYFn = oldOpen }()

	path := filepath.Join(t.TempDir(), "tty")
	if err := os.WriteFile(path, []byte("IBMUSER\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	openTTYFn = func() (*os.File, error) { return os.Open(path) }
	var errOut bytes.Buffer
	rootStderr = &errOut

	// A regular file is not a terminal, so secure prompts fall back to a
	// plain line read.
	for _, secure := range []bool{false, true} {
		got, err := promptTerminal("User ID: ", secure)
		if err != nil {
			t.Fatalf("promptTerminal(secure=%v) error = %v", secure, err)
		}
		if got != "IBMUSER" {
			t.Fatalf("promptTerminal(secure=%v) = %q", secure, got)
		}
	}
	if errOut.String() != "User ID: User ID: " {
		t.Fatalf("stderr = %q", errOut.String())
	}
}

func TestPromptTerminalWithoutTTY(t *testing.T) {
	oldOpen := openTTYFn
	defer func() { openTTYFn = oldOpen }()
	openTTYFn = func() (*os.File, error) { return nil, os.ErrNotExist }

	if _, err := promptTerminal("Password: ", true); err == nil || !strings.Contains(err.Error(), "no terminal") {
		t.Fatalf("promptTerminal() error = %v, want no terminal", err)
	}
}

func TestInterruptiblePromptAnswers(t *testing.T) {
	prompt := interruptiblePrompt(func(text string, secure bool) (string, error) {
		return text + "-answer", nil
	}, make(chan struct{}))

	got, err := prompt("q", false)
	if err != nil || got != "q-answer" {
		t.Fatalf("prompt() = %q, %v", got, err)
	}
}

func TestInterruptiblePromptAbandonsOnInterrupt(t *testing.T) {
	restore := saveCLIHooks()
	defer restore()
	rootStderr = io.Discard

	block := make(chan struct{})
	defer close(block)
	interrupted := make(chan struct{})
	prompt := interruptiblePrompt(func(string, bool) (string, error) {
		<-block
		return "", nil
	}, interrupted)

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(interrupted)
	}()
	if _, err := prompt("Password: ", true); !errors.Is(err, errPromptInterrupted) {
		t.Fatalf("prompt() error = %v, want errPromptInterrupted", err)
	}
}
