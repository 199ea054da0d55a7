package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/lydakis/zowex/internal/ipc"
	"github.com/lydakis/zowex/internal/project"
)

type fakeRuntime struct {
	status  Status
	locator *project.Locator
}

func (f *fakeRuntime) Status() Status { return f.status }

func (f *fakeRuntime) FindProject(cwd string) (*project.Result, error) {
	return f.locator.Find(cwd)
}

type fakePrompter struct {
	answer string
	asked  []string
}

func (p *fakePrompter) Prompt(_ context.Context, text string, secure bool) (string, error) {
	p.asked = append(p.asked, fmt.Sprintf("%s|%t", text, secure))
	return p.answer, nil
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *fakeRuntime) {
	t.Helper()
	rt := &fakeRuntime{
		status: Status{
			PID:             4242,
			Version:         "1.2.3",
			Socket:          "/run/zowex/daemon.sock",
			StartedAt:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			Uptime:          "1m0s",
			Sessions:        2,
			ShutdownOnCtrlC: true,
		},
		locator: project.NewLocator("", 0),
	}
	return NewDispatcher(rt, "1.2.3", nil), rt
}

func run(t *testing.T, d *Dispatcher, inv *ipc.Invocation, argv ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	inv.Argv = argv
	if inv.Stdin == nil {
		inv.Stdin = strings.NewReader("")
	}
	inv.Stdout = &out
	inv.Stderr = &out
	err := d.Handle(context.Background(), inv)
	return out.String(), err
}

func TestVersion(t *testing.T) {
	d, _ := newTestDispatcher(t)
	out, err := run(t, d, &ipc.Invocation{}, "version")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3\n", out)
}

func TestEmptyArgvPrintsHelp(t *testing.T) {
	d, _ := newTestDispatcher(t)
	out, err := run(t, d, &ipc.Invocation{})
	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "diag")
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		want string
	}{
		{name: "unknown command", argv: []string{"zos-nope"}, want: `unknown command "zos-nope"`},
		{name: "unknown flag", argv: []string{"version", "--bogus"}, want: "unknown flag: --bogus"},
		{name: "missing argument", argv: []string{"diag", "prompt"}, want: "accepts 1 arg(s)"},
		{name: "bad format", argv: []string{"daemon", "status", "--format", "xml"}, want: `invalid --format "xml"`},
		{name: "bad duration", argv: []string{"diag", "wait", "soon"}, want: `invalid duration "soon"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := newTestDispatcher(t)
			_, err := run(t, d, &ipc.Invocation{}, tt.argv...)
			require.Error(t, err)

			var usage *UsageError
			require.ErrorAs(t, err, &usage)
			assert.Contains(t, err.Error(), tt.want)
			assert.Contains(t, err.Error(), "--help' for usage.")
			assert.Equal(t, ipc.ExitUsageErr, ipc.ExitCodeOf(err))
		})
	}
}

func TestDaemonStatusFormats(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, project.ConfigName), []byte("{}"), 0o600))

	d, _ := newTestDispatcher(t)

	out, err := run(t, d, &ipc.Invocation{Cwd: dir}, "daemon", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "pid: 4242\n")
	assert.Contains(t, out, "sessions: 2\n")
	assert.Contains(t, out, "project config: "+filepath.Join(dir, project.ConfigName))

	out, err = run(t, d, &ipc.Invocation{Cwd: dir}, "daemon", "status", "--format", "json")
	require.NoError(t, err)
	var st Status
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, 4242, st.PID)
	assert.Equal(t, "/run/zowex/daemon.sock", st.Socket)
	require.NotNil(t, st.Project)
	assert.Equal(t, filepath.Join(dir, project.ConfigName), st.Project.Nearest())

	out, err = run(t, d, &ipc.Invocation{Cwd: dir}, "daemon", "status", "--format", "yaml")
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Equal(t, 4242, doc["pid"])
	assert.Equal(t, true, doc["shutdown_on_ctrl_c"])
}

func TestConfigWhere(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "jcl")
	require.NoError(t, os.Mkdir(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, project.UserConfigName), []byte("{}"), 0o600))

	d, _ := newTestDispatcher(t)
	out, err := run(t, d, &ipc.Invocation{Cwd: nested}, "config", "where")
	require.NoError(t, err)
	assert.Equal(t, "project user\t"+filepath.Join(dir, project.UserConfigName)+"\n", out)

	_, err = run(t, d, &ipc.Invocation{}, "config", "where")
	require.Error(t, err)
	assert.Equal(t, ipc.ExitCommandErr, ipc.ExitCodeOf(err))
}

func TestDiagStdin(t *testing.T) {
	d, _ := newTestDispatcher(t)

	out, err := run(t, d, &ipc.Invocation{Stdin: strings.NewReader("hello"), HasStdin: true}, "diag", "stdin")
	require.NoError(t, err)
	assert.Equal(t, "forwarded: true\nbytes: 5\nsha256: 2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824\n", out)

	out, err = run(t, d, &ipc.Invocation{Stdin: strings.NewReader("a\fb\x03"), HasStdin: true}, "diag", "stdin", "--echo")
	require.NoError(t, err)
	assert.Equal(t, "a\fb\x03", out)
}

func TestDiagPrompt(t *testing.T) {
	d, _ := newTestDispatcher(t)

	p := &fakePrompter{answer: "lpar1.example.com"}
	out, err := run(t, d, &ipc.Invocation{Prompter: p}, "diag", "prompt", "Host:")
	require.NoError(t, err)
	assert.Equal(t, "lpar1.example.com\n", out)
	assert.Equal(t, []string{"Host:|false"}, p.asked)

	p = &fakePrompter{answer: "s3cret"}
	out, err = run(t, d, &ipc.Invocation{Prompter: p}, "diag", "prompt", "Password:", "--secure")
	require.NoError(t, err)
	assert.Equal(t, "received 6 characters\n", out)
	assert.Equal(t, []string{"Password:|true"}, p.asked)
}

func TestDiagEnvSorted(t *testing.T) {
	d, _ := newTestDispatcher(t)
	out, err := run(t, d, &ipc.Invocation{Env: map[string]string{
		"ZOWE_OPT_USER": "ibmuser",
		"ZOWE_OPT_HOST": "lpar1",
	}}, "diag", "env")
	require.NoError(t, err)
	assert.Equal(t, "ZOWE_OPT_HOST=lpar1\nZOWE_OPT_USER=ibmuser\n", out)
}

func TestDiagWaitHonorsCancellation(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer
	inv := &ipc.Invocation{
		Argv:   []string{"diag", "wait", "1h"},
		Stdin:  strings.NewReader(""),
		Stdout: &out,
		Stderr: &out,
	}

	errs := make(chan error, 1)
	go func() { errs <- d.Handle(ctx, inv) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errs:
		require.True(t, errors.Is(err, context.Canceled), "err = %v", err)
		assert.Equal(t, ipc.ExitInterrupted, ipc.ExitCodeOf(err))
	case <-time.After(2 * time.Second):
		t.Fatal("diag wait ignored cancellation")
	}
}

func TestRegisterExtension(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Register(func(root *cobra.Command, inv *ipc.Invocation) {
		root.AddCommand(&cobra.Command{
			Use: "zos-files",
			RunE: func(cmd *cobra.Command, args []string) error {
				fmt.Fprintf(cmd.OutOrStdout(), "listing from %s\n", inv.Cwd)
				return nil
			},
		})
	})

	out, err := run(t, d, &ipc.Invocation{Cwd: "/u/ibmuser"}, "zos-files")
	require.NoError(t, err)
	assert.Equal(t, "listing from /u/ibmuser\n", out)
}

func TestCommandFailureIsNotUsage(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Register(func(root *cobra.Command, _ *ipc.Invocation) {
		root.AddCommand(&cobra.Command{
			Use:  "fail",
			RunE: func(*cobra.Command, []string) error { return errors.New("data set not found") },
		})
	})

	_, err := run(t, d, &ipc.Invocation{}, "fail")
	require.Error(t, err)
	var usage *UsageError
	assert.False(t, errors.As(err, &usage))
	assert.Equal(t, ipc.ExitCommandErr, ipc.ExitCodeOf(err))
}
