// Package commands is the command entry point the daemon runs for every
// request. Each invocation gets a fresh cobra tree bound to its own
// arguments, working directory, environment, and streams.
package commands

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lydakis/zowex/internal/ipc"
	"github.com/lydakis/zowex/internal/project"
)

// Status is a snapshot of the running daemon.
type Status struct {
	PID             int             `json:"pid" yaml:"pid"`
	Version         string          `json:"version" yaml:"version"`
	Socket          string          `json:"socket" yaml:"socket"`
	StartedAt       time.Time       `json:"startedAt" yaml:"started_at"`
	Uptime          string          `json:"uptime" yaml:"uptime"`
	Sessions        int             `json:"sessions" yaml:"sessions"`
	ShutdownOnCtrlC bool            `json:"shutdownOnCtrlC" yaml:"shutdown_on_ctrl_c"`
	Project         *project.Result `json:"project,omitempty" yaml:"project,omitempty"`
}

// Runtime is what built-in commands need from the daemon host.
type Runtime interface {
	Status() Status
	FindProject(cwd string) (*project.Result, error)
}

// Extension adds commands to the tree built for one invocation.
type Extension func(root *cobra.Command, inv *ipc.Invocation)

// UsageError marks a command line the tree could not accept.
type UsageError struct {
	Err     error
	Command string
}

func (e *UsageError) Error() string {
	if e.Command == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v\nRun '%s --help' for usage.", e.Err, e.Command)
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

// ExitCode reports the usage exit status.
func (e *UsageError) ExitCode() int {
	return ipc.ExitUsageErr
}

// Dispatcher runs invocations against the command tree.
type Dispatcher struct {
	rt      Runtime
	version string
	logger  *zap.Logger

	mu   sync.RWMutex
	exts []Extension
}

// NewDispatcher returns a Dispatcher serving the built-in commands.
func NewDispatcher(rt Runtime, version string, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{rt: rt, version: version, logger: logger}
}

// Register adds an extension applied to every tree built from now on.
func (d *Dispatcher) Register(ext Extension) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.exts = append(d.exts, ext)
}

// Handle parses inv.Argv and runs the matching command.
func (d *Dispatcher) Handle(ctx context.Context, inv *ipc.Invocation) error {
	root := d.NewRoot(inv)

	args := inv.Argv
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)

	d.logger.Debug("dispatching command",
		zap.String("session", inv.SessionID),
		zap.Strings("argv", args),
	)

	cmd, err := root.ExecuteContextC(ctx)
	if err != nil && isUsageError(err) {
		var usage *UsageError
		if !errors.As(err, &usage) {
			path := root.CommandPath()
			if cmd != nil {
				path = cmd.CommandPath()
			}
			err = &UsageError{Err: err, Command: path}
		}
	}
	return err
}

// NewRoot builds the command tree for one invocation.
func (d *Dispatcher) NewRoot(inv *ipc.Invocation) *cobra.Command {
	root := &cobra.Command{
		Use:           "zowex",
		Short:         "Zowe CLI daemon front end",
		Version:       d.version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetIn(inv.Stdin)
	root.SetOut(inv.Stdout)
	root.SetErr(inv.Stderr)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &UsageError{Err: err, Command: cmd.CommandPath()}
	})

	root.AddCommand(
		newVersionCmd(d.version),
		newDaemonCmd(d.rt, inv),
		newConfigCmd(d.rt, inv),
		newDiagCmd(inv),
	)

	d.mu.RLock()
	exts := append([]Extension(nil), d.exts...)
	d.mu.RUnlock()
	for _, ext := range exts {
		ext(root, inv)
	}
	return root
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the daemon version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
}
