package commands

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/lydakis/zowex/internal/ipc"
)

func newDiagCmd(inv *ipc.Invocation) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diag",
		Short: "Exercise the daemon connection",
	}
	cmd.AddCommand(
		newDiagStdinCmd(inv),
		newDiagPromptCmd(inv),
		newDiagEnvCmd(inv),
		newDiagWaitCmd(),
	)
	return cmd
}

func newDiagStdinCmd(inv *ipc.Invocation) *cobra.Command {
	var echo bool
	cmd := &cobra.Command{
		Use:   "stdin",
		Short: "Report the size and digest of forwarded stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h := sha256.New()
			var src io.Reader = cmd.InOrStdin()
			if echo {
				src = io.TeeReader(src, cmd.OutOrStdout())
			}
			n, err := io.Copy(h, src)
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			if echo {
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "forwarded: %t\nbytes: %d\nsha256: %s\n",
				inv.HasStdin, n, hex.EncodeToString(h.Sum(nil)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&echo, "echo", false, "write stdin back instead of a summary")
	return cmd
}

func newDiagPromptCmd(inv *ipc.Invocation) *cobra.Command {
	var secure bool
	cmd := &cobra.Command{
		Use:   "prompt <question>",
		Short: "Ask the client a question and print the answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if inv.Prompter == nil {
				return fmt.Errorf("this session cannot prompt")
			}
			answer, err := inv.Prompter.Prompt(cmd.Context(), args[0], secure)
			if err != nil {
				return err
			}
			if secure {
				fmt.Fprintf(cmd.OutOrStdout(), "received %d characters\n", len(answer))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}
	cmd.Flags().BoolVar(&secure, "secure", false, "hide the answer while typing")
	return cmd
}

func newDiagEnvCmd(inv *ipc.Invocation) *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Print the environment forwarded with the request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			keys := make([]string, 0, len(inv.Env))
			for k := range inv.Env {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", k, inv.Env[k])
			}
			return nil
		},
	}
}

func newDiagWaitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wait <duration>",
		Short: "Block until the duration passes or the command is interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := time.ParseDuration(args[0])
			if err != nil {
				return &UsageError{Err: fmt.Errorf("invalid duration %q", args[0]), Command: cmd.CommandPath()}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "waiting %s\n", d)

			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
				fmt.Fprintln(cmd.OutOrStdout(), "done")
				return nil
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}
		},
	}
}
