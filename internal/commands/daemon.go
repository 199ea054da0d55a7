package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lydakis/zowex/internal/ipc"
)

func newDaemonCmd(rt Runtime, inv *ipc.Invocation) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Inspect the running daemon",
	}
	cmd.AddCommand(newDaemonStatusCmd(rt, inv))
	return cmd
}

func newDaemonStatusCmd(rt Runtime, inv *ipc.Invocation) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon process, socket, and session details",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(cmd.CommandPath(), format); err != nil {
				return err
			}
			st := rt.Status()
			if inv.Cwd != "" {
				if res, err := rt.FindProject(inv.Cwd); err == nil {
					st.Project = res
				}
			}
			return render(cmd.OutOrStdout(), format, st, func(w io.Writer) error {
				fmt.Fprintf(w, "pid: %d\n", st.PID)
				fmt.Fprintf(w, "version: %s\n", st.Version)
				fmt.Fprintf(w, "socket: %s\n", st.Socket)
				fmt.Fprintf(w, "uptime: %s\n", st.Uptime)
				fmt.Fprintf(w, "sessions: %d\n", st.Sessions)
				fmt.Fprintf(w, "shutdown on ctrl-c: %t\n", st.ShutdownOnCtrlC)
				if nearest := st.Project.Nearest(); nearest != "" {
					fmt.Fprintf(w, "project config: %s\n", nearest)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", formatText, "output format: text, json, or yaml")
	return cmd
}
