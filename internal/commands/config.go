package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lydakis/zowex/internal/ipc"
)

func newConfigCmd(rt Runtime, inv *ipc.Invocation) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Team configuration helpers",
	}
	cmd.AddCommand(newConfigWhereCmd(rt, inv))
	return cmd
}

func newConfigWhereCmd(rt Runtime, inv *ipc.Invocation) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "where",
		Short: "List the configuration files that apply to the current directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(cmd.CommandPath(), format); err != nil {
				return err
			}
			if inv.Cwd == "" {
				return errors.New("no working directory was sent with the request")
			}
			res, err := rt.FindProject(inv.Cwd)
			if err != nil {
				return fmt.Errorf("locating configuration: %w", err)
			}
			return render(cmd.OutOrStdout(), format, res, func(w io.Writer) error {
				if len(res.Layers) == 0 {
					fmt.Fprintf(w, "no configuration found for %s\n", res.Cwd)
					return nil
				}
				for _, layer := range res.Layers {
					kind := "project"
					if layer.Global {
						kind = "global"
					}
					if layer.User {
						kind += " user"
					}
					fmt.Fprintf(w, "%s\t%s\n", kind, layer.Path)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", formatText, "output format: text, json, or yaml")
	return cmd
}
