package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/lydakis/zowex/internal/ipc"
)

// localCommands are handled by the front end and never reach the daemon's
// completion tree.
var localCommands = []string{"daemon", "mcp", "completion", "--help", "-h", "--version", "-V"}

func maybeHandleCompletionCommand(args []string, stdout, stderr io.Writer) (bool, int) {
	if len(args) == 0 || args[0] != "completion" {
		return false, 0
	}
	return true, runCompletionCommand(args[1:], stdout, stderr)
}

func runCompletionCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "zowex: usage: zowex completion <bash|zsh|fish>")
		return ipc.ExitUsageErr
	}

	script, ok := completionScripts[strings.ToLower(args[0])]
	if !ok {
		fmt.Fprintf(stderr, "zowex: unknown shell for completion: %s\n", args[0])
		return ipc.ExitUsageErr
	}

	_, _ = io.WriteString(stdout, strings.ReplaceAll(script, "@LOCAL@", strings.Join(localCommands, " ")))
	return ipc.ExitOK
}
