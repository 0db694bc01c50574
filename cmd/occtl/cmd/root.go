// Package cmd implements the occtl-equivalent operator CLI of
// spec.md §6: a one-shot command per invocation, or an interactive
// shell when invoked with no arguments, mirroring occtl.c's
// commands_st table and exit-code convention (0 success, 1 failure).
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ocserv/sessiond/control"
)

var client *control.Client

// Execute runs the one-shot CLI and returns the process exit code.
func Execute() int {
	root := newRootCmd()
	err := root.Execute()
	if client != nil {
		client.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "occtl",
		Short:        "control and monitor the ocserv session-lifecycle engine",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Interactive mode (RunInteractive) dials once up front and
			// reuses the connection across commands; a one-shot
			// invocation of Execute dials here instead.
			if client != nil {
				return nil
			}
			c, err := control.Dial()
			if err != nil {
				return fmt.Errorf("failed to connect to sessiond: %w", err)
			}
			client = c
			return nil
		},
	}

	root.AddCommand(
		newStatusCmd(),
		newListCmd(),
		newInfoCmd(),
		newDisconnectCmd(),
		newReloadCmd(),
		newStopCmd(),
	)
	return root
}
