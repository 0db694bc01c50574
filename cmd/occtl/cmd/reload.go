package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "reload server configuration",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := client.Reload()
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("reload failed")
			}
			fmt.Println("config reloaded")
			return nil
		},
	}
}

func newStopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "stop the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := client.Stop()
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("stop failed")
			}
			fmt.Println("server stopping")
			return nil
		},
	}
	// "now" mirrors occtl.c's "stop now", which skips any drain grace
	// the server would otherwise apply; accepted here for compatibility
	// even though the request itself carries no parameters today.
	cmd.Flags().Bool("now", false, "accepted for compatibility with occtl's \"stop now\"; has no effect")
	return cmd
}
