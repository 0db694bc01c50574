package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "show server status",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := client.Status()
			if err != nil {
				return err
			}
			state := "offline"
			if status.Online {
				state = "online"
			}
			fmt.Printf("Status: %s\n", state)
			fmt.Printf("Main pid: %d\n", status.MainPid)
			if status.AuthHelperPid != 0 {
				fmt.Printf("Auth-helper pid: %d\n", status.AuthHelperPid)
			}
			fmt.Printf("Clients: %d\n", status.ClientCount)
			return nil
		},
	}
}
