package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newDisconnectCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "disconnect",
		Short: "disconnect a user or session id",
	}
	root.AddCommand(&cobra.Command{
		Use:   "user NAME",
		Short: "disconnect every session owned by NAME",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := client.DisconnectUser(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no such user %q", args[0])
			}
			fmt.Println("user disconnected")
			return nil
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "id ID",
		Short: "disconnect session ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid session id %q: %w", args[0], err)
			}
			ok, err := client.DisconnectID(uint32(id))
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no such session id %d", id)
			}
			fmt.Println("session disconnected")
			return nil
		},
	})
	return root
}
