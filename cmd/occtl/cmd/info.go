package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ocserv/sessiond/session"
)

func newInfoCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "info",
		Short: "show information about a user or session id",
	}
	root.AddCommand(&cobra.Command{
		Use:   "user NAME",
		Short: "show information about every session owned by NAME",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tuples, err := client.UserInfo(args[0])
			if err != nil {
				return err
			}
			printTuples(tuples)
			return nil
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "id ID",
		Short: "show information about session ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid session id %q: %w", args[0], err)
			}
			t, err := client.IDInfo(uint32(id))
			if err != nil {
				return err
			}
			printTuples([]session.Tuple{t})
			return nil
		},
	})
	return root
}
