package cmd

import (
	"fmt"
	"text/tabwriter"
	"os"

	"github.com/spf13/cobra"

	"github.com/ocserv/sessiond/session"
)

func newListCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "list",
		Short: "list connected users",
	}
	root.AddCommand(&cobra.Command{
		Use:   "users",
		Short: "list every connected user",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			tuples, err := client.ListUsers()
			if err != nil {
				return err
			}
			printTuples(tuples)
			return nil
		},
	})
	return root
}

func printTuples(tuples []session.Tuple) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tGROUPNAME\tVPN IPv4\tVPN IPv6\tDEVICE\tSTATE\tSINCE")
	for _, t := range tuples {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			t.ID, t.Username, t.Groupname, t.VPNIPv4, t.VPNIPv6, t.Device, t.AuthState, t.Since)
	}
	w.Flush()
}
