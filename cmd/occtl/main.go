// Command occtl is the operator CLI for the ocserv session-lifecycle
// engine (spec.md §6): invoked with arguments it runs one command and
// exits; invoked with none it drops into an interactive shell, mirroring
// occtl.c's behavior.
package main

import (
	"os"

	"github.com/ocserv/sessiond/cmd/occtl/cmd"
)

func main() {
	if len(os.Args) > 1 {
		os.Exit(cmd.Execute())
	}
	os.Exit(cmd.RunInteractive())
}
