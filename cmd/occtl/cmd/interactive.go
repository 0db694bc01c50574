package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/ocserv/sessiond/control"
)

// RunInteractive implements occtl.c's readline-driven shell: a loop
// reading one command line at a time, with history and tab completion
// over the top-level command names, until "exit"/"quit" or EOF.
func RunInteractive() int {
	c, err := control.Dial()
	if err != nil {
		fmt.Println("failed to connect to sessiond:", err)
		return 1
	}
	defer c.Close()
	client = c

	completer := readline.NewPrefixCompleter(
		readline.PcItem("status"),
		readline.PcItem("list", readline.PcItem("users")),
		readline.PcItem("info", readline.PcItem("user"), readline.PcItem("id")),
		readline.PcItem("disconnect", readline.PcItem("user"), readline.PcItem("id")),
		readline.PcItem("reload"),
		readline.PcItem("stop"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
		readline.PcItem("quit"),
	)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "occtl> ",
		HistoryFile:     "/tmp/occtl_history",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Println("failed to start interactive shell:", err)
		return 1
	}
	defer rl.Close()

	root := newRootCmd()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return 0
		}
		if err != nil {
			return 1
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return 0
		}
		if line == "?" {
			line = "help"
		}

		root.SetArgs(strings.Fields(line))
		if err := root.Execute(); err != nil {
			fmt.Println(err)
		}
	}
}
