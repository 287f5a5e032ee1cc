package main

import (
	"fmt"
	"os"

	"github.com/raoulx24/btrsnap/internal/command"
	"github.com/raoulx24/btrsnap/internal/outcome"
)

func main() {
	app := command.App(command.Options{})

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "btrsnap: %v\n", err)
	}
	os.Exit(outcome.ExitCode(err))
}
