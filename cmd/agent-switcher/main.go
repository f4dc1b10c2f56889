package main

import (
	"fmt"
	"os"

	"agent-switcher/internal/cli"
	"agent-switcher/internal/switcher"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(switcher.ExitCode(err))
	}
}
