// Package main is the weft CLI entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/weftworks/weft/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
