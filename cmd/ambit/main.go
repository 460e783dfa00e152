// Command ambit runs the example signup flow against a durable log.
package main

import (
	"os"

	"github.com/ambit-run/ambit/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
