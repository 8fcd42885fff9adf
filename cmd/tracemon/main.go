// Command tracemon evaluates temporal-logic monitors over event traces.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/tracemon/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil && !cli.IsReported(err) {
		fmt.Fprintln(os.Stderr, "tracemon:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
