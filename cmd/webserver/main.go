package main

import (
	"fmt"
	"os"

	"github.com/le-stats-sportif/webserver/internal/cli"
)

// main stays thin: all logic lives in internal/cli.
func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", r)
			os.Exit(1)
		}
	}()

	if err := cli.BuildCLI().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
