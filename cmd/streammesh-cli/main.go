// Package main provides the entry point for streammesh-cli.
//
// streammesh-cli is the command-line management tool for StreamMesh
// workers and local snapshot files.
package main

import (
	"fmt"
	"os"

	"github.com/yndnr/streammesh-go/internal/cli/command"
)

func main() {
	app := command.App()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
