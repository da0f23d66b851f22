// Package command provides CLI command definitions for streammesh-cli.
package command

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/streammesh-go/internal/cli/connection"
	"github.com/yndnr/streammesh-go/internal/infra/buildinfo"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "streammesh-cli",
		Usage:   "StreamMesh command-line management tool",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			StateCommand(),
			CheckpointCommand(),
			SnapshotCommand(),
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "StreamMesh worker address (e.g., localhost:5080)",
			EnvVars: []string{"STREAMMESH_SERVER"},
			Value:   "localhost:5080",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable verbose output",
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	// Server connection
	Server string

	// Output format
	Output string // table, json, yaml
	Wide   bool

	// Other
	Verbose bool
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	return &GlobalFlags{
		Server:  c.String("server"),
		Output:  c.String("output"),
		Wide:    c.Bool("wide"),
		Verbose: c.Bool("verbose"),
	}
}

// NewClient creates an HTTP client for the configured worker.
func NewClient(c *cli.Context) *connection.HTTPClient {
	flags := ParseGlobalFlags(c)
	return connection.NewHTTPClient(flags.Server)
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}

// truncateID truncates long IDs for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:13] + "..."
}
