// Package main provides the multivu command: run a server, talk to one, or
// find servers on the local network.
//
// Usage:
//
//	multivu <command> [options]
//
// Exit codes:
//   - 0: success
//   - 1: runtime or connection error
//   - 2: invalid configuration
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

// version and commit are set via ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	app := &cli.App{
		Name:           "multivu",
		Usage:          "Remote control of Quantum Design MultiVu instruments",
		Version:        fmt.Sprintf("%s (commit: %s)", version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			serverCommand(),
			clientCommand(),
			discoverCommand(),
			versionCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

// exitErrHandler preserves exit codes from cli.Exit and prints anything else.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			fmt.Fprintf(c.App.Writer, "multivu %s (commit: %s)\n", version, commit)
			return nil
		},
	}
}
