package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/Zereker/multivu/discovery"
)

func discoverCommand() *cli.Command {
	return &cli.Command{
		Name:  "discover",
		Usage: "List MultiVu servers advertised on the local network",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "how long to listen for answers",
				Value: discovery.DefaultBrowseTimeout,
			},
		},
		Action: func(c *cli.Context) error {
			services, err := discovery.Browse(c.Context, c.Duration("timeout"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if len(services) == 0 {
				fmt.Fprintln(c.App.Writer, "no servers found")
				return nil
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INSTANCE\tADDRESS\tFLAVOR\tOPTIONS\tVERSION")
			for _, svc := range services {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", svc.Instance, svc.Addr, svc.Flavor, svc.Options, svc.Version)
			}
			return w.Flush()
		},
	}
}

