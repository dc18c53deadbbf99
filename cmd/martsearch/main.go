package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/kailas-cloud/martsearch/internal/config"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "martsearch",
		Usage: "Aggregating search over an index and a set of remote data marts",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Configuration file path (default: config/<env>.yaml)",
				Sources: cli.EnvVars("MARTSEARCH_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "env",
				Usage: "Environment name: local, dev, prod",
				Value: config.GetEnv(),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override the configured log level",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			searchCommand(),
			cacheCommand(),
			fetchAllCommand(),
			versionCommand(),
		},
	}
}
