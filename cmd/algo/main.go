package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v3"
)

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "algo",
		Usage: "Run algorithmic orders against Binance",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML `FILE` with the host configuration",
				Value:   "",
			},
			&cli.StringSliceFlag{
				Name:  "env",
				Usage: "Env `FILE` loaded before the configuration (defaults to .env when present)",
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			listCommand(),
			schemaCommand(),
			previewCommand(),
			providersCommand(),
		},
	}
}

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
