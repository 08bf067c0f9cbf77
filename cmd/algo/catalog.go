package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rxtech-lab/argo-algo/internal/exchange"
	"github.com/rxtech-lab/argo-algo/internal/strategy"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List the available algo orders",
		Action: func(_ context.Context, cmd *cli.Command) error {
			w := tabwriter.NewWriter(cmd.Root().Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME")

			for _, def := range strategy.Definitions() {
				fmt.Fprintf(w, "%s\t%s\n", def.ID, def.Name)
			}

			return w.Flush()
		},
	}
}

func providersCommand() *cli.Command {
	return &cli.Command{
		Name:      "providers",
		Usage:     "List the exchange providers, or print the configuration schema of one",
		ArgsUsage: "[PROVIDER]",
		Action: func(_ context.Context, cmd *cli.Command) error {
			if name := cmd.Args().First(); name != "" {
				schema, err := exchange.GetProviderConfigSchema(name)
				if err != nil {
					return err
				}

				_, err = fmt.Fprintln(cmd.Root().Writer, schema)

				return err
			}

			w := tabwriter.NewWriter(cmd.Root().Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tNAME\tPAPER")

			for _, name := range exchange.GetSupportedProviders() {
				info, err := exchange.GetProviderInfo(name)
				if err != nil {
					return err
				}

				fmt.Fprintf(w, "%s\t%s\t%t\n", info.Name, info.DisplayName, info.IsPaperTrading)
			}

			return w.Flush()
		},
	}
}

func schemaCommand() *cli.Command {
	return &cli.Command{
		Name:      "schema",
		Usage:     "Print the JSON schema of an algo order's parameters",
		ArgsUsage: "ID",
		Action: func(_ context.Context, cmd *cli.Command) error {
			def, err := strategy.Lookup(cmd.Args().First())
			if err != nil {
				return err
			}

			schema, err := strategy.Schema(def)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.Root().Writer, schema)

			return err
		},
	}
}

func previewCommand() *cli.Command {
	return &cli.Command{
		Name:      "preview",
		Usage:     "Print the first orders an algo order would submit",
		ArgsUsage: "ID",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "args",
				Aliases:  []string{"a"},
				Usage:    "YAML or JSON `FILE` with the algo order parameters",
				Required: true,
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			def, err := strategy.Lookup(cmd.Args().First())
			if err != nil {
				return err
			}

			args, err := readArgs(cmd.String("args"))
			if err != nil {
				return err
			}

			orders, err := def.Preview(args)
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(cmd.Root().Writer)
			encoder.SetIndent("", "  ")

			return encoder.Encode(orders)
		},
	}
}

// readArgs decodes a parameter file. JSON is valid YAML, so both go through the YAML decoder.
func readArgs(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidParameter, err, "failed to read %s", path)
	}

	var args map[string]any
	if err := yaml.Unmarshal(raw, &args); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidParameter, err, "failed to parse %s", path)
	}

	return args, nil
}
