package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

const (
	flagDebug   = "debug"
	flagFormat  = "format"
	flagServer  = "server"
	flagTimeout = "timeout"
)

var (
	version = "v0.0.1-default"
	commit  = ""
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("loanctl failed")
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "loanctl",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Usage:   "Operate the loan scoring service",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "Prints verbose logs",
			},
			&cli.StringFlag{
				Name:  flagFormat,
				Usage: "Output format [json, yaml]",
				Value: formatJSON,
			},
			&cli.StringFlag{
				Name:    flagServer,
				Usage:   "Scoring API base URL; commands run against the local configuration when empty",
				Sources: cli.EnvVars("LOANSCORE_URL"),
			},
			&cli.DurationFlag{
				Name:  flagTimeout,
				Usage: "Request timeout for remote calls",
				Value: 10 * time.Second,
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool(flagDebug) {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			switch f := cmd.String(flagFormat); f {
			case formatJSON, formatYAML, "yml":
			default:
				return ctx, fmt.Errorf("unsupported output format %q", f)
			}
			return ctx, nil
		},
		Commands: []*cli.Command{
			newImportCmd(),
			newPredictCmd(),
			newImportanceCmd(),
			newRowCmd(),
			newThresholdCmd(),
		},
	}
}

// printOut writes v to the root command's writer in the selected format.
func printOut(cmd *cli.Command, v any) error {
	root := cmd.Root()
	var w io.Writer = os.Stdout
	if root.Writer != nil {
		w = root.Writer
	}

	if f := root.String(flagFormat); f == formatYAML || f == "yml" {
		return yaml.NewEncoder(w).Encode(v)
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
