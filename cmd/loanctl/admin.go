package main

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"loanscore/internal/cfg"
	"loanscore/internal/common"
	"loanscore/internal/dataset"
	"loanscore/internal/scoring"
	"loanscore/internal/storage"
)

type importSummary struct {
	Source  string    `json:"source" yaml:"source"`
	Store   string    `json:"store" yaml:"store"`
	Rows    int       `json:"rows" yaml:"rows"`
	Columns int       `json:"columns" yaml:"columns"`
	SavedAt time.Time `json:"saved_at" yaml:"saved_at"`
}

func newImportCmd() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import a CSV dataset into the snapshot store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "csv",
				Usage:    "Path to the applicants CSV file",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "data",
				Usage:   "Directory of the snapshot store",
				Sources: cli.EnvVars(common.EnvDataPath),
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			dataPath := cmd.String("data")
			if dataPath == "" {
				return errors.New(common.ErrMsgDataPathRequired)
			}

			ds, err := dataset.LoadCSV(cmd.String("csv"))
			if err != nil {
				return err
			}

			settings := cfg.Settings{DataPath: dataPath}
			store, err := storage.New(settings.DBPath())
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.SaveDataset(ds, cmd.String("csv")); err != nil {
				return err
			}
			snap, err := store.Snapshot()
			if err != nil {
				return err
			}

			log.Info().
				Str("store", store.Path()).
				Int("rows", snap.Rows).
				Msg("Dataset imported")

			return printOut(cmd, importSummary{
				Source:  snap.Source,
				Store:   store.Path(),
				Rows:    snap.Rows,
				Columns: len(snap.Columns),
				SavedAt: snap.SavedAt,
			})
		},
	}
}

type thresholdOut struct {
	Model     string  `json:"model" yaml:"model"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

func newThresholdCmd() *cli.Command {
	fileFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:    "file",
			Usage:   "Threshold mapping file",
			Value:   common.DefaultThresholdFile,
			Sources: cli.EnvVars(common.EnvThresholdFile),
		}
	}
	modelFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:     "model",
			Aliases:  []string{"m"},
			Usage:    "Model identity",
			Required: true,
		}
	}

	return &cli.Command{
		Name:  "threshold",
		Usage: "Manage the acceptance threshold mapping file",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Print the threshold of a model",
				Flags: []cli.Flag{fileFlag(), modelFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					lookup := scoring.LookupThreshold{Path: cmd.String("file"), Identity: cmd.String("model")}
					t, err := lookup.Resolve(ctx)
					if err != nil {
						return err
					}
					return printOut(cmd, thresholdOut{Model: lookup.Identity, Threshold: t})
				},
			},
			{
				Name:  "set",
				Usage: "Set the threshold of a model, adding the entry when missing",
				Flags: []cli.Flag{
					fileFlag(),
					modelFlag(),
					&cli.FloatFlag{
						Name:     "value",
						Usage:    "Threshold in [0,1]",
						Required: true,
					},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					model, value := cmd.String("model"), float64(cmd.Float("value"))
					if err := scoring.WriteThreshold(cmd.String("file"), model, value); err != nil {
						return err
					}
					return printOut(cmd, thresholdOut{Model: model, Threshold: value})
				},
			},
			{
				Name:  "list",
				Usage: "List every entry of the mapping file",
				Flags: []cli.Flag{fileFlag()},
				Action: func(_ context.Context, cmd *cli.Command) error {
					entries, err := scoring.ReadThresholds(cmd.String("file"))
					if err != nil {
						return err
					}
					out := make([]thresholdOut, len(entries))
					for i, e := range entries {
						out[i] = thresholdOut{Model: e.Identity, Threshold: e.Threshold}
					}
					return printOut(cmd, out)
				},
			},
		},
	}
}
