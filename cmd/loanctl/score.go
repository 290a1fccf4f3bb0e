package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"loanscore/internal/api"
	"loanscore/internal/bootstrap"
	"loanscore/internal/cfg"
	"loanscore/internal/client"
	"loanscore/internal/common"
	"loanscore/internal/metrics"
	"loanscore/internal/scoring"
)

// scorer is served either by a remote API or by an in-process service.
type scorer interface {
	Predict(ctx context.Context, index, display int) (*api.PredictResponse, error)
	Importance(ctx context.Context, n int) (*api.ImportanceResponse, error)
	Row(ctx context.Context, index int) (*api.RowResponse, error)
}

var _ scorer = (*client.Client)(nil)

type localScorer struct {
	service *scoring.Service
}

func (l *localScorer) Predict(ctx context.Context, index, display int) (*api.PredictResponse, error) {
	res, err := l.service.Predict(ctx, scoring.PredictRequest{SelectedIndex: index, ShapMaxDisplay: display})
	if err != nil {
		return nil, err
	}
	resp := api.NewPredictResponse(res)
	return &resp, nil
}

func (l *localScorer) Importance(ctx context.Context, n int) (*api.ImportanceResponse, error) {
	res, err := l.service.Importance(ctx, scoring.ImportanceRequest{MaxDisplay: n})
	if err != nil {
		return nil, err
	}
	return &api.ImportanceResponse{Features: res.Features, Importances: res.Importances}, nil
}

func (l *localScorer) Row(_ context.Context, index int) (*api.RowResponse, error) {
	row, err := l.service.Row(index)
	if err != nil {
		return nil, err
	}
	resp := api.NewRowResponse(row, l.service.Category)
	return &resp, nil
}

func newScorer(ctx context.Context, cmd *cli.Command) (scorer, error) {
	root := cmd.Root()
	if base := root.String(flagServer); base != "" {
		return client.New(base, root.Duration(flagTimeout)), nil
	}

	settings, err := cfg.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	components, err := bootstrap.Load(ctx, settings)
	if err != nil {
		return nil, err
	}
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	return &localScorer{service: bootstrap.NewService(components, m)}, nil
}

func newPredictCmd() *cli.Command {
	return &cli.Command{
		Name:    "predict",
		Aliases: []string{"explain"},
		Usage:   "Score one applicant and explain the decision",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:     "index",
				Aliases:  []string{"i"},
				Usage:    "Row index of the applicant",
				Required: true,
			},
			&cli.IntFlag{
				Name:    "display",
				Aliases: []string{"k"},
				Usage:   "Number of features to explain",
				Value:   common.DefaultDisplayCount,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := newScorer(ctx, cmd)
			if err != nil {
				return err
			}
			resp, err := s.Predict(ctx, int(cmd.Int("index")), int(cmd.Int("display")))
			if err != nil {
				return err
			}
			return printOut(cmd, resp)
		},
	}
}

func newImportanceCmd() *cli.Command {
	return &cli.Command{
		Name:  "importance",
		Usage: "List the model's most important features",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "max",
				Aliases: []string{"n"},
				Usage:   "Number of features to list",
				Value:   common.DefaultDisplayCount,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := newScorer(ctx, cmd)
			if err != nil {
				return err
			}
			resp, err := s.Importance(ctx, int(cmd.Int("max")))
			if err != nil {
				return err
			}
			return printOut(cmd, resp)
		},
	}
}

func newRowCmd() *cli.Command {
	return &cli.Command{
		Name:  "row",
		Usage: "Show one applicant",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:     "index",
				Aliases:  []string{"i"},
				Usage:    "Row index of the applicant",
				Required: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := newScorer(ctx, cmd)
			if err != nil {
				return err
			}
			resp, err := s.Row(ctx, int(cmd.Int("index")))
			if err != nil {
				return err
			}
			return printOut(cmd, resp)
		},
	}
}
