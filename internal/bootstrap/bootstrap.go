// Package bootstrap performs the one-time startup loading of the scoring
// service: dataset, model, attribution engine and threshold policy.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"loanscore/internal/cfg"
	"loanscore/internal/common"
	"loanscore/internal/dataset"
	"loanscore/internal/metrics"
	"loanscore/internal/ml"
	"loanscore/internal/scoring"
	"loanscore/internal/storage"
)

var _ scoring.MetricsInterface = (*metrics.MetricsWrapper)(nil)

// Components are the immutable objects the service is built from.
type Components struct {
	Dataset    *dataset.Dataset
	Model      ml.Classifier
	Attributor ml.Attributor
	Thresholds scoring.ThresholdResolver
}

// Load reads the dataset and the model concurrently, then builds the
// attribution engine and the threshold policy. Every failure wraps
// common.ErrStartupLoad.
func Load(ctx context.Context, settings cfg.Settings) (*Components, error) {
	start := time.Now()

	var (
		ds    *dataset.Dataset
		model ml.Classifier
	)

	var g errgroup.Group
	g.Go(func() error {
		var err error
		ds, err = LoadDataset(settings)
		return err
	})
	g.Go(func() error {
		var err error
		model, err = ml.Load(settings.ModelPath, settings.ModelID, settings.ImportanceType)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := ml.CheckFeatures(model, ds.Columns()); err != nil {
		return nil, err
	}

	attributor, err := ml.NewAttributor(model, ds)
	if err != nil {
		return nil, err
	}

	thresholds, err := scoring.NewThresholdResolver(ctx, settings)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int("rows", ds.Len()).
		Int("features", len(ds.Columns())).
		Str("model", model.Identity()).
		Str("threshold_policy", thresholds.Policy()).
		Dur("elapsed", time.Since(start)).
		Msg("Startup loading complete")

	return &Components{
		Dataset:    ds,
		Model:      model,
		Attributor: attributor,
		Thresholds: thresholds,
	}, nil
}

// LoadDataset reads the dataset from the configured source.
func LoadDataset(settings cfg.Settings) (*dataset.Dataset, error) {
	switch settings.DatasetSource {
	case common.DatasetSourceCSV:
		return dataset.LoadCSV(settings.DatasetPath)
	case common.DatasetSourceBolt:
		store, err := storage.Open(settings.DBPath())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrStartupLoad, err)
		}
		defer store.Close()

		ds, err := store.LoadDataset()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", common.ErrStartupLoad, store.Path(), err)
		}
		log.Info().
			Str("path", store.Path()).
			Int("rows", ds.Len()).
			Int("columns", len(ds.Columns())).
			Msg("Dataset loaded from snapshot")
		return ds, nil
	default:
		return nil, fmt.Errorf("%w: unknown dataset source %q", common.ErrStartupLoad, settings.DatasetSource)
	}
}

// NewService builds the scoring service from loaded components and records
// their size in m.
func NewService(c *Components, m *metrics.Metrics) *scoring.Service {
	m.ObserveLoad(c.Dataset.Len(), len(c.Model.FeatureNames()))
	return scoring.NewService(c.Dataset, c.Model, c.Attributor, c.Thresholds, metrics.NewWrapper(m))
}

// SetupLogging configures the global zerolog logger. Format "console"
// writes human-readable lines to stderr, anything else JSON.
func SetupLogging(level, format string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	if format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return nil
}
