package training

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mulsewm/rossmann-sales-forecasting/artifact"
	"github.com/mulsewm/rossmann-sales-forecasting/config"
	"github.com/mulsewm/rossmann-sales-forecasting/dataset"
)

// Publisher announces a newly published model to running servers.
type Publisher interface {
	PublishModel(ctx context.Context, meta artifact.Metadata) error
}

// Runner executes the whole offline pipeline:
// load, preprocess, engineer features, train, save, publish, prune, record.
type Runner struct {
	Paths     config.PathsConfig
	Options   Options
	Retain    int
	Recorders []Recorder
	Publisher Publisher
	Logger    *slog.Logger
	Now       func() time.Time
}

func NewRunner(cfg *config.Config) *Runner {
	return &Runner{
		Paths:   cfg.Paths,
		Options: OptionsFromConfig(cfg.Training),
		Retain:  cfg.Training.Retain,
	}
}

type Report struct {
	Meta     artifact.Metadata
	Artifact string
	Pruned   []string
	Duration time.Duration
}

func (r *Runner) Run(ctx context.Context) (*Report, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	start := now()

	raw, err := dataset.Load(r.Paths.TrainFile, r.Paths.StoreFile)
	if err != nil {
		return nil, fmt.Errorf("load data: %w", err)
	}
	logger.Info("data loaded", "rows", raw.Nrow(), "columns", raw.Ncol())

	prepared := dataset.Preprocess(raw, logger)
	features, err := dataset.EngineerFeatures(prepared)
	if err != nil {
		return nil, fmt.Errorf("engineer features: %w", err)
	}

	res, err := Train(ctx, features, r.Options)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	logger.Info("model evaluated",
		"mae", res.MAE, "rmse", res.RMSE,
		"train_rows", res.TrainRows, "test_rows", res.TestRows)

	meta := artifact.Metadata{
		ID:        uuid.NewString(),
		CreatedAt: now().UTC().Truncate(time.Second),
		Target:    r.Options.Target,
		Split:     r.Options.Split,
		MAE:       res.MAE,
		RMSE:      res.RMSE,
		TrainRows: res.TrainRows,
		TestRows:  res.TestRows,
		Features:  res.Pipeline.Preprocessor.FeatureNames(),
	}
	path, err := artifact.Save(r.Paths.ModelDir, &artifact.Bundle{Meta: meta, Pipeline: res.Pipeline})
	if err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}
	if err := artifact.Publish(r.Paths.ModelDir, path, meta); err != nil {
		return nil, fmt.Errorf("publish manifest: %w", err)
	}
	logger.Info("model saved", "path", path, "id", meta.ID)

	report := &Report{Meta: meta, Artifact: path}

	pruned, err := artifact.Prune(r.Paths.ModelDir, r.Retain)
	if err != nil {
		logger.Warn("prune old models failed", "error", err)
	}
	report.Pruned = pruned
	report.Duration = now().Sub(start)

	// The model is already durable; downstream notifications are best effort.
	run := Run{
		ID:        meta.ID,
		CreatedAt: meta.CreatedAt,
		Artifact:  filepath.Base(path),
		Target:    meta.Target,
		Split:     meta.Split,
		MAE:       meta.MAE,
		RMSE:      meta.RMSE,
		TrainRows: meta.TrainRows,
		TestRows:  meta.TestRows,
		Trees:     r.Options.Model.Trees,
		Seed:      r.Options.Seed,
		Duration:  report.Duration,
	}
	for _, rec := range r.Recorders {
		if err := rec.Record(ctx, run); err != nil {
			logger.Warn("record training run failed", "error", err)
		}
	}
	if r.Publisher != nil {
		if err := r.Publisher.PublishModel(ctx, meta); err != nil {
			logger.Warn("publish model event failed", "error", err)
		}
	}
	return report, nil
}
