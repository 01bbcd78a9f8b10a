// Package training fits the sales pipeline on prepared records, scores it on
// a held-out split and persists the result.
package training

import (
	"context"
	"fmt"
	"math"

	"github.com/go-gota/gota/dataframe"

	"github.com/mulsewm/rossmann-sales-forecasting/config"
	"github.com/mulsewm/rossmann-sales-forecasting/dataset"
	"github.com/mulsewm/rossmann-sales-forecasting/ml"
)

type Options struct {
	Target   string
	TestSize float64
	Seed     int64
	Split    string
	Model    ml.Options
}

func DefaultOptions() Options {
	return Options{
		Target:   dataset.ColSales,
		TestSize: 0.2,
		Seed:     42,
		Split:    config.SplitRandom,
		Model:    ml.DefaultOptions(),
	}
}

// OptionsFromConfig maps the TRAIN_* settings onto training options.
func OptionsFromConfig(c config.TrainingConfig) Options {
	return Options{
		Target:   c.Target,
		TestSize: c.TestSize,
		Seed:     c.Seed,
		Split:    c.Split,
		Model: ml.Options{
			Trees:          c.Trees,
			Seed:           c.Seed,
			MaxDepth:       c.MaxDepth,
			MinSamplesLeaf: c.MinLeaf,
		},
	}
}

type Result struct {
	Pipeline  *ml.Pipeline
	MAE       float64
	RMSE      float64
	TrainRows int
	TestRows  int
}

// Train splits df, fits a fresh pipeline on the training part only and
// reports MAE and RMSE on the held-out part. df must already be
// preprocessed and feature engineered.
func Train(ctx context.Context, df dataframe.DataFrame, opts Options) (*Result, error) {
	if !dataset.HasColumn(df, opts.Target) {
		return nil, fmt.Errorf("%w: target %q", dataset.ErrMissingColumn, opts.Target)
	}
	y := df.Col(opts.Target).Float()
	for i, v := range y {
		if math.IsNaN(v) {
			return nil, fmt.Errorf("target %q is missing at row %d", opts.Target, i)
		}
	}
	X := df.Drop(opts.Target)
	if X.Err != nil {
		return nil, fmt.Errorf("drop target: %w", X.Err)
	}

	trainIdx, testIdx, err := split(df, opts)
	if err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}

	pipeline := ml.NewPipeline(opts.Model)
	if err := pipeline.Fit(ctx, X.Subset(trainIdx), pick(y, trainIdx)); err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}

	pred, err := pipeline.Predict(X.Subset(testIdx))
	if err != nil {
		return nil, fmt.Errorf("predict test split: %w", err)
	}
	yTest := pick(y, testIdx)
	mae, err := ml.MeanAbsoluteError(yTest, pred)
	if err != nil {
		return nil, err
	}
	rmse, err := ml.RootMeanSquaredError(yTest, pred)
	if err != nil {
		return nil, err
	}

	return &Result{
		Pipeline:  pipeline,
		MAE:       mae,
		RMSE:      rmse,
		TrainRows: len(trainIdx),
		TestRows:  len(testIdx),
	}, nil
}

func split(df dataframe.DataFrame, opts Options) ([]int, []int, error) {
	switch opts.Split {
	case "", config.SplitRandom:
		return ml.TrainTestSplit(df.Nrow(), opts.TestSize, opts.Seed)
	case config.SplitTime:
		keys, err := dateKeys(df)
		if err != nil {
			return nil, nil, err
		}
		return ml.TimeOrderedSplit(keys, opts.TestSize)
	default:
		return nil, nil, fmt.Errorf("unknown split strategy %q", opts.Split)
	}
}

// dateKeys orders rows by calendar day using the engineered Year/Month/Day
// columns, since Date itself is dropped by feature engineering.
func dateKeys(df dataframe.DataFrame) ([]int64, error) {
	for _, name := range []string{dataset.ColYear, dataset.ColMonth, dataset.ColDay} {
		if !dataset.HasColumn(df, name) {
			return nil, fmt.Errorf("%w: %s", dataset.ErrMissingColumn, name)
		}
	}
	year := df.Col(dataset.ColYear).Float()
	month := df.Col(dataset.ColMonth).Float()
	day := df.Col(dataset.ColDay).Float()
	keys := make([]int64, len(year))
	for i := range keys {
		keys[i] = int64(year[i])*10000 + int64(month[i])*100 + int64(day[i])
	}
	return keys, nil
}

func pick(values []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = values[j]
	}
	return out
}
