// Package ml holds the sales model: a column transformer and a random-forest
// regressor bundled into one Pipeline, so training and serving always apply
// the same fitted transform.
package ml

import (
	"context"
	"fmt"

	"github.com/go-gota/gota/dataframe"
)

var (
	NumericFeatures     = []string{"CompetitionDistance", "DayOfWeek", "Promo"}
	CategoricalFeatures = []string{"StoreType", "Assortment", "StateHoliday", "PromoInterval"}
)

type Options struct {
	Trees          int
	Seed           int64
	MaxDepth       int
	MinSamplesLeaf int
}

func DefaultOptions() Options {
	return Options{Trees: 100, Seed: 42, MinSamplesLeaf: 1}
}

type Pipeline struct {
	Preprocessor *ColumnTransformer
	Regressor    *RandomForest
}

// NewPipeline returns an unfitted pipeline over the fixed sales feature schema.
func NewPipeline(opts Options) *Pipeline {
	return &Pipeline{
		Preprocessor: NewColumnTransformer(NumericFeatures, CategoricalFeatures),
		Regressor: &RandomForest{
			NTrees:         opts.Trees,
			Seed:           opts.Seed,
			MaxDepth:       opts.MaxDepth,
			MinSamplesLeaf: opts.MinSamplesLeaf,
		},
	}
}

// Fit learns the transform on X and trains the regressor on the
// transformed rows. X may carry extra columns; they are ignored.
func (p *Pipeline) Fit(ctx context.Context, X dataframe.DataFrame, y []float64) error {
	if X.Nrow() != len(y) {
		return fmt.Errorf("pipeline: %d rows but %d targets", X.Nrow(), len(y))
	}
	if err := p.Preprocessor.Fit(X); err != nil {
		return fmt.Errorf("fit preprocessor: %w", err)
	}
	design, err := p.Preprocessor.Transform(X)
	if err != nil {
		return fmt.Errorf("transform: %w", err)
	}
	if err := p.Regressor.Fit(ctx, design, y); err != nil {
		return fmt.Errorf("fit regressor: %w", err)
	}
	return nil
}

// Predict accepts raw, untransformed feature rows.
func (p *Pipeline) Predict(X dataframe.DataFrame) ([]float64, error) {
	if p.Preprocessor == nil || p.Regressor == nil || !p.Regressor.Fitted() {
		return nil, ErrNotFitted
	}
	design, err := p.Preprocessor.Transform(X)
	if err != nil {
		return nil, fmt.Errorf("transform: %w", err)
	}
	return p.Regressor.Predict(design)
}
