package ml

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// RandomForest averages bootstrap-trained regression trees.
//
// Each tree's seed is drawn from Seed before any tree is grown, so the
// fitted forest does not depend on how the trees are scheduled.
type RandomForest struct {
	NTrees         int
	Seed           int64
	MaxDepth       int
	MinSamplesLeaf int
	Trees          []RegressionTree
}

func (f *RandomForest) Fit(ctx context.Context, X *mat.Dense, y []float64) error {
	n, _ := X.Dims()
	if n != len(y) {
		return fmt.Errorf("forest: %d rows but %d targets", n, len(y))
	}
	if f.NTrees <= 0 {
		return fmt.Errorf("forest: tree count must be positive, got %d", f.NTrees)
	}

	rows := rowViews(X)
	master := rand.New(rand.NewSource(f.Seed))
	seeds := make([]int64, f.NTrees)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	trees := make([]RegressionTree, f.NTrees)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range trees {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(seeds[i]))
			sample := make([]int, n)
			for k := range sample {
				sample[k] = rng.Intn(n)
			}
			trees[i] = RegressionTree{MaxDepth: f.MaxDepth, MinSamplesLeaf: f.MinSamplesLeaf}
			if err := trees[i].Fit(rows, y, sample); err != nil {
				return fmt.Errorf("tree %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	f.Trees = trees
	return nil
}

func (f *RandomForest) Fitted() bool {
	return len(f.Trees) > 0
}

func (f *RandomForest) Predict(X *mat.Dense) ([]float64, error) {
	if !f.Fitted() {
		return nil, ErrNotFitted
	}
	rows := rowViews(X)
	out := make([]float64, len(rows))
	for i, row := range rows {
		var sum float64
		for t := range f.Trees {
			sum += f.Trees[t].Predict(row)
		}
		out[i] = sum / float64(len(f.Trees))
	}
	return out, nil
}

func rowViews(X *mat.Dense) [][]float64 {
	n, _ := X.Dims()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = X.RawRowView(i)
	}
	return rows
}
