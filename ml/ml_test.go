package ml

import (
	"context"
	"math"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestStandardScaler(t *testing.T) {
	var s StandardScaler
	require.NoError(t, s.Fit([][]float64{{1, 2, 3, 4}, {5, 5, 5, 5}}))

	assert.Equal(t, 2.5, s.Mean[0])
	assert.InDelta(t, math.Sqrt(1.25), s.Scale[0], 1e-12)
	assert.Equal(t, 1.0, s.Scale[1], "constant column keeps unit scale")
	assert.InDelta(t, 0, s.Apply(0, 2.5), 1e-12)
	assert.Equal(t, 0.0, s.Apply(1, 5))
}

func TestOneHotEncoder(t *testing.T) {
	var e OneHotEncoder
	e.Fit([][]string{{"b", "a", "b", "c"}, {"0", "a"}})

	assert.Equal(t, []string{"a", "b", "c"}, e.Categories[0])
	assert.Equal(t, 5, e.Width())

	dst := make([]float64, 3)
	assert.True(t, e.Encode(0, "b", dst))
	assert.Equal(t, []float64{0, 1, 0}, dst)

	assert.False(t, e.Encode(0, "z", dst))
	assert.Equal(t, []float64{0, 0, 0}, dst)
}

func featureTable(distance []float64, storeTypes []string) dataframe.DataFrame {
	n := len(distance)
	dow := make([]int, n)
	promo := make([]int, n)
	assort := make([]string, n)
	holiday := make([]string, n)
	interval := make([]string, n)
	for i := 0; i < n; i++ {
		dow[i] = i % 7
		promo[i] = i % 2
		assort[i] = "a"
		holiday[i] = "0"
		interval[i] = "None"
	}
	return dataframe.New(
		series.New(distance, series.Float, "CompetitionDistance"),
		series.New(dow, series.Int, "DayOfWeek"),
		series.New(promo, series.Int, "Promo"),
		series.New(storeTypes, series.String, "StoreType"),
		series.New(assort, series.String, "Assortment"),
		series.New(holiday, series.String, "StateHoliday"),
		series.New(interval, series.String, "PromoInterval"),
	)
}

func TestColumnTransformer(t *testing.T) {
	df := featureTable([]float64{0, 10}, []string{"a", "b"})
	ct := NewColumnTransformer(NumericFeatures, CategoricalFeatures)

	_, err := ct.Transform(df)
	require.ErrorIs(t, err, ErrNotFitted)

	require.NoError(t, ct.Fit(df))
	X, err := ct.Transform(df)
	require.NoError(t, err)

	rows, cols := X.Dims()
	assert.Equal(t, 2, rows)
	// 3 numeric + StoreType{a,b} + Assortment{a} + StateHoliday{0} + PromoInterval{None}
	assert.Equal(t, 8, cols)
	assert.Equal(t, []string{
		"CompetitionDistance", "DayOfWeek", "Promo",
		"StoreType=a", "StoreType=b", "Assortment=a", "StateHoliday=0", "PromoInterval=None",
	}, ct.FeatureNames())
	assert.Equal(t, -1.0, X.At(0, 0))
	assert.Equal(t, 1.0, X.At(1, 0))
	assert.Equal(t, 1.0, X.At(0, 3))
	assert.Equal(t, 0.0, X.At(0, 4))
}

func TestColumnTransformerUnknownCategory(t *testing.T) {
	ct := NewColumnTransformer(NumericFeatures, CategoricalFeatures)
	require.NoError(t, ct.Fit(featureTable([]float64{0, 10}, []string{"a", "b"})))

	X, err := ct.Transform(featureTable([]float64{5}, []string{"zz"}))
	require.NoError(t, err)
	assert.Equal(t, 0.0, X.At(0, 3))
	assert.Equal(t, 0.0, X.At(0, 4))
}

func TestColumnTransformerMissingColumn(t *testing.T) {
	ct := NewColumnTransformer(NumericFeatures, CategoricalFeatures)
	df := featureTable([]float64{0, 10}, []string{"a", "b"}).Drop("PromoInterval")

	err := ct.Fit(df)
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestRegressionTreeStepFunction(t *testing.T) {
	rows := [][]float64{{1}, {2}, {3}, {10}, {11}, {12}}
	y := []float64{5, 5, 5, 20, 20, 20}
	tree := RegressionTree{MinSamplesLeaf: 1}
	require.NoError(t, tree.Fit(rows, y, []int{0, 1, 2, 3, 4, 5}))

	assert.Equal(t, 1, tree.Depth())
	assert.Equal(t, 5.0, tree.Predict([]float64{0}))
	assert.Equal(t, 5.0, tree.Predict([]float64{6}))
	assert.Equal(t, 20.0, tree.Predict([]float64{6.6}))
	assert.Equal(t, 20.0, tree.Predict([]float64{100}))
	assert.Equal(t, 6.5, tree.Nodes[0].Threshold)
}

func TestRegressionTreeLimits(t *testing.T) {
	rows := [][]float64{{1}, {2}, {3}, {4}}
	y := []float64{1, 2, 3, 4}

	shallow := RegressionTree{MaxDepth: 1, MinSamplesLeaf: 1}
	require.NoError(t, shallow.Fit(rows, y, []int{0, 1, 2, 3}))
	assert.Equal(t, 1, shallow.Depth())

	wide := RegressionTree{MinSamplesLeaf: 2}
	require.NoError(t, wide.Fit(rows, y, []int{0, 1, 2, 3}))
	for _, n := range wide.Nodes {
		if n.Feature == leaf {
			assert.GreaterOrEqual(t, n.Samples, 2)
		}
	}

	err := (&RegressionTree{}).Fit(rows, y, nil)
	assert.Error(t, err)
}

func TestRandomForestDeterministic(t *testing.T) {
	X := mat.NewDense(8, 1, []float64{1, 2, 3, 4, 5, 6, 7, 8})
	y := []float64{10, 20, 30, 40, 50, 60, 70, 80}

	fit := func() []float64 {
		f := &RandomForest{NTrees: 20, Seed: 7, MinSamplesLeaf: 1}
		require.NoError(t, f.Fit(context.Background(), X, y))
		p, err := f.Predict(X)
		require.NoError(t, err)
		return p
	}
	assert.Equal(t, fit(), fit())
}

func TestRandomForestNotFitted(t *testing.T) {
	_, err := (&RandomForest{}).Predict(mat.NewDense(1, 1, nil))
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestPipelineLearnsAndHandlesUnknownCategories(t *testing.T) {
	distance := make([]float64, 40)
	types := make([]string, 40)
	y := make([]float64, 40)
	for i := range distance {
		distance[i] = float64(i * 100)
		types[i] = []string{"a", "b", "c"}[i%3]
		y[i] = 1000 + 3*distance[i]
	}
	df := featureTable(distance, types)

	p := NewPipeline(Options{Trees: 25, Seed: 42, MinSamplesLeaf: 1})
	require.NoError(t, p.Fit(context.Background(), df, y))

	pred, err := p.Predict(df)
	require.NoError(t, err)
	mae, err := MeanAbsoluteError(y, pred)
	require.NoError(t, err)
	assert.Less(t, mae, 500.0)

	unseen := featureTable([]float64{1500}, []string{"never-seen"})
	out, err := p.Predict(unseen)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.False(t, math.IsNaN(out[0]))
}

func TestPipelineNotFitted(t *testing.T) {
	_, err := NewPipeline(DefaultOptions()).Predict(featureTable([]float64{1}, []string{"a"}))
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestMetrics(t *testing.T) {
	yTrue := []float64{1, 2, 3, 4}
	yPred := []float64{1, 3, 3, 6}

	mae, err := MeanAbsoluteError(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, mae, 1e-12)

	rmse, err := RootMeanSquaredError(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(5.0/4.0), rmse, 1e-12)

	_, err = MeanAbsoluteError(yTrue, yPred[:2])
	assert.Error(t, err)
	_, err = RootMeanSquaredError(nil, nil)
	assert.Error(t, err)
}

func TestTrainTestSplit(t *testing.T) {
	train, test, err := TrainTestSplit(10, 0.2, 42)
	require.NoError(t, err)
	assert.Len(t, train, 8)
	assert.Len(t, test, 2)

	seen := map[int]bool{}
	for _, i := range append(append([]int{}, train...), test...) {
		assert.False(t, seen[i], "index %d used twice", i)
		seen[i] = true
	}
	assert.Len(t, seen, 10)

	train2, test2, err := TrainTestSplit(10, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, train, train2)
	assert.Equal(t, test, test2)

	// ceil(0.2 * 11) = 3 test rows
	_, test3, err := TrainTestSplit(11, 0.2, 42)
	require.NoError(t, err)
	assert.Len(t, test3, 3)

	_, _, err = TrainTestSplit(1, 0.2, 42)
	assert.Error(t, err)
	_, _, err = TrainTestSplit(10, 1.5, 42)
	assert.Error(t, err)
}

func TestTimeOrderedSplit(t *testing.T) {
	keys := []int64{20150105, 20150101, 20150104, 20150102, 20150103}
	train, test, err := TimeOrderedSplit(keys, 0.4)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 3, 4}, train)
	assert.Equal(t, []int{2, 0}, test)
	for _, tr := range train {
		for _, te := range test {
			assert.Less(t, keys[tr], keys[te])
		}
	}
}
