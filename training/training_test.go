package training

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/mulsewm/rossmann-sales-forecasting/artifact"
	"github.com/mulsewm/rossmann-sales-forecasting/config"
	"github.com/mulsewm/rossmann-sales-forecasting/dataset"
	"github.com/mulsewm/rossmann-sales-forecasting/ml"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// writeFixtures lays out a small train/store pair in which sales depend on
// the store and on Promo only.
func writeFixtures(t *testing.T, rows int) config.PathsConfig {
	t.Helper()
	dir := t.TempDir()

	var train strings.Builder
	train.WriteString("Store,DayOfWeek,Date,Sales,Customers,Open,Promo,StateHoliday,SchoolHoliday\n")
	start := time.Date(2015, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < rows; i++ {
		store := i%3 + 1
		promo := (i / 3) % 2
		day := start.AddDate(0, 0, i/3)
		sales := 3000 + 2000*promo + 700*store
		fmt.Fprintf(&train, "%d,%d,%s,%d,%d,1,%d,0,0\n",
			store, dataset.Weekday(day)+1, day.Format("2006-01-02"), sales, sales/10, promo)
	}

	store := "Store,StoreType,Assortment,CompetitionDistance,Promo2,PromoInterval\n" +
		"1,a,a,1270,0,\n" +
		"2,b,c,570,1,\"Jan,Apr,Jul,Oct\"\n" +
		"3,c,a,,1,\"Feb,May,Aug,Nov\"\n"

	paths := config.PathsConfig{
		TrainFile: filepath.Join(dir, "train.csv"),
		StoreFile: filepath.Join(dir, "store.csv"),
		ModelDir:  filepath.Join(dir, "models"),
		ReportDir: filepath.Join(dir, "reports"),
	}
	require.NoError(t, os.WriteFile(paths.TrainFile, []byte(train.String()), 0o644))
	require.NoError(t, os.WriteFile(paths.StoreFile, []byte(store), 0o644))
	return paths
}

func prepared(t *testing.T, paths config.PathsConfig) dataframe.DataFrame {
	t.Helper()
	raw, err := dataset.Load(paths.TrainFile, paths.StoreFile)
	require.NoError(t, err)
	df, err := dataset.EngineerFeatures(dataset.Preprocess(raw, quiet))
	require.NoError(t, err)
	return df
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Model.Trees = 20
	return opts
}

func TestTrainScoresHeldOutSplit(t *testing.T) {
	df := prepared(t, writeFixtures(t, 60))

	res, err := Train(context.Background(), df, testOptions())
	require.NoError(t, err)
	assert.Equal(t, 48, res.TrainRows)
	assert.Equal(t, 12, res.TestRows)
	assert.GreaterOrEqual(t, res.RMSE, res.MAE)

	sales := df.Col(dataset.ColSales).Float()
	assert.Less(t, res.MAE, stat.StdDev(sales, nil), "model should beat predicting the mean")
}

// Store 1 runs no recurring promotion, so its empty PromoInterval must be
// learned as "None", the value a request falls back to.
func TestTrainLearnsNonePromoInterval(t *testing.T) {
	df := prepared(t, writeFixtures(t, 60))

	res, err := Train(context.Background(), df, testOptions())
	require.NoError(t, err)

	ct := res.Pipeline.Preprocessor
	col := -1
	for j, name := range ct.Categorical {
		if name == dataset.ColPromoInterval {
			col = j
		}
	}
	require.GreaterOrEqual(t, col, 0)
	cats := ct.Encoder.Categories[col]
	assert.Contains(t, cats, dataset.DefaultPromoInterval)
	assert.NotContains(t, cats, "NaN")
}

func TestTrainIsDeterministic(t *testing.T) {
	df := prepared(t, writeFixtures(t, 45))

	a, err := Train(context.Background(), df, testOptions())
	require.NoError(t, err)
	b, err := Train(context.Background(), df, testOptions())
	require.NoError(t, err)
	assert.Equal(t, a.MAE, b.MAE)
	assert.Equal(t, a.RMSE, b.RMSE)
}

func TestTrainTimeSplit(t *testing.T) {
	df := prepared(t, writeFixtures(t, 30))
	opts := testOptions()
	opts.Split = config.SplitTime

	res, err := Train(context.Background(), df, opts)
	require.NoError(t, err)
	assert.Equal(t, 24, res.TrainRows)
	assert.Equal(t, 6, res.TestRows)
}

func TestTrainErrors(t *testing.T) {
	df := prepared(t, writeFixtures(t, 30))

	tests := []struct {
		name   string
		mutate func(*Options)
		df     dataframe.DataFrame
	}{
		{"unknown target", func(o *Options) { o.Target = "Revenue" }, df},
		{"bad test size", func(o *Options) { o.TestSize = 1 }, df},
		{"unknown split", func(o *Options) { o.Split = "weekly" }, df},
		{"time split without date parts", func(o *Options) { o.Split = config.SplitTime }, df.Drop(dataset.ColYear)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			tt.mutate(&opts)
			_, err := Train(context.Background(), tt.df, opts)
			assert.Error(t, err)
		})
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.TrainingConfig{
		Target: "Sales", TestSize: 0.3, Seed: 7, Trees: 10, MaxDepth: 4, MinLeaf: 2, Split: config.SplitTime,
	})
	assert.Equal(t, 0.3, opts.TestSize)
	assert.Equal(t, ml.Options{Trees: 10, Seed: 7, MaxDepth: 4, MinSamplesLeaf: 2}, opts.Model)
	assert.Equal(t, config.SplitTime, opts.Split)
}

type memRecorder struct{ runs []Run }

func (m *memRecorder) Record(_ context.Context, run Run) error {
	m.runs = append(m.runs, run)
	return nil
}

type failingRecorder struct{}

func (failingRecorder) Record(context.Context, Run) error { return errors.New("db down") }

type memPublisher struct{ metas []artifact.Metadata }

func (m *memPublisher) PublishModel(_ context.Context, meta artifact.Metadata) error {
	m.metas = append(m.metas, meta)
	return nil
}

func TestRunnerEndToEnd(t *testing.T) {
	paths := writeFixtures(t, 60)
	rec := &memRecorder{}
	pub := &memPublisher{}
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	r := &Runner{
		Paths:     paths,
		Options:   testOptions(),
		Recorders: []Recorder{failingRecorder{}, rec},
		Publisher: pub,
		Logger:    quiet,
		Now:       func() time.Time { return at },
	}
	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(paths.ModelDir, "sales_model_2024-05-01-12-00-00.model"), report.Artifact)
	assert.NotEmpty(t, report.Meta.ID)
	assert.Contains(t, report.Meta.Features, "StoreType=b")

	latest, err := artifact.Latest(paths.ModelDir)
	require.NoError(t, err)
	assert.Equal(t, report.Artifact, latest)

	require.Len(t, rec.runs, 1, "a failing recorder must not stop the others")
	assert.Equal(t, report.Meta.ID, rec.runs[0].ID)
	assert.Equal(t, filepath.Base(report.Artifact), rec.runs[0].Artifact)
	require.Len(t, pub.metas, 1)

	bundle, err := artifact.Load(latest)
	require.NoError(t, err)
	df := prepared(t, paths)
	pred, err := bundle.Pipeline.Predict(df.Drop(dataset.ColSales))
	require.NoError(t, err)
	assert.Len(t, pred, df.Nrow())
}

func TestRunnerRetention(t *testing.T) {
	paths := writeFixtures(t, 30)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := &Runner{
		Paths:   paths,
		Options: testOptions(),
		Retain:  2,
		Logger:  quiet,
		Now:     func() time.Time { return at },
	}
	for i := 0; i < 3; i++ {
		_, err := r.Run(context.Background())
		require.NoError(t, err)
		at = at.Add(time.Hour)
	}
	entries, err := artifact.List(paths.ModelDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRunnerMissingInput(t *testing.T) {
	paths := writeFixtures(t, 30)
	paths.StoreFile = filepath.Join(t.TempDir(), "absent.csv")

	_, err := (&Runner{Paths: paths, Options: testOptions(), Logger: quiet}).Run(context.Background())
	require.Error(t, err)
	_, statErr := os.Stat(paths.ModelDir)
	assert.True(t, os.IsNotExist(statErr), "no model dir is created when loading fails")
}

func TestTextfileRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "textfile", "training.prom")
	err := TextfileRecorder{Path: path}.Record(context.Background(), Run{
		Target: "Sales", Split: "random", MAE: 812.5, RMSE: 1200, TrainRows: 8, TestRows: 2,
		CreatedAt: time.Unix(1700000000, 0),
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `rossmann_training_mae{split="random",target="Sales"} 812.5`)
	assert.Contains(t, out, "rossmann_training_last_success_timestamp_seconds")
}
