package training

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// Run is the record of one completed training run.
type Run struct {
	ID        string
	CreatedAt time.Time
	Artifact  string
	Target    string
	Split     string
	MAE       float64
	RMSE      float64
	TrainRows int
	TestRows  int
	Trees     int
	Seed      int64
	Duration  time.Duration
}

type Recorder interface {
	Record(ctx context.Context, run Run) error
}

// PGRecorder appends runs to the training_runs table read by the API.
type PGRecorder struct {
	pool *pgxpool.Pool
}

func NewPGRecorder(ctx context.Context, url string) (*PGRecorder, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("db pool init: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return &PGRecorder{pool: pool}, nil
}

func (r *PGRecorder) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS training_runs (
			id          TEXT PRIMARY KEY,
			created_at  TIMESTAMPTZ NOT NULL,
			artifact    TEXT NOT NULL,
			target      TEXT NOT NULL,
			split       TEXT NOT NULL,
			mae         DOUBLE PRECISION NOT NULL,
			rmse        DOUBLE PRECISION NOT NULL,
			train_rows  INTEGER NOT NULL,
			test_rows   INTEGER NOT NULL,
			trees       INTEGER NOT NULL,
			seed        BIGINT NOT NULL,
			duration_ms BIGINT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create training_runs: %w", err)
	}
	return nil
}

func (r *PGRecorder) Record(ctx context.Context, run Run) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO training_runs
			(id, created_at, artifact, target, split, mae, rmse, train_rows, test_rows, trees, seed, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`, run.ID, run.CreatedAt, run.Artifact, run.Target, run.Split, run.MAE, run.RMSE,
		run.TrainRows, run.TestRows, run.Trees, run.Seed, run.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("insert training run %s: %w", run.ID, err)
	}
	return nil
}

func (r *PGRecorder) Close() {
	r.pool.Close()
}

// TextfileRecorder writes the last run's metrics in the Prometheus text
// format, for a node_exporter textfile collector to pick up.
type TextfileRecorder struct {
	Path string
}

func (r TextfileRecorder) Record(_ context.Context, run Run) error {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"target": run.Target, "split": run.Split}

	gauges := []struct {
		name, help string
		value      float64
	}{
		{"rossmann_training_mae", "Mean absolute error on the held-out split.", run.MAE},
		{"rossmann_training_rmse", "Root mean squared error on the held-out split.", run.RMSE},
		{"rossmann_training_train_rows", "Rows used to fit the model.", float64(run.TrainRows)},
		{"rossmann_training_test_rows", "Rows used to score the model.", float64(run.TestRows)},
		{"rossmann_training_duration_seconds", "Wall time of the training run.", run.Duration.Seconds()},
		{"rossmann_training_last_success_timestamp_seconds", "Unix time the last model was written.", float64(run.CreatedAt.Unix())},
	}
	for _, g := range gauges {
		gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: g.name, Help: g.help, ConstLabels: labels})
		gauge.Set(g.value)
		if err := reg.Register(gauge); err != nil {
			return fmt.Errorf("register %s: %w", g.name, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(r.Path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(r.Path, reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
