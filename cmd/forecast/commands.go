package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mulsewm/rossmann-sales-forecasting/artifact"
	"github.com/mulsewm/rossmann-sales-forecasting/config"
	"github.com/mulsewm/rossmann-sales-forecasting/dataset"
	"github.com/mulsewm/rossmann-sales-forecasting/eda"
	"github.com/mulsewm/rossmann-sales-forecasting/services"
	"github.com/mulsewm/rossmann-sales-forecasting/training"
)

const metricsFile = "training.prom"

// loadConfig reads the environment and applies the persistent path flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if v, _ := flags.GetString("train-file"); v != "" {
		cfg.Paths.TrainFile = v
	}
	if v, _ := flags.GetString("store-file"); v != "" {
		cfg.Paths.StoreFile = v
	}
	if v, _ := flags.GetString("model-dir"); v != "" {
		cfg.Paths.ModelDir = v
	}
	if v, _ := flags.GetString("report-dir"); v != "" {
		cfg.Paths.ReportDir = v
	}
	return cfg, nil
}

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, nil))
}

// --- train ---

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Fit a model on the configured data and publish it",
	Long: `Load train and store data, preprocess, fit the pipeline, report MAE/RMSE
on the held-out split and write a timestamped model plus latest.json.

Examples:
  forecast train
  forecast train --split time --trees 200
  forecast train --train-file ./data/train.csv --model-dir ./models`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("trees") {
			cfg.Training.Trees, _ = flags.GetInt("trees")
		}
		if flags.Changed("split") {
			cfg.Training.Split, _ = flags.GetString("split")
		}
		if flags.Changed("retain") {
			cfg.Training.Retain, _ = flags.GetInt("retain")
		}
		if err := cfg.Training.Validate(); err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		logger := newLogger(cmd.ErrOrStderr())

		runner := training.NewRunner(cfg)
		runner.Logger = logger
		runner.Recorders = append(runner.Recorders, training.TextfileRecorder{
			Path: filepath.Join(cfg.Paths.ReportDir, metricsFile),
		})

		if cfg.Database.Enabled {
			rec, err := training.NewPGRecorder(ctx, cfg.Database.GetURL())
			if err != nil {
				return fmt.Errorf("connect run history: %w", err)
			}
			defer rec.Close()
			if err := rec.EnsureSchema(ctx); err != nil {
				return err
			}
			runner.Recorders = append(runner.Recorders, rec)
		}
		if cfg.Redis.Enabled {
			cache, err := services.NewCacheService(cfg.Redis)
			if err != nil {
				logger.Warn("redis unavailable, servers will not be notified", "error", err)
			}
			defer cache.Close()
			runner.Publisher = cache
		}

		report, err := runner.Run(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "MAE: %v\n", report.Meta.MAE)
		fmt.Fprintf(out, "RMSE: %v\n", report.Meta.RMSE)
		fmt.Fprintf(out, "Model saved to %s\n", report.Artifact)
		for _, name := range report.Pruned {
			fmt.Fprintf(out, "Pruned %s\n", name)
		}
		return nil
	},
}

// --- eda ---

var edaCmd = &cobra.Command{
	Use:   "eda",
	Short: "Summarize the joined data into the report directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(cfg.Paths.ReportDir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
		logFile, err := os.OpenFile(filepath.Join(cfg.Paths.ReportDir, "eda.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open eda log: %w", err)
		}
		defer logFile.Close()
		logger := newLogger(io.MultiWriter(cmd.ErrOrStderr(), logFile))

		df, err := dataset.Load(cfg.Paths.TrainFile, cfg.Paths.StoreFile)
		if err != nil {
			logger.Error("loading data failed", "error", err)
			return err
		}
		logger.Info("train and store data loaded and merged", "rows", df.Nrow())

		summary, err := eda.Summarize(df)
		if err != nil {
			logger.Error("summary failed", "error", err)
			return err
		}
		path, err := eda.Write(cfg.Paths.ReportDir, summary)
		if err != nil {
			return err
		}
		logger.Info("eda pipeline completed", "summary", path)
		fmt.Fprintf(cmd.OutOrStdout(), "Summary written to %s\n", path)
		return nil
	},
}

// --- models ---

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect and prune saved models",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved models, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		entries, err := artifact.List(cfg.Paths.ModelDir)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No models in %s\n", cfg.Paths.ModelDir)
			return nil
		}
		var current string
		if m, err := artifact.ReadManifest(cfg.Paths.ModelDir); err == nil {
			current = m.Artifact
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CURRENT\tNAME\tCREATED\tSIZE")
		for _, e := range entries {
			mark := ""
			if e.Name == current {
				mark = "*"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", mark, e.Name, e.CreatedAt.Format("2006-01-02 15:04:05"), e.Size)
		}
		return tw.Flush()
	},
}

var modelsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest models",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		keep, _ := cmd.Flags().GetInt("keep")
		if keep <= 0 {
			return fmt.Errorf("--keep must be positive")
		}
		removed, err := artifact.Prune(cfg.Paths.ModelDir, keep)
		for _, name := range removed {
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", name)
		}
		return err
	},
}

// --- auth ---

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for the admin endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		subject, _ := cmd.Flags().GetString("subject")
		role, _ := cmd.Flags().GetString("role")
		token, err := services.NewAuthService(cfg.JWT).GenerateToken(subject, role)
		if err != nil {
			return fmt.Errorf("generating token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password <password>",
	Short: "Print a bcrypt hash for JWT_ADMIN_PASSWORD_HASH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := (&services.AuthService{}).HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("train-file", "", "transactions CSV (overrides DATA_TRAIN_FILE)")
	rootCmd.PersistentFlags().String("store-file", "", "store metadata CSV (overrides DATA_STORE_FILE)")
	rootCmd.PersistentFlags().String("model-dir", "", "model directory (overrides DATA_MODEL_DIR)")
	rootCmd.PersistentFlags().String("report-dir", "", "report directory (overrides DATA_REPORT_DIR)")

	trainCmd.Flags().Int("trees", 100, "number of trees in the forest")
	trainCmd.Flags().String("split", config.SplitRandom, "hold-out strategy: random or time")
	trainCmd.Flags().Int("retain", 0, "keep only the newest N models (0 keeps all)")

	modelsPruneCmd.Flags().Int("keep", 0, "number of newest models to keep")
	modelsCmd.AddCommand(modelsListCmd, modelsPruneCmd)

	tokenCmd.Flags().String("subject", "operator", "token subject")
	tokenCmd.Flags().String("role", services.RoleAdmin, "role claim")
}
