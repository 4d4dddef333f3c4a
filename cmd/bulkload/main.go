package main

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tigerroll/bulkload/internal/app"
	"github.com/tigerroll/bulkload/pkg/batch/core/config"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/logger"
)

// embeddedConfig is the default configuration; ${VAR} placeholders are expanded at load time.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

var version = "0.1.0"

// loadConfig reads the configuration file given by --config, or the embedded one.
func loadConfig(path, envFile string) (*config.Config, error) {
	raw := config.EmbeddedConfig(embeddedConfig)
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		raw = b
	}
	cfg, err := config.LoadConfig(envFile, raw)
	if err != nil {
		return nil, err
	}
	config.ApplyLogging(cfg)
	return cfg, nil
}

func newRootCommand(ctx context.Context) *cobra.Command {
	var configPath, envFile, logLevel string

	root := &cobra.Command{
		Use:           "bulkload",
		Short:         "Bulk-load delimited datasets into a relational sink and serve a bulk insert API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML configuration file (defaults to the embedded configuration)")
	root.PersistentFlags().StringVar(&envFile, "env-file", envOr("ENV_FILE_PATH", ".env"), "Path to a .env file loaded before the configuration")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG, INFO, WARN, ERROR); overrides the configuration")

	load := func() (*config.Config, error) {
		cfg, err := loadConfig(configPath, envFile)
		if err != nil {
			return nil, err
		}
		if logLevel != "" {
			logger.SetLogLevel(logLevel)
		}
		return cfg, nil
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "bulkload v%s\n", version)
		},
	})
	root.AddCommand(newIngestCommand(ctx, load), newServeCommand(ctx, load))
	return root
}

func newIngestCommand(ctx context.Context, load func() (*config.Config, error)) *cobra.Command {
	var (
		dataset, target, table string
		batchSize, workers     int
		noTuning               bool
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load a dataset into the sink table",
		Long: `Load a CSV dataset (local path, file:// or gs://bucket/object) into the sink table.
The dataset is read in batches; each batch is written by one worker in one transaction.
A batch that fails is rolled back and reported; the remaining batches still load.

Example:
  bulkload ingest --dataset large_dataset.csv --batch-size 10000 --workers 30`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			in := &cfg.Bulkload.Ingest
			flags := cmd.Flags()
			if flags.Changed("dataset") {
				in.Dataset = dataset
			}
			if flags.Changed("target") {
				in.TargetDBRef = target
			}
			if flags.Changed("table") {
				in.Table = table
			}
			if flags.Changed("batch-size") {
				in.BatchSize = batchSize
			}
			if flags.Changed("workers") {
				in.Workers = workers
			}
			if noTuning {
				in.TuningEnabled = false
			}

			summary, runErr := app.RunIngest(ctx, cfg)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(summary); err != nil {
				logger.Warnf("failed to print run summary: %v", err)
			}
			return runErr
		},
	}
	cmd.Flags().StringVarP(&dataset, "dataset", "d", "", "Dataset reference; overrides ingest.dataset")
	cmd.Flags().StringVar(&target, "target", "", "Database entry to load into; overrides ingest.target_db_ref")
	cmd.Flags().StringVar(&table, "table", "", "Sink table; overrides ingest.table")
	cmd.Flags().IntVarP(&batchSize, "batch-size", "b", 0, "Rows per batch; overrides ingest.batch_size")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Concurrent loaders; overrides ingest.workers")
	cmd.Flags().BoolVar(&noTuning, "no-tuning", false, "Leave engine settings untouched during the run")
	return cmd
}

func newServeCommand(ctx context.Context, load func() (*config.Config, error)) *cobra.Command {
	var addr, target string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the items and movies API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			s := &cfg.Bulkload.Server
			if cmd.Flags().Changed("addr") {
				s.Addr = addr
			}
			if cmd.Flags().Changed("target") {
				s.TargetDBRef = target
			}
			return app.RunServer(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address; overrides server.addr")
	cmd.Flags().StringVar(&target, "target", "", "Database entry to serve from; overrides server.target_db_ref")
	return cmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := newRootCommand(ctx).Execute()
	logger.Sync()
	if err != nil {
		logger.Errorf("%v", err)
		cancel()
		os.Exit(1)
	}
}
