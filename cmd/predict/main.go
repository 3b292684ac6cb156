package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/fiber-thresholds/internal/config"
	"github.com/Brownie44l1/fiber-thresholds/internal/pipeline"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		workers   int
		batchSize int
		xlsx      string
		logFormat string
		logLevel  string
	)

	// Flags override the environment, so validation waits until RunE.
	cfg, cfgErr := config.LoadEnv()
	if cfgErr == nil {
		workers = cfg.Pipeline.Workers
		batchSize = cfg.Pipeline.BatchSize
		logFormat = cfg.Logging.Format
		logLevel = cfg.Logging.Level
	}

	cmd := &cobra.Command{
		Use:   "predict <electrode_file> <tract_file> <model_dir> <output_json> <centering_strategy> <tract_type> <conductivity> <mode>",
		Short: "Predict fiber activation thresholds for a tract",
		Long: `Predict the activation threshold of every fiber in a tract file at every
pulse width the model was trained for, and write them as JSON keyed by pulse
width in milliseconds and fiber index.

Centering strategies: min_ecs (alias ec), max_ssd (alias ssd)
Conductivity:         isotropic, anisotropic
Mode:                 reg, class

Defaults for the flags are read from the environment (and .env):
THRESHOLD_WORKERS, THRESHOLD_BATCH_SIZE, ORT_SHARED_LIBRARY_PATH, LOG_FORMAT, LOG_LEVEL.

Example: predict field.txt cst.txt models out/cst.json min_ecs cst isotropic reg --xlsx out/cst.xlsx`,
		Args:          cobra.ExactArgs(8),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgErr != nil {
				return cfgErr
			}

			cfg.Pipeline.Workers = workers
			cfg.Pipeline.BatchSize = batchSize
			cfg.Logging.Format = logFormat
			cfg.Logging.Level = logLevel
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := config.InitLogger(os.Stderr, cfg.Logging)
			if err != nil {
				return err
			}

			runCfg, err := pipeline.Parse(pipeline.Options{
				ElectrodeFile:  args[0],
				TractFile:      args[1],
				ModelDir:       args[2],
				OutputFile:     args[3],
				Centering:      args[4],
				TractType:      args[5],
				Conductivity:   args[6],
				Mode:           args[7],
				XLSXFile:       xlsx,
				Workers:        cfg.Pipeline.Workers,
				BatchSize:      cfg.Pipeline.BatchSize,
				ORTLibraryPath: cfg.Runtime.ORTLibraryPath,
			})
			if err != nil {
				return err
			}

			rep, err := pipeline.Run(cmd.Context(), runCfg, logger)
			if err != nil {
				return fmt.Errorf("run %s failed: %w", rep.RunID, err)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&workers, "workers", workers, "Number of fibers processed concurrently")
	cmd.Flags().IntVar(&batchSize, "batch-size", batchSize, "Fibers per inference call (0 uses the model's batch size)")
	cmd.Flags().StringVar(&xlsx, "xlsx", "", "Also write the thresholds as a spreadsheet to this path")
	cmd.Flags().StringVar(&logFormat, "log-format", logFormat, "Log format: json or text")
	cmd.Flags().StringVar(&logLevel, "log-level", logLevel, "Log level: debug, info, warn or error")

	return cmd
}
