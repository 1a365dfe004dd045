package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/next-exp/tpx3pipe/internal/config"
	"github.com/next-exp/tpx3pipe/internal/logging"
	"github.com/next-exp/tpx3pipe/internal/pipeline"
)

// runOptions holds the run subcommand's flags, overriding whatever the
// loaded configuration file sets (spec.md §6 "-in, -out, -format, -progress").
type runOptions struct {
	*rootOptions
	in       string
	out      string
	format   string
	progress bool
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once over a TPX3 packet stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.in, "in", "", "input TPX3 file (overrides config file_in)")
	cmd.Flags().StringVar(&opts.out, "out", "", "output file (overrides config file_out)")
	cmd.Flags().StringVar(&opts.format, "format", "", "output format: csv|ndjson|sqlite (overrides config format)")
	cmd.Flags().BoolVar(&opts.progress, "progress", false, "log per-chip progress as each chip finishes clustering")

	return cmd
}

func runPipeline(cmd *cobra.Command, opts *runOptions) error {
	cfg, err := loadConfig(opts.rootOptions)
	if err != nil {
		return err
	}
	if opts.in != "" {
		cfg.FileIn = opts.in
	}
	if opts.out != "" {
		cfg.FileOut = opts.out
	}
	if opts.format != "" {
		cfg.Format = opts.format
	}
	if cfg.FileIn == "" {
		return fmt.Errorf("no input file: pass --in or set file_in in --config")
	}
	if cfg.FileOut == "" {
		return fmt.Errorf("no output file: pass --out or set file_out in --config")
	}

	log := logging.New(os.Stderr, logLevelFromString(cfg.LogLevel))

	pipelineOpts := []pipeline.Option{}
	if opts.progress {
		pipelineOpts = append(pipelineOpts, pipeline.WithProgress(func(chipID uint8, nClusters, nNeutrons int) {
			fmt.Fprintf(cmd.OutOrStdout(), "chip %d: %d clusters, %d neutrons\n", chipID, nClusters, nNeutrons)
		}))
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	p := pipeline.New(cfg, log, pipelineOpts...)
	result, err := p.Run(ctx)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d sections, %d clusters, %d neutrons in %s\n",
		result.RunID, result.SectionsScanned, result.ClustersFormed, result.NeutronsEmitted, result.Elapsed)
	return nil
}

func loadConfig(root *rootOptions) (config.Configuration, error) {
	if root.configFile == "" {
		return config.Default(), nil
	}
	return config.Load(root.configFile)
}

func logLevelFromString(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
