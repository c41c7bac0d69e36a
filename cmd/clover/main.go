// Command clover serves the record-linkage API and runs its operator tasks.
package main

import (
	"fmt"
	"os"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ramsey-B/clover/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globals struct {
	envFiles []string
	cfg      *config.Config
	logger   ectologger.Logger
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "clover",
		Short:         "Deduplicate uploaded record batches and cluster them by email and phone",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(g.envFiles...)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			g.cfg = cfg
			g.logger = logger
			return nil
		},
	}
	root.PersistentFlags().StringSliceVar(&g.envFiles, "env-file", nil, "dotenv files to load before the environment (default .env)")

	root.AddCommand(
		newServeCmd(g),
		newMigrateCmd(g),
		newIngestCmd(g),
		newRebuildCmd(g),
		newBackfillCmd(g),
		newClustersCmd(g),
	)
	return root
}

func newLogger(cfg *config.Config) (ectologger.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.InitialFields = map[string]any{
		"service": cfg.AppName,
		"version": cfg.Version,
	}

	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}
