// Package commands holds the skincheck command tree.
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/skincheck/internal/adapters/flagstore"
	"github.com/okian/skincheck/internal/config"
	"github.com/okian/skincheck/pkg/logger"
	"github.com/okian/skincheck/pkg/metrics"
)

// env is what PersistentPreRunE builds for the subcommands.
type env struct {
	cfg   *config.Config
	log   logger.Logger
	flags flagstore.Store
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	var (
		configPath    string
		logLevel      string
		flagStore     string
		flagStorePath string
	)
	e := &env{}

	root := &cobra.Command{
		Use:          "skincheck",
		Short:        "Screen flow coordinator for the Skin Checkr app shell",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if configPath != "" {
				if err := os.Setenv(config.EnvFile, configPath); err != nil {
					return err
				}
			}
			cfg, err := config.Load(ctx)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if flagStore != "" {
				cfg.FlagStore = flagStore
			}
			if flagStorePath != "" {
				cfg.FlagStorePath = flagStorePath
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithWriter(cmd.ErrOrStderr())); err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}
			log := logger.Get()
			if err := logger.SetLevelString(cfg.LogLevel); err != nil {
				log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
				_ = logger.SetLevelString("info")
			}

			metrics.Init(metricsOptions(cfg)...)

			flags, err := flagstore.Open(ctx, cfg.FlagStore, cfg.FlagStorePath)
			if err != nil {
				return fmt.Errorf("failed to open flag store: %w", err)
			}

			e.cfg, e.log, e.flags = cfg, log, flags
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (overrides "+config.EnvFile+")")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	root.PersistentFlags().StringVar(&flagStore, "flag-store", "", "where the onboarding flag lives: file, sqlite or memory")
	root.PersistentFlags().StringVar(&flagStorePath, "flag-store-path", "", "path of the file or sqlite flag store")

	root.AddCommand(serveCmd(e), analyzeCmd(e), onboardingCmd(e), smokeCmd(e))
	return root
}

// runE closes the flag store once fn returns, whether or not it failed.
func (e *env) runE(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		defer func() {
			if cerr := e.close(); err == nil {
				err = cerr
			}
		}()
		return fn(cmd, args)
	}
}

func (e *env) close() error {
	if e.flags == nil {
		return nil
	}
	err := e.flags.Close()
	e.flags = nil
	if err != nil {
		return fmt.Errorf("close flag store: %w", err)
	}
	return nil
}
