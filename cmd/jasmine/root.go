package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/joiedevivre/jasmine/config"
	"github.com/joiedevivre/jasmine/internal/app"
	"github.com/joiedevivre/jasmine/pkg/tracing"
)

// env is what every subcommand shares once the root has loaded it.
type env struct {
	cfg      *config.Config
	logger   ectologger.Logger
	shutdown func(context.Context) error
}

func newRootCmd() *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:           "jasmine",
		Short:         "Account integrity tooling for Joie de Vivre admins",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}

			shutdown, err := tracing.Setup(cmd.Context(), tracing.ProviderConfig{
				ServiceName: cfg.ServiceName,
				Exporter:    cfg.Tracing.Exporter,
				Protocol:    cfg.Tracing.Protocol,
				Endpoint:    cfg.Tracing.Endpoint,
				Insecure:    cfg.Tracing.Insecure,
				Timeout:     cfg.Tracing.Timeout,
			}, logger)
			if err != nil {
				return fmt.Errorf("failed to set up tracing: %w", err)
			}

			e.cfg, e.logger, e.shutdown = cfg, logger, shutdown
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if e.shutdown == nil {
				return nil
			}
			return e.shutdown(context.WithoutCancel(cmd.Context()))
		},
	}

	root.AddCommand(
		newServeCmd(e),
		newMigrateCmd(e),
		newScanCmd(e),
	)
	return root
}

func newLogger(cfg *config.Config) (ectologger.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}

	zcfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.InitialFields = map[string]any{"service": cfg.ServiceName}

	zapLogger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func stop(a *app.App, e *env) {
	ctx, cancel := context.WithTimeout(context.Background(), a.ShutdownTimeout())
	defer cancel()
	if err := a.Stop(ctx); err != nil {
		e.logger.WithError(err).Error("Shutdown finished with errors")
	}
}
