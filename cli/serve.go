package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ahmadzakiakmal/iota-tx-service/authenticator"
	"github.com/ahmadzakiakmal/iota-tx-service/config"
	"github.com/ahmadzakiakmal/iota-tx-service/oracle"
	"github.com/ahmadzakiakmal/iota-tx-service/repository"
	"github.com/ahmadzakiakmal/iota-tx-service/server"
	"github.com/ahmadzakiakmal/iota-tx-service/service"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			logger, err := newLogger(os.Stdout, cfg.Log.Level)
			if err != nil {
				return fmt.Errorf("failed to parse log level: %w", err)
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger cmtlog.Logger) (repository.Gateway, error) {
	switch cfg.Driver {
	case config.DriverBadger:
		store, err := repository.OpenBadger(repository.BadgerConfig{
			Path:     cfg.Badger.Path,
			InMemory: cfg.Badger.InMemory,
		}, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		store, err := repository.ConnectPostgres(ctx, repository.PostgresConfig{
			DSN:               cfg.Postgres.DSN,
			MaxOpenConns:      cfg.Postgres.MaxOpenConns,
			MaxIdleConns:      cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime:   cfg.Postgres.ConnMaxLifetime,
			ConnectAttempts:   cfg.Postgres.ConnectAttempts,
			ConnectRetryDelay: cfg.Postgres.ConnectRetryDelay,
		}, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

func serve(ctx context.Context, cfg *config.Config, logger cmtlog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Store.Driver, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Closing store", "err", err)
		}
	}()

	txs := service.NewTransactionService(store, nil, logger)
	nodeOracle := oracle.NewClient(oracle.Config{
		NodeURL: cfg.Oracle.NodeURL,
		Timeout: cfg.Oracle.Timeout,
	}, logger)
	deriver := authenticator.NewDeriver(nodeOracle, logger)

	webserver := server.NewWebServer(server.Config{
		Port:         cfg.HTTP.Port,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}, txs, deriver, logger)
	if err := webserver.Start(); err != nil {
		return fmt.Errorf("starting HTTP server: %w", err)
	}

	// Wait for interrupt signal to gracefully shut down the server
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := webserver.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutting down HTTP web server", "err", err)
	}
	logger.Info("HTTP web server gracefully stopped")
	return nil
}
