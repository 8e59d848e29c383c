package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/fedcoord/pkg/api"
	"github.com/cuemby/fedcoord/pkg/config"
	"github.com/cuemby/fedcoord/pkg/coordinator"
	"github.com/cuemby/fedcoord/pkg/log"
	"github.com/cuemby/fedcoord/pkg/metrics"
	"github.com/spf13/cobra"
)

var (
	configPath string
	dataDir    string
	bindAddr   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordinator API server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "Path to a coordinator.yaml config file")
	serveCmd.Flags().StringVar(&dataDir, "data-dir", "", "Override the configured data directory")
	serveCmd.Flags().StringVar(&bindAddr, "bind-addr", ":8080", "Address for the API server to listen on")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := log.WithComponent("main")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	core, err := coordinator.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to construct coordinator: %w", err)
	}
	core.Start()
	metrics.RegisterComponent("coordinator", true, "running")

	apiServer := api.NewServer(core)
	errCh := make(chan error, 1)
	go func() {
		if err := apiServer.Start(bindAddr); err != nil {
			errCh <- err
		}
	}()
	metrics.RegisterComponent("api", true, "listening on "+bindAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("api server failed")
		metrics.UpdateComponent("api", false, err.Error())
		serveErr = fmt.Errorf("api server failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := apiServer.Stop(ctx); err != nil {
		logger.Error().Err(err).Msg("api server shutdown failed")
	}
	if err := core.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("coordinator shutdown failed")
	}

	return serveErr
}
