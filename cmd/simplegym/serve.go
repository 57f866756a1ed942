package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brick-pid/simplegym/pkg/api"
	"github.com/brick-pid/simplegym/pkg/config"
	"github.com/brick-pid/simplegym/pkg/events"
	"github.com/brick-pid/simplegym/pkg/log"
	"github.com/brick-pid/simplegym/pkg/router"
	"github.com/brick-pid/simplegym/pkg/wrapper"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the environment pool server",
	Long: `Start the environment pool: spawn the worker subprocesses, wait for
each to become ready, and serve the HTTP API until SIGINT/SIGTERM.

Every flag can also be set through SIMPLEGYM_* environment variables,
e.g. SIMPLEGYM_PARALLEL_ACTOR=64.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("host", config.DefaultHost, "Listen host")
	serveCmd.Flags().Int("port", config.DefaultPort, "Listen port")
	serveCmd.Flags().Int("parallel-actor", config.DefaultParallelActor, "Number of worker subprocesses")
	serveCmd.Flags().Float64("ipc-timeout", config.DefaultIPCTimeout, "Timeout in seconds for IPC calls to workers")
	serveCmd.Flags().String("wrapper", config.DefaultWrapper, "Registered wrapper name workers construct")
	serveCmd.Flags().String("wrapper-config", "", "Path to a YAML wrapper config file")
	serveCmd.Flags().Bool("embedded", false, "Run workers as goroutines instead of subprocesses (no process isolation)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	logger := log.WithComponent("serve")
	logger.Info().
		Str("wrapper", cfg.Wrapper).
		Int("parallel_actor", cfg.ParallelActor).
		Dur("ipc_timeout", cfg.IPCTimeout).
		Bool("embedded", cfg.Embedded).
		Msg("starting environment pool")

	spawner, err := buildSpawner(cmd, cfg)
	if err != nil {
		return err
	}

	broker := events.NewBroker()
	broker.Start()

	pool, err := router.NewRouter(router.Config{
		ParallelActor: cfg.ParallelActor,
		IPCTimeout:    cfg.IPCTimeout,
		Spawner:       spawner,
		Broker:        broker,
	})
	if err != nil {
		return err
	}

	if err := pool.StartWorkers(); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	monitor := router.NewMonitor(pool, 0)
	monitor.Start()

	server := api.NewServer(pool, broker)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start(cfg.Addr())
	}()

	// Wait for a shutdown signal or a server failure.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-serveErr:
		if err != nil {
			logger.Error().Err(err).Msg("api server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("api server shutdown failed")
	}

	monitor.Stop()
	if err := pool.Shutdown(); err != nil {
		return fmt.Errorf("pool shutdown failed: %w", err)
	}
	broker.Stop()

	logger.Info().Msg("shutdown complete")
	return nil
}

func buildSpawner(cmd *cobra.Command, cfg *config.Config) (router.Spawner, error) {
	if cfg.Embedded {
		factory, err := wrapper.Lookup(cfg.Wrapper)
		if err != nil {
			return nil, err
		}
		wrapperCfg, err := loadWrapperConfig(cfg.WrapperConfig)
		if err != nil {
			return nil, err
		}
		return &router.InprocSpawner{Factory: factory, Config: wrapperCfg}, nil
	}

	logLevel, _ := cmd.Flags().GetString("log-level")
	return &router.ExecSpawner{
		Wrapper:       cfg.Wrapper,
		WrapperConfig: cfg.WrapperConfig,
		LogLevel:      logLevel,
	}, nil
}
