package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Nitesh802/customerintel-sub008/internal/scheduler"
	httpserver "github.com/Nitesh802/customerintel-sub008/internal/transport/http"
	"github.com/Nitesh802/customerintel-sub008/internal/transport/rpc"
	"github.com/Nitesh802/customerintel-sub008/internal/transport/ws"
)

var serveFlags struct {
	noScheduler bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and JSON-RPC servers and the run scheduler",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveFlags.noScheduler, "no-scheduler", false, "Do not pick up queued runs")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg, logger := a.cfg, a.logger

	logger.Info("starting pipeline server",
		zap.Int("http_port", cfg.Server.HTTPPort),
		zap.Int("rpc_port", cfg.Server.RPCPort),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Bool("strict", cfg.Pipeline.StrictMode))

	hub := ws.NewHub(logger)
	a.orch.SetNotifier(hub)
	stream := ws.NewServer(cfg.Stream, hub, a.svc, logger)
	e := httpserver.NewServer(a.svc, stream)

	rpcServer, err := rpc.NewServer(a.svc, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Server.HTTPPort)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Server.RPCPort)
		if err := rpcServer.Start(addr); err != nil {
			return fmt.Errorf("rpc server: %w", err)
		}
		return nil
	})
	if !serveFlags.noScheduler {
		sched := scheduler.New(a.store, a.orch, cfg.Pipeline.SchedulerWorkers, cfg.Pipeline.PollInterval, logger)
		g.Go(func() error {
			return sched.Run(gctx)
		})
	}
	if cfg.Pipeline.WatchSchemas && cfg.Pipeline.SchemaDir != "" {
		g.Go(func() error {
			if err := a.schemas.Watch(gctx); err != nil {
				logger.Warn("schema watch stopped", zap.Error(err))
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down pipeline server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shutdown http server gracefully", zap.Error(err))
		}
		if err := rpcServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shutdown rpc server gracefully", zap.Error(err))
		}
		return nil
	})

	err = g.Wait()
	logger.Info("pipeline server stopped")
	return err
}
