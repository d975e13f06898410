package main

import (
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/storyweave/storyd/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP gateway and generation service",
	Long: `Start the storyd HTTP server.

Endpoints:
  POST /mcp        JSON-RPC 2.0 tool gateway (tools/list, tools/call)
  POST /generate   Run one generation job under the distributed lock
  GET  /jobs/:id   Inspect a tracked generation job
  GET  /healthz    Liveness and lock mode`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := server.New(server.Config{
		Host:    a.cfg.Server.Host,
		Port:    a.cfg.Server.Port,
		Gateway: a.gateway,
		Service: a.service,
		Tracker: a.tracker,
		Locker:  a.locker,
		Logger:  a.logger,
	})
	if err != nil {
		return err
	}

	a.logger.Info("storyd starting",
		zap.String("version", version),
		zap.String("store", a.cfg.Store.Path),
		zap.String("lock_mode", a.locker.Mode()))

	if err := srv.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	a.logger.Info("storyd stopped")
	return nil
}
