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

	"lawdesk/internal/config"
	"lawdesk/internal/server"
)

func newServeCmd() *cobra.Command {
	var opts server.Options

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv, err := server.New(ctx, cfg, logger, opts)
			if err != nil {
				return err
			}
			defer srv.Close()

			httpServer := srv.NewServer()
			done := make(chan error, 1)
			go func() {
				<-ctx.Done()
				logger.Info("shutting down gracefully, press Ctrl+C again to force")
				stop()

				// The context is used to inform the server it has 5 seconds to finish
				// the request it is currently handling
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				done <- httpServer.Shutdown(shutdownCtx)
			}()

			logger.Info("server listening", "addr", httpServer.Addr, "memory_records", opts.MemoryRecords)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server error: %w", err)
			}
			if err := <-done; err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			logger.Info("server exited")
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.MemoryRecords, "memory", false, "keep records in memory instead of Postgres (development only)")
	cmd.Flags().BoolVar(&opts.Migrate, "migrate", true, "apply pending migrations on start")
	return cmd
}
