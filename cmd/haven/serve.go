package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/havenos/haven/internal/lifecycle"
)

const shutdownTimeout = 15 * time.Second

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the scheduled lifecycle sweep",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		sched := lifecycle.NewScheduler(a.sweeper, logger)
		if cfg.Lifecycle.Schedule != "" {
			if err := sched.Schedule(cfg.Lifecycle.Schedule); err != nil {
				return err
			}
			sched.Start()
			logger.Info("lifecycle sweep scheduled",
				"schedule", cfg.Lifecycle.Schedule,
				"next", sched.Next())
		}

		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           a.server().Handler(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       time.Duration(cfg.Server.ReadTimeout) * time.Second,
			WriteTimeout:      time.Duration(cfg.Server.WriteTimeout) * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("listening", "addr", cfg.Server.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			sched.Stop(context.Background())
			return err
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		sched.Stop(shutdownCtx)
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}
