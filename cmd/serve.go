package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/calagem/calagem/internal/api"
	"github.com/calagem/calagem/internal/task"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 2 * time.Minute
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (host:port, overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	logger := initLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx, logger, true)
	if err != nil {
		return err
	}

	addr := serveAddr
	if addr == "" {
		addr = a.Config.HTTPAddr
	}
	if err := validateAddr(addr); err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}

	runner, err := task.New(task.Config{
		Pipeline: a.Engine,
		Workers:  a.Config.Workers,
		TTL:      time.Duration(a.Config.TaskStatusTTL) * time.Second,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("creating task runner: %w", err)
	}
	defer runner.Close()

	apiServer, err := api.NewServer(api.ServerConfig{
		Logger:    logger,
		Engine:    a.Engine,
		Tasks:     runner,
		Sessions:  a.Sessions,
		Throttle:  time.Duration(a.Config.ThrottleSeconds) * time.Second,
		RateBurst: a.Config.RateBurst,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", addr,
		"api", "/api/v1/*",
		"health", "/health",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}
