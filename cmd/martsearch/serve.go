package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	chiTransport "github.com/kailas-cloud/martsearch/internal/transport/chi"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP JSON API",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port",
				Usage: "Override http.port",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			a, err := bootstrap(ctx, c)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.serve(ctx, c.Int("port"))
		},
	}
}

func (a *instance) serve(ctx context.Context, port int) error {
	if port == 0 {
		port = a.Config.HTTP.Port
	}

	// A dead index at startup is reported, not fatal: health turns green once it is back.
	if err := a.Index.IsAlive(ctx); err != nil {
		a.logger.Warn("Search index not reachable at startup", zap.Error(err))
	}

	server := chiTransport.NewServer(a.Search, a.Health, a.logger)

	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Routes(),
		ReadTimeout:  time.Duration(a.Config.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(a.Config.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-quit:
		a.logger.Info("Received shutdown signal")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(a.Config.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Error during shutdown", zap.Error(err))
	}

	a.logger.Info("Server stopped gracefully")
	return nil
}
