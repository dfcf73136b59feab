package main

import (
	"context"
	"errors"
	nethttp "net/http"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/brdforge/internal/http"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var host string
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the operator HTTP API",
		Long: `Start the operator HTTP API with full service initialization:
store, model client, classification pipeline, synthesis and validation.

Examples:
  # Start with the in-memory store
  brdforge serve --store memory

  # Listen on all interfaces
  brdforge serve --host 0.0.0.0 --port 9191`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := ossignal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, host, port)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides server.http_host)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.http_port)")
	return cmd
}

// runServe starts the server and blocks until ctx is cancelled, then shuts
// down within the configured timeout.
func runServe(ctx context.Context, opts *rootOptions, host string, port int) error {
	rt, err := newRuntime(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	cfg := &http.Config{Host: rt.cfg.Server.Host, Port: rt.cfg.Server.Port}
	if host != "" {
		cfg.Host = host
	}
	if port != 0 {
		cfg.Port = port
	}

	srv, err := http.NewServer(http.Deps{
		Store:       rt.store,
		Classifier:  rt.pipeline,
		Synthesizer: rt.synth,
		Validator:   rt.validator,
	}, rt.logger, cfg)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, nethttp.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	rt.logger.Info(context.Background(), "received shutdown signal",
		zap.Duration("timeout", rt.cfg.Server.ShutdownTimeout.Duration()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		return err
	}
	rt.logger.Info(context.Background(), "server shutdown complete")
	return nil
}
