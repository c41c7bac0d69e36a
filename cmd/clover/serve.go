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

	"github.com/Ramsey-B/clover/pkg/routes"
)

func newServeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, when Kafka is enabled, the rebuild consumer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, g)
		},
	}
}

func serve(ctx context.Context, g *globals) error {
	cfg, logger := g.cfg, g.logger

	a, err := start(ctx, g)
	if err != nil {
		return err
	}
	defer a.stop(context.WithoutCancel(ctx))

	if consumer := a.consumer(); consumer != nil {
		consumer.Start(ctx)
		defer func() {
			if err := consumer.Stop(); err != nil {
				logger.WithError(err).Error("Failed to stop consumer")
			}
		}()
	}

	e := routes.NewServer(routes.ServerConfig{
		ServiceName:    cfg.AppName,
		AllowOrigins:   cfg.AllowOrigins,
		AllowMethods:   cfg.AllowMethods,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, a.engine, a.checker, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           e,
		ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Starting HTTP server on port %d", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	a.checker.SetReady(true)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.checker.SetReady(false)
	logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
