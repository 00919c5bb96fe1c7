package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/buessow/glumagic/internal/api"
	"github.com/buessow/glumagic/internal/services"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve feature vectors over gRPC and HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()
			cfg := a.cfg
			logger := a.logger

			pipeline, err := a.pipeline(ctx, cfg.Pipeline)
			if err != nil {
				return err
			}
			pub, err := a.publisher()
			if err != nil {
				return err
			}
			svc := services.NewFeatureService(logger, pipeline, pub)

			server, err := api.NewServer(cfg.Server, svc)
			if err != nil {
				return err
			}
			logger.Info("starting glumagic", slog.String("address", server.Address()), slog.String("provider", cfg.Provider))

			var httpServers []*http.Server
			if cfg.Server.HTTPAddress != "" {
				httpServers = append(httpServers, &http.Server{
					Addr:         cfg.Server.HTTPAddress,
					Handler:      api.NewRouter(svc, prometheus.DefaultGatherer, os.Stdout, logger),
					ReadTimeout:  5 * time.Second,
					WriteTimeout: 60 * time.Second,
				})
			}
			if cfg.Server.MetricsAddress != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				httpServers = append(httpServers, &http.Server{
					Addr:         cfg.Server.MetricsAddress,
					Handler:      mux,
					ReadTimeout:  5 * time.Second,
					WriteTimeout: 15 * time.Second,
				})
			}
			for _, srv := range httpServers {
				srv := srv
				go func() {
					logger.Info("http server listening", slog.String("address", srv.Addr))
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("http server exited", slog.String("address", srv.Addr), slog.Any("error", err))
						stop()
					}
				}()
			}

			go func() {
				if serveErr := server.Start(); serveErr != nil {
					logger.Error("gRPC server exited", slog.Any("error", serveErr))
					stop()
				}
			}()

			<-ctx.Done()
			logger.Info("shutdown signal received")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), server.GracefulTimeout())
			defer cancel()
			server.Shutdown(shutdownCtx)
			for _, srv := range httpServers {
				if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Warn("http server shutdown", slog.String("address", srv.Addr), slog.Any("error", err))
				}
			}
			logger.Info("glumagic stopped")
			return nil
		},
	}
}
