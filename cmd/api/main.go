package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-collections/api/routes"
	"github.com/angelmondragon/storefront-collections/internal/collections"
	"github.com/angelmondragon/storefront-collections/internal/collections/remote"
	"github.com/angelmondragon/storefront-collections/pkg/config"
	"github.com/angelmondragon/storefront-collections/pkg/enums"
	"github.com/angelmondragon/storefront-collections/pkg/instance"
	"github.com/angelmondragon/storefront-collections/pkg/logger"
	"github.com/angelmondragon/storefront-collections/pkg/metrics"
	"github.com/angelmondragon/storefront-collections/pkg/transport"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := bootstrapStorage(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap storage", err)
		os.Exit(1)
	}
	defer store.Close(context.Background(), logg)

	httpClient := transport.NewHTTPClient(cfg.Remote.Timeout, cfg.Remote.ChromeTLS)
	remotes := make(map[enums.CollectionKind]collections.RemoteStore, len(enums.CollectionKinds()))
	for _, kind := range enums.CollectionKinds() {
		client, err := remote.NewClient(cfg.Remote.BaseURL, kind, remote.WithHTTPClient(httpClient))
		if err != nil {
			logg.Error(ctx, "failed to build remote client", err)
			os.Exit(1)
		}
		remotes[kind] = client
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collectionMetrics := metrics.NewCollectionMetrics(promRegistry)
	jobMetrics := metrics.NewJobMetrics(promRegistry)

	registry := collections.NewRegistry(
		store.scoper,
		remotes,
		collections.Options{
			CompareLimit: cfg.Collections.CompareLimit,
			ErrorTTL:     cfg.Collections.ErrorTTL,
			ReflectWait:  cfg.Collections.ReflectWait,
			PollInterval: cfg.Collections.PollInterval,
		},
		cfg.Collections.IdleTTL,
		logg,
		collections.WithRecorder(collectionMetrics),
		collections.WithJobRecorder(jobMetrics),
	)
	defer registry.Close()

	go registry.Run(ctx, cfg.Collections.SweepInterval)
	go runPurge(ctx, store, cfg.Collections.SweepInterval, jobMetrics, logg)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
		"storage":  cfg.Storage.Driver,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			registry,
			store.limiter,
			promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
			store.readiness,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}
