// Command scribed runs the scribe agent server: the model loop, the
// content cache, and the HTTP/SSE surface in one process.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	hertzserver "github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"scribe/internal/cache"
	"scribe/internal/config"
	"scribe/internal/metrics"
	"scribe/internal/orchestrator"
	"scribe/internal/provider"
	"scribe/internal/server"
	"scribe/internal/storage"
	"scribe/internal/tools"
	"scribe/pkg/logger"
)

var (
	cfgFile string
	version = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:     "scribed",
	Short:   "Agent server for the scribe document assistant",
	Long:    "scribed serves the agent orchestration loop and content cache over HTTP, streaming model output to editor clients via SSE.",
	Version: version,
	Run:     runServer,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func runServer(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := logger.Setup(cfg.Log); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	slog.Info("scribed starting", "version", version, "config", cfgFile)
	hlog.SetLogger(logger.NewHertzSlogAdapter(slog.Default()))

	promRegistry := prometheus.NewRegistry()
	var collector *metrics.Collector
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(promRegistry)
		metricsServer = metrics.NewServer(cfg.Metrics.Port, promRegistry)
		metricsServer.Start()
		slog.Info("metrics server started", "port", cfg.Metrics.Port)
	}

	contentCache := cache.New(cache.Options{
		MaxEntries: cfg.Cache.MaxEntries,
		TTL:        cfg.Cache.TTL,
		Observer:   collector,
	})

	providers := provider.NewRegistry()
	for _, p := range cfg.Providers {
		switch p.Kind {
		case "blocking":
			providers.Register(provider.NewBlockingClient(provider.BlockingConfig{
				Name:      p.Name,
				BaseURL:   p.BaseURL,
				Model:     p.Model,
				APIKey:    p.APIKey,
				TimeoutMS: int(p.Timeout.Milliseconds()),
			}))
		default:
			providers.Register(provider.NewSSEClient(provider.SSEConfig{
				Name:      p.Name,
				BaseURL:   p.BaseURL,
				Model:     p.Model,
				APIKey:    p.APIKey,
				TimeoutMS: int(p.Timeout.Milliseconds()),
			}))
		}
		slog.Info("model backend registered", "name", p.Name, "kind", p.Kind, "model", p.Model)
	}
	if cfg.Default != "" {
		if err := providers.SetDefault(cfg.Default); err != nil {
			slog.Error("failed to set default backend", "error", err)
			os.Exit(1)
		}
	}
	if len(providers.Names()) == 0 {
		slog.Warn("no model backends configured; runs will fail until one is added")
	}

	resources := tools.NewMemoryProvider()
	registry := tools.NewRegistry(
		tools.NewListResourcesTool(resources),
		tools.NewReadResourceTool(resources),
		tools.NewSearchLibraryTool(resources),
	).WithLogger(slog.Default()).WithMetrics(collector)

	orch := orchestrator.New(orchestrator.Options{
		Providers: providers,
		Tools:     registry,
		Cache:     contentCache,
		Logger:    slog.Default(),
		Metrics:   collector,
	})

	var store *storage.SQLiteStore
	if cfg.Storage.DBPath != "" {
		store, err = storage.NewSQLiteStore(cfg.Storage.DBPath)
		if err != nil {
			slog.Error("failed to open turn store", "error", err)
			os.Exit(1)
		}
		defer store.Close()
		slog.Info("turn store opened", "path", cfg.Storage.DBPath)
	}

	h := hertzserver.Default(
		hertzserver.WithHostPorts(cfg.ServerAddr()),
		hertzserver.WithReadTimeout(cfg.Server.ReadTimeout),
		hertzserver.WithWriteTimeout(cfg.Server.WriteTimeout),
	)
	server.RegisterRoutes(h,
		server.NewAgentHandler(orch, store, slog.Default()),
		server.NewCacheHandler(contentCache, slog.Default()),
	)

	go func() {
		if err := h.Run(); err != nil {
			slog.Error("server run failed", "error", err)
			os.Exit(1)
		}
	}()
	slog.Info("server started", "address", cfg.ServerAddr())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if metricsServer != nil {
		_ = metricsServer.Shutdown(ctx)
	}
	if err := h.Shutdown(ctx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
}
