// Package main is the entrypoint for the reliefmesh-go server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reliefmesh/reliefmesh-go/internal/cache"
	cachemem "github.com/reliefmesh/reliefmesh-go/internal/cache/memory"
	"github.com/reliefmesh/reliefmesh-go/internal/chat"
	"github.com/reliefmesh/reliefmesh-go/internal/config"
	"github.com/reliefmesh/reliefmesh-go/internal/fulfillment"
	"github.com/reliefmesh/reliefmesh-go/internal/identity"
	"github.com/reliefmesh/reliefmesh-go/internal/inventory"
	"github.com/reliefmesh/reliefmesh-go/internal/profile"
	"github.com/reliefmesh/reliefmesh-go/internal/realtime"
	"github.com/reliefmesh/reliefmesh-go/internal/request"
	"github.com/reliefmesh/reliefmesh-go/internal/server"
	"github.com/reliefmesh/reliefmesh-go/internal/store"
	"github.com/reliefmesh/reliefmesh-go/internal/supplier"

	// Register persistence drivers
	_ "github.com/reliefmesh/reliefmesh-go/internal/store/memory"
	_ "github.com/reliefmesh/reliefmesh-go/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: trace, debug, info, warn, error (overrides config)")
	storeDriver := flag.String("store-driver", "", "Persistence driver: memory or sqlite (overrides config)")
	storeDataDir := flag.String("data-dir", "", "Data directory for the sqlite driver (overrides config)")
	overseerUsername := flag.String("overseer-user", "", "Bootstrap overseer username (overrides config)")
	overseerPassword := flag.String("overseer-password", "", "Bootstrap overseer password (overrides config)")
	flag.Parse()

	// Bootstrap logger for config loading errors (uses default level)
	bootstrapLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		FlagOverrides: config.FlagOverrides{
			ListenAddr:       listenAddr,
			LogLevel:         logLevel,
			StoreDriver:      storeDriver,
			StoreDataDir:     storeDataDir,
			OverseerUsername: overseerUsername,
			OverseerPassword: overseerPassword,
		},
		Logger: bootstrapLogger,
	})
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var level slog.Level
	switch cfg.Logging.Level {
	case "trace":
		level = slog.LevelDebug - 4 // slog has no trace, use debug-4
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("effective configuration", "config", cfg.Redacted())

	backend, err := store.New(&store.DriverConfig{
		Driver:  cfg.Store.Driver,
		DataDir: cfg.Store.DataDir,
		Options: cfg.Store.Options,
	})
	if err != nil {
		logger.Error("failed to create store", "error", err)
		os.Exit(1)
	}
	if err := backend.Init(context.Background()); err != nil {
		logger.Error("failed to initialize store", "driver", backend.Name(), "error", err)
		os.Exit(1)
	}
	defer backend.Close()
	logger.Info("store ready", "driver", backend.Name())

	sessionRepo := identity.NewMemorySessionRepo()
	userAuth := identity.NewUserAuth(cfg.Auth.BcryptCost)

	bootstrap := identity.NewBootstrap(backend, userAuth, logger)
	overseerUser := cfg.Auth.OverseerUsername
	if overseerUser == "" {
		overseerUser = "overseer"
	}
	if _, err := bootstrap.Run(context.Background(), identity.SeededUser{
		Username: overseerUser,
		Password: cfg.Auth.OverseerPassword,
	}, nil); err != nil {
		logger.Error("failed to bootstrap overseer", "error", err)
		os.Exit(1)
	}

	// Shared in-memory cache backs supplier match results and rate limiting.
	memCache := cachemem.New(cache.TTLSupplierMatch, time.Minute)
	defer memCache.Close()

	requests := request.NewService(backend, logger)
	profiles := profile.NewService(backend, logger)
	ledger := inventory.NewService(backend, logger)
	matcher := supplier.NewMatcher(backend, memCache, logger)
	coordinator := fulfillment.NewCoordinator(backend, ledger, requests, logger)
	threads := chat.NewService(backend, logger)

	hub := realtime.NewHub(logger)
	threads.SetNotifier(hub)
	tickets := realtime.NewTicketIssuer([]byte(cfg.Realtime.TicketSecret), cfg.Realtime.TicketTTL())
	channels := realtime.NewChannelServer(tickets, hub, threads, cfg.Realtime.ReplayLimit, logger)

	srv, err := server.New(server.Deps{
		Config:      cfg,
		Logger:      logger,
		Backend:     backend,
		Sessions:    sessionRepo,
		Auth:        userAuth,
		Requests:    requests,
		Profiles:    profiles,
		Ledger:      ledger,
		Matcher:     matcher,
		Coordinator: coordinator,
		Threads:     threads,
		Hub:         hub,
		Tickets:     tickets,
		Channels:    channels,
		Limiter:     memCache,
	})
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("server started, press Ctrl+C to stop")

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
