// Package main provides the entry point for the marketplace sync service.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/inventoryhub/marketsync/internal/auth"
	"github.com/inventoryhub/marketsync/internal/cache"
	"github.com/inventoryhub/marketsync/internal/client"
	"github.com/inventoryhub/marketsync/internal/config"
	"github.com/inventoryhub/marketsync/internal/health"
	"github.com/inventoryhub/marketsync/internal/metrics"
	"github.com/inventoryhub/marketsync/internal/model"
	"github.com/inventoryhub/marketsync/internal/server"
	"github.com/inventoryhub/marketsync/internal/service"
	"github.com/inventoryhub/marketsync/internal/store"
)

// stores groups the persistence interfaces behind one backing implementation.
type stores struct {
	stocks store.StockStore
	links  store.LinkStore
	tasks  store.TaskStore
	tokens store.TokenStore
	pinger health.Pinger
	close  func()
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// A .env file is optional; real environments set variables directly.
	_ = godotenv.Load()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadConfig(*configPath)
	} else {
		cfg = config.Default()
	}
	if cfg == nil {
		cfg = config.Default()
	}

	logger := initLogger(cfg.Logging)
	defer logger.Sync()

	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Starting marketplace sync service",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("marketplace", cfg.Marketplace.BaseURL),
		zap.Bool("database", cfg.Database.Enabled))

	st, err := buildStores(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize store", zap.Error(err))
	}
	defer st.close()

	m := metrics.NewMetrics("syncd")

	cacheSvc := cache.NewService(&cache.Config{MaxEntries: cfg.Cache.MaxEntries}, m, logger)

	gateway := client.NewClient(&client.Config{
		BaseURL:           cfg.Marketplace.BaseURL,
		ClientID:          cfg.Marketplace.ClientID,
		ClientSecret:      cfg.Marketplace.ClientSecret,
		RequestTimeout:    cfg.Marketplace.RequestTimeout,
		RequestsPerSecond: cfg.Marketplace.RequestsPerSecond,
		Burst:             cfg.Marketplace.Burst,
		ChunkSize:         cfg.Marketplace.ChunkSize,
		ChunkDelay:        cfg.Marketplace.ChunkDelay,
		MaxPages:          cfg.Marketplace.MaxPages,
		MaxOrders:         cfg.Marketplace.MaxOrders,
		PageSize:          cfg.Marketplace.PageSize,
	}, st.tokens, m, logger)

	thresholds := service.Thresholds{
		LowStockFloor:    cfg.Sync.LowStockFloor,
		DivergenceRatio:  cfg.Sync.DivergenceRatio,
		StalenessWindow:  cfg.Sync.StalenessWindow,
		MaxPerStrategy:   cfg.Sync.MaxPerStrategy,
		Concurrency:      cfg.Sync.Concurrency,
		BestSellerWindow: cfg.Sync.BestSellerWindow,
		MarginMin:        service.DefaultThresholds().MarginMin,
		MarginMax:        service.DefaultThresholds().MarginMax,
	}

	syncSvc := service.NewSyncService(gateway, st.stocks, st.links, st.tasks,
		cacheSvc, thresholds, m, logger)
	analytics := service.NewAnalyticsService(st.stocks, st.links, st.tasks,
		cacheSvc, thresholds, logger)

	var verifier auth.Verifier
	if cfg.Auth.JWTSecret != "" {
		verifier = auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	} else {
		logger.Warn("JWT secret not configured, requests are not authenticated")
		verifier = auth.InsecureVerifier{}
	}

	httpServer := server.NewServer(cfg, syncSvc, analytics, cacheSvc, verifier, st.pinger, logger)
	httpServer.SetupRoutes()

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errChan <- err
		}
	}()

	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	if cfg.Sync.AutoInterval > 0 && len(cfg.Sync.Accounts) > 0 {
		go runScheduler(schedulerCtx, syncSvc, cfg.Sync, logger)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		logger.Error("Server error", zap.Error(err))
	}

	stopScheduler()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown HTTP server", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}

// buildStores selects the persistence backend. Without a database the
// service runs fully in memory, which suits development and tests.
func buildStores(cfg *config.Config, logger *zap.Logger) (*stores, error) {
	if !cfg.Database.Enabled {
		mem := store.NewMemory()
		return &stores{
			stocks: mem,
			links:  mem,
			tasks:  mem,
			tokens: mem,
			close:  func() {},
		}, nil
	}

	pg, err := store.NewPostgres(
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Database,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.MaxConns,
		cfg.Database.MinConns,
		logger,
	)
	if err != nil {
		return nil, err
	}
	return &stores{
		stocks: pg,
		links:  pg,
		tasks:  pg,
		tokens: pg,
		pinger: pg,
		close:  pg.Close,
	}, nil
}

// runScheduler triggers periodic auto syncs for the configured accounts.
func runScheduler(ctx context.Context, syncSvc *service.SyncService, cfg config.SyncConfig, logger *zap.Logger) {
	logger.Info("Auto-sync scheduler started",
		zap.Duration("interval", cfg.AutoInterval),
		zap.Strings("accounts", cfg.Accounts))

	ticker := time.NewTicker(cfg.AutoInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, accountID := range cfg.Accounts {
				task, err := syncSvc.RunSync(ctx, accountID, model.StrategyAuto)
				if err != nil {
					logger.Error("Scheduled sync failed",
						zap.String("account_id", accountID),
						zap.Error(err))
					continue
				}
				logger.Info("Scheduled sync finished",
					zap.String("account_id", accountID),
					zap.String("task_id", task.ID),
					zap.Bool("success", task.Success))
			}
		case <-ctx.Done():
			logger.Info("Auto-sync scheduler stopped")
			return
		}
	}
}

// initLogger initializes the zap logger from logging configuration.
func initLogger(cfg config.LoggingConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.OutputPaths = []string{"stdout"}
	zapCfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := zapCfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
