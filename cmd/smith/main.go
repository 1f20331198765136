package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/draftworks/agentsmith/internal/api"
	"github.com/draftworks/agentsmith/internal/builder"
	"github.com/draftworks/agentsmith/internal/bus"
	"github.com/draftworks/agentsmith/internal/command"
	"github.com/draftworks/agentsmith/internal/config"
	"github.com/draftworks/agentsmith/internal/gateway"
	"github.com/draftworks/agentsmith/internal/provider"
	"github.com/draftworks/agentsmith/internal/research"
	"github.com/draftworks/agentsmith/internal/schema"
	pgstore "github.com/draftworks/agentsmith/internal/store"
	"github.com/draftworks/agentsmith/internal/thread"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting Agent Smith...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/smith.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Initialize provider router
	router := provider.NewRouter(logger)
	for _, pc := range cfg.Providers {
		provCfg := provider.Config{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey,
		}
		switch pc.Type {
		case "openai":
			router.Register(provider.NewOpenAIProvider(provCfg, logger))
		case "anthropic":
			router.Register(provider.NewAnthropicProvider(provCfg, logger))
		default:
			logger.Warn("unknown provider type", zap.String("id", pc.ID), zap.String("type", pc.Type))
		}
	}
	if !router.Available() {
		logger.Fatal("no LLM providers configured")
	}

	// Initialize PostgreSQL store
	var pgStore *pgstore.Store
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := pgstore.Open(context.Background(), cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without persistence", zap.Error(pgErr))
		} else {
			if mErr := ps.Migrate(context.Background(), "migrations"); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			pgStore = ps
		}
	}

	// Initialize thread store, restoring persisted threads
	validator := &schema.Validator{EnforceCatalog: cfg.Builder.EnforceCatalog}
	threads := thread.NewStore(validator, logger)
	if pgStore != nil {
		ids, listErr := pgStore.ListThreadIDs(context.Background())
		if listErr != nil {
			logger.Warn("failed to list persisted threads", zap.Error(listErr))
		}
		for _, id := range ids {
			snap, loadErr := pgStore.LoadThread(context.Background(), id)
			if loadErr != nil {
				logger.Warn("failed to load thread", zap.String("thread", id), zap.Error(loadErr))
				continue
			}
			threads.Restore(snap)
		}
		if len(ids) > 0 {
			logger.Info("Restored threads from DB", zap.Int("count", len(ids)))
		}
	}

	// Initialize builder
	researchClient := research.NewClient(cfg.Builder.Research.Endpoint, cfg.Builder.Research.APIKey, logger)
	b := builder.New(router, threads, researchClient, cfg.Builder.Model, logger)

	// Initialize event bus
	var eventBus *bus.EventBus
	if cfg.Database.Redis.URL != "" {
		eb, busErr := bus.New(cfg.Database.Redis.URL, logger)
		if busErr != nil {
			logger.Warn("Redis unavailable, running without event bus", zap.Error(busErr))
		} else {
			eventBus = eb
			b.SetEvents(eb)
		}
	}

	// Initialize gateway
	gw := gateway.NewManager(logger)

	commands := command.NewRegistry()
	command.RegisterBuiltins(commands, threads, b)

	// Wire message router BEFORE registering adapters (Register captures handler)
	msgRouter := gateway.NewRouter(gw, threads, b, commands, logger)
	gw.SetHandler(msgRouter.Handle)

	gwCtx, gwCancel := context.WithCancel(context.Background())
	defer gwCancel()

	if eventBus != nil {
		broadcaster := gateway.NewBroadcaster(gw, eventBus, logger)
		msgRouter.OnBind(func(threadID, platform, channelID string) {
			broadcaster.Follow(gwCtx, threadID, platform, channelID)
		})
	}

	if cfg.Gateway.Slack.Enabled && cfg.Gateway.Slack.BotToken != "" {
		gw.Register(gateway.NewSlackAdapter(cfg.Gateway.Slack.BotToken, cfg.Gateway.Slack.AppToken, logger))
	}
	if cfg.Gateway.Discord.Enabled && cfg.Gateway.Discord.BotToken != "" {
		gw.Register(gateway.NewDiscordAdapter(cfg.Gateway.Discord.BotToken, logger))
	}
	if err := gw.ConnectAll(gwCtx); err != nil {
		logger.Warn("some gateway adapters failed to connect", zap.Error(err))
	}

	// Build HTTP handler
	handler := api.NewHandler(threads, b, pgStore, gw, logger)

	// Start server
	port := fmt.Sprintf("%d", cfg.Server.Port)
	if port == "0" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Agent Smith listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Agent Smith...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	gwCancel()
	if eventBus != nil {
		eventBus.Close()
	}
	if pgStore != nil {
		pgStore.Close()
	}
	gw.Close()
}
