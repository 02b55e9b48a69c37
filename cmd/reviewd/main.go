// Command reviewd serves the code review agent API: session lifecycle,
// the websocket session protocol, and agent task runs.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/TRob9/claude-github-buddy/internal/agent/credentials"
	"github.com/TRob9/claude-github-buddy/internal/agent/runner"
	"github.com/TRob9/claude-github-buddy/internal/agent/runtime"
	"github.com/TRob9/claude-github-buddy/internal/api"
	"github.com/TRob9/claude-github-buddy/internal/common/config"
	"github.com/TRob9/claude-github-buddy/internal/common/logger"
	"github.com/TRob9/claude-github-buddy/internal/events/bus"
	"github.com/TRob9/claude-github-buddy/internal/gitprep"
	"github.com/TRob9/claude-github-buddy/internal/history"
	"github.com/TRob9/claude-github-buddy/internal/review"
	"github.com/TRob9/claude-github-buddy/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting reviewd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Event bus: NATS when configured, in-process otherwise.
	var eventBus bus.EventBus
	if cfg.NATS.URL != "" {
		natsBus, err := bus.NewNATSEventBus(cfg.NATS, log)
		if err != nil {
			log.Fatal("failed to connect to nats", zap.Error(err))
		}
		eventBus = natsBus
	} else {
		eventBus = bus.NewMemoryEventBus(log)
		log.Info("no nats url configured, using in-memory event bus")
	}
	defer eventBus.Close()

	// Lifecycle events are the observability surface; log them all.
	if _, err := eventBus.Subscribe("reviewd.>", func(ctx context.Context, event *bus.Event) error {
		log.Info("lifecycle event",
			zap.String("event_type", event.Type),
			zap.Any("data", event.Data))
		return nil
	}); err != nil {
		log.Warn("failed to subscribe to lifecycle events", zap.Error(err))
	}

	// Run history: Postgres when configured, in-memory otherwise.
	var store history.Store
	if cfg.Database.Host != "" {
		pg, err := history.NewPostgresStore(ctx, cfg.Database.DSN())
		if err != nil {
			log.Fatal("failed to connect to database", zap.Error(err))
		}
		store = pg
		log.Info("connected to database", zap.String("host", cfg.Database.Host))
	} else {
		store = history.NewMemoryStore()
		log.Info("no database configured, using in-memory run history")
	}
	defer store.Close()

	registry := session.NewRegistry(session.Options{
		PermissionTimeout: cfg.Session.PermissionTimeout(),
	}, log)

	factory, err := runtime.NewFactory(cfg.Agent, credentials.AgentEnv(), log)
	if err != nil {
		log.Fatal("failed to initialize agent runtime", zap.Error(err))
	}

	taskRunner := runner.New(
		registry,
		gitprep.New(cfg.Git, log),
		review.NewMonitor(cfg.Session.MinAnswerLength, log),
		factory,
		store,
		eventBus,
		cfg.Session,
		log,
	)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.SetupRouter(registry, taskRunner, store, eventBus, log)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	go func() {
		log.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start http server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down reviewd")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", zap.Error(err))
	}

	log.Info("reviewd stopped")
}
