package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hello-drektopia/redditbot-go/internal/commands"
	"github.com/hello-drektopia/redditbot-go/internal/config"
	"github.com/hello-drektopia/redditbot-go/internal/handlers"
	"github.com/hello-drektopia/redditbot-go/internal/i18n"
	"github.com/hello-drektopia/redditbot-go/internal/middleware"
	"github.com/hello-drektopia/redditbot-go/internal/scheduler"
	"github.com/hello-drektopia/redditbot-go/internal/services/ai"
	"github.com/hello-drektopia/redditbot-go/internal/services/cache"
	"github.com/hello-drektopia/redditbot-go/internal/services/platform"
	"github.com/hello-drektopia/redditbot-go/internal/services/policy"
	"github.com/hello-drektopia/redditbot-go/internal/services/reply"
	"github.com/hello-drektopia/redditbot-go/internal/services/settings"
	"github.com/hello-drektopia/redditbot-go/internal/services/storage"
	"github.com/hello-drektopia/redditbot-go/internal/services/usage"
	"github.com/hello-drektopia/redditbot-go/pkg/logger"
	"github.com/hello-drektopia/redditbot-go/pkg/markdown"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	// Load .env file if exists
	if err := godotenv.Load(*envFile); err != nil {
		// It's okay if .env doesn't exist
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithField("app", cfg.Bot.AppName).Info("Starting reddit bot...")

	metrics := middleware.NewMetrics()

	// Initialize storage
	storageManager, err := storage.NewManager(cfg, log, metrics)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize storage")
	}
	defer storageManager.Close()

	// Initialize services
	verdictCache := cache.NewCache(cfg, log, metrics)
	aiClient := ai.NewClient(&cfg.OpenAI, verdictCache, metrics, log)
	redditClient := platform.NewRedditClient(&cfg.Platform, log)

	settingsProvider := settings.NewProvider(storageManager, cfg.Defaults, log)
	counters := usage.NewStore(storageManager, log)
	checker := policy.NewChecker(storageManager, counters, aiClient, cfg.Bot.AppName, log)
	replies := reply.NewOrchestrator(checker, aiClient, redditClient, counters, metrics, log)

	rateLimiter := middleware.NewRateLimiter(cfg, log, metrics)
	defer rateLimiter.Stop()

	// Initialize i18n
	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize i18n")
	}

	sched := scheduler.New(cfg.Bot.RequestTimeout, log)

	handler := handlers.NewHandler(
		cfg,
		settingsProvider,
		counters,
		checker,
		replies,
		aiClient,
		redditClient,
		sched,
		rateLimiter,
		localizer,
		metrics,
		log,
	)

	// The hourly reset runs in-process; the install trigger re-registers it idempotently
	if result := handler.Install(context.Background()); !result.Success {
		log.WithField("message", result.Message).Fatal("Failed to schedule counter reset")
	}
	sched.Start()

	// Start metrics server if enabled
	if cfg.Monitoring.Metrics.Enabled {
		commandsPage := markdown.Page("Commands for "+cfg.Bot.AppName, commands.HelpText())
		go func() {
			log.WithFields(logrus.Fields{
				"port": cfg.Monitoring.Metrics.Port,
				"path": cfg.Monitoring.Metrics.Path,
			}).Info("Starting metrics server")

			if err := middleware.StartMetricsServer(cfg.Monitoring.Metrics.Port, cfg.Monitoring.Metrics.Path, commandsPage); err != nil {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	server := handler.NewServer()
	go func() {
		log.WithField("addr", server.Addr).Info("Listening for webhooks")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Webhook server failed")
		}
	}()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	<-sigChan
	log.Info("Shutdown signal received")

	shutdownTimeout := cfg.Bot.RequestTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Failed to shut down webhook server")
	}

	select {
	case <-sched.Stop().Done():
	case <-ctx.Done():
		log.Warn("Scheduled jobs still running at shutdown")
	}

	log.Info("Bot stopped")
}
