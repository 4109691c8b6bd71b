package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"transit_notification_engine/internal/app"
	"transit_notification_engine/internal/domain/alert"
	"transit_notification_engine/internal/domain/scoring"
	"transit_notification_engine/internal/infra/cache"
	"transit_notification_engine/internal/infra/config"
	idb "transit_notification_engine/internal/infra/database"
	infraeph "transit_notification_engine/internal/infra/ephemeris"
	"transit_notification_engine/internal/infra/logchannel"
	"transit_notification_engine/internal/infra/logger"
	"transit_notification_engine/internal/infra/metrics"
	"transit_notification_engine/internal/infra/scheduler"
	"transit_notification_engine/internal/infra/telegram"

	"gopkg.in/telebot.v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("FATAL: Could not load application configuration: %v", err)
	}
	logger.Init(cfg)
	log := logger.Get()

	log.Infof("Transit notification engine starting (environment: %s)", cfg.Environment)

	db, err := idb.NewPostgresConnection(cfg.DatabaseURL, cfg.WorkerCount)
	if err != nil {
		log.Fatalf("FATAL: Could not connect to database: %v", err)
	}
	defer db.Close()
	log.Info("Database connection established")

	transitRepo := idb.NewPostgresTransitRepository(db)
	alertRepo := idb.NewPostgresAlertRepository(db)
	chartRepo := idb.NewPostgresChartRepository(db)

	provider := infraeph.NewHTTPProvider(cfg.ProviderBaseURL, cfg.ProviderTimeout)
	positionCache := cache.NewPositionCache(provider, cfg.PositionBucket)
	// Analysis entries stay useful for two polling intervals at most.
	analysisCache := cache.NewAnalysisCache(cfg.AnalysisCacheSize, 2*cfg.PollInterval)

	var channels []alert.Channel
	if cfg.TelegramToken != "" {
		bot, err := telebot.NewBot(telebot.Settings{
			Token:  cfg.TelegramToken,
			Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		})
		if err != nil {
			log.Fatalf("FATAL: Could not create Telegram bot: %v", err)
		}
		channels = append(channels, telegram.NewTelebotChannel(bot, chartRepo))
		log.Info("Telegram alert channel registered")
	} else {
		log.Warn("TELEGRAM_TOKEN not set; alerts will only reach the log channel")
	}
	if len(channels) == 0 || cfg.Environment == "development" {
		channels = append(channels, logchannel.NewLogChannel(log))
	}

	alertService := app.NewAlertService(alertRepo, channels, log, cfg.DeliveryTimeout, cfg.AlertCeilingPerHour)

	analysisService, err := app.NewAnalysisService(
		chartRepo,
		positionCache,
		analysisCache,
		transitRepo,
		alertService,
		log,
		scoring.DefaultWeights,
		cfg.ExactnessEpsilon,
		cfg.PollInterval,
		cfg.ProviderTimeout,
	)
	if err != nil {
		log.Fatalf("FATAL: Could not build analysis service: %v", err)
	}

	sweepScheduler := scheduler.NewSweepScheduler(
		analysisService,
		chartRepo,
		transitRepo,
		[]scheduler.Sweeper{positionCache},
		log,
		cfg.PollInterval,
		cfg.WorkerCount,
		cfg.EpisodeGracePeriod,
	)
	if err := sweepScheduler.Start(); err != nil {
		log.Fatalf("FATAL: Could not start sweep scheduler: %v", err)
	}

	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}
	go func() {
		log.Infof("Metrics listener on %s", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Metrics listener failed: %v", err)
		}
	}()

	log.Info("Engine setup complete")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")
	sweepScheduler.Stop()
	metricsServer.Close()
	log.Info("Engine shut down gracefully")
}
