package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Duinho/SignalWatch/internal/config"
	cronrunner "github.com/Duinho/SignalWatch/internal/cron"
	"github.com/Duinho/SignalWatch/internal/db"
	"github.com/Duinho/SignalWatch/internal/feedback"
	"github.com/Duinho/SignalWatch/internal/handler"
	"github.com/Duinho/SignalWatch/internal/logger"
	"github.com/Duinho/SignalWatch/internal/monitor"
	"github.com/Duinho/SignalWatch/internal/newsfeed"
	gormrepository "github.com/Duinho/SignalWatch/internal/repository/gorm"
	"github.com/Duinho/SignalWatch/internal/scoring"
)

func main() {
	cfgPath := os.Getenv("SW_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("SW_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)

	policies, err := monitor.NewPolicySet(cfg.Monitoring.Windows)
	if err != nil {
		logger.Fatal("policy window config invalid", zap.Error(err))
	}

	feedClient := newsfeed.NewClient(cfg.NewsFeed, cfg.Watchlist, logger)
	classifier := scoring.NewSentimentClassifier(cfg.Scoring.PositiveKeywords, cfg.Scoring.NegativeKeywords)
	engine := scoring.NewEngine(cfg.Scoring, cfg.Feedback, classifier, logger)
	consensus := feedback.NewConsensus(cfg.Feedback, store, logger)
	trust := feedback.NewTrustResolver(cfg.Feedback, store)
	feedbackSvc := feedback.NewService(cfg.Feedback, store, trust, classifier, logger)
	controller := monitor.NewController(cfg.Monitoring, policies.Names(), logger)

	scheduler := monitor.NewScheduler(cfg.Monitoring, cfg.Watchlist, cfg.Scoring.FetchLimit, monitor.SchedulerDeps{
		Fetcher:    feedClient,
		Engine:     engine,
		Consensus:  consensus,
		Policies:   policies,
		Controller: controller,
		Runs:       store,
		Alerts:     store,
		Logger:     logger,
	})

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(router)
	monitoringHandler := &handler.MonitoringHandler{
		BaseCtx:   ctx,
		Scheduler: scheduler,
		Adaptive:  controller,
		Policies:  policies,
		Runs:      store,
		Alerts:    store,
		Feed:      feedClient,
	}
	monitoringHandler.Register(router)
	feedbackHandler := &handler.FeedbackHandler{Service: feedbackSvc, Consensus: consensus}
	feedbackHandler.Register(router)
	newsHandler := &handler.NewsHandler{Fetcher: feedClient, PreviewLimit: cfg.Scoring.PreviewLimit}
	newsHandler.Register(router)

	// Load persisted keyword rules into the classifier before the first run.
	if err := feedbackSvc.RefreshRules(ctx); err != nil {
		logger.Warn("keyword rule load failed", zap.Error(err))
	}

	cronRunner := cronrunner.New(logger, ctx)
	retention := cfg.Monitoring.Retention
	_, err = cronRunner.Add("history_prune", cfg.Cron.HistoryPrune, func(ctx context.Context) {
		before := time.Now().UTC().AddDate(0, 0, -retention.Days)
		runsPruned, err := store.PruneRuns(ctx, before, retention.MaxRows)
		if err != nil {
			logger.Warn("run prune failed", zap.Error(err))
			return
		}
		alertsPruned, err := store.PruneAlerts(ctx, before, retention.MaxRows)
		if err != nil {
			logger.Warn("alert prune failed", zap.Error(err))
			return
		}
		if runsPruned > 0 || alertsPruned > 0 {
			logger.Info("history pruned",
				zap.Int64("runs", runsPruned),
				zap.Int64("alerts", alertsPruned))
		}
	})
	if err != nil {
		logger.Warn("cron register history prune failed", zap.Error(err))
	}
	_, err = cronRunner.Add("cache_sweep", cfg.Cron.CacheSweep, func(ctx context.Context) {
		if removed := feedClient.SweepCache(); removed > 0 {
			logger.Info("news cache swept", zap.Int("entries", removed))
		}
	})
	if err != nil {
		logger.Warn("cron register cache sweep failed", zap.Error(err))
	}
	if cfg.Cron.Enabled {
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	if cfg.Monitoring.Autostart {
		scheduler.Start(ctx)
	}

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	if scheduler.Running() {
		scheduler.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
