package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"outreach/backend/internal/classifier"
	"outreach/backend/internal/config"
	"outreach/backend/internal/gmail"
	"outreach/backend/internal/health"
	"outreach/backend/internal/logger"
	"outreach/backend/internal/monitoring"
	"outreach/backend/internal/pool"
	"outreach/backend/internal/scheduler"
	"outreach/backend/internal/service"
	"outreach/backend/internal/sheets"
	"outreach/backend/internal/smtp"
	"outreach/backend/internal/storage"
	"outreach/backend/internal/storage/memory"
	redisstore "outreach/backend/internal/storage/redis"
	sqlstore "outreach/backend/internal/storage/sql"
	httptransport "outreach/backend/internal/transport/http"
	"outreach/backend/internal/websocket"
)

// main 启动回信追踪与外联服务：HTTP API、轮询/重试调度器、
// WebSocket 事件流。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		File:        cfg.Log.File,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting outreach server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 初始化存储层
	var store storage.Store
	if cfg.Database.Type != "" && cfg.Database.DSN != "" {
		store, err = sqlstore.NewStore(
			cfg.Database.Type,
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
		)
		if err != nil {
			panic(fmt.Sprintf("failed to initialize database storage: %v", err))
		}
		log.Info("using database storage", zap.String("type", cfg.Database.Type))
	} else {
		store = memory.NewStore()
		log.Info("using memory storage (development mode)")
	}
	defer store.Close()

	// Redis 看板缓存（可选）
	var cache *redisstore.Cache
	if cfg.Redis.Enabled {
		cache, err = redisstore.NewCache(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn("failed to connect to redis, dashboard cache disabled", zap.Error(err))
			cache = nil
		} else {
			defer cache.Close()
			log.Info("redis dashboard cache enabled", zap.String("address", cfg.Redis.Address))
		}
	}

	// 监控与健康检查
	metrics := monitoring.NewMetrics()
	healthChecker := health.NewHealthChecker(store, cache, log)

	// Google / OpenAI 接入
	google := gmail.NewClient(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURI)
	classify := classifier.New(cfg.OpenAI.APIKey, cfg.OpenAI.Model, log.Named("classifier"))
	sink := sheets.NewSink(cfg.Google.SheetID, cfg.Google.SheetRange, log.Named("sheets"))

	// WebSocket 事件流
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, log.Named("ws"))

	// 服务层
	accountService := service.NewAccountService(store, google, cfg.Google.StateSecret, log.Named("accounts"))
	clientService := service.NewClientService(store, log.Named("clients"))
	templateService := service.NewTemplateService()
	analyticsService := service.NewAnalyticsService(store, cache, log.Named("analytics"))

	// 群发发送通道：默认 Gmail API，配置了中继时走 SMTP
	var sender service.MailSender = google
	if cfg.Campaign.SMTPRelay != "" {
		sender = smtp.NewSender(cfg.Campaign.SMTPRelay, cfg.Campaign.SMTPUser, cfg.Campaign.SMTPPassword, log.Named("smtp"))
		log.Info("campaign sender using SMTP relay", zap.String("relay", cfg.Campaign.SMTPRelay))
	}
	campaignService := service.NewCampaignService(
		store, sender, accountService,
		cfg.Campaign.SendInterval, cfg.Poll.CallTimeout,
		metrics, wsHub, log.Named("campaigns"),
	)

	// 追踪引擎：账号间并发由协程池限制
	workers := pool.NewWorkerPool(runtime.NumCPU(), 64, log.Named("pool"))
	tracker := service.NewTracker(
		store, google, classify, sink, accountService,
		service.TrackerConfig{
			ListWindow:    cfg.Poll.ListWindow,
			BackoffWindow: cfg.Poll.BackoffWindow,
			MaxAttempts:   cfg.Poll.MaxAttempts,
			CallTimeout:   cfg.Poll.CallTimeout,
		},
		workers, metrics, wsHub, log.Named("tracker"),
	)

	// 定时调度
	sched, err := scheduler.New(tracker, scheduler.Specs{
		Full:     cfg.Poll.FullSpec,
		Retry:    cfg.Poll.RetrySpec,
		Business: cfg.Poll.BusinessSpec,
	}, log.Named("scheduler"))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize scheduler: %v", err))
	}

	// HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:           cfg,
		AccountService:   accountService,
		ClientService:    clientService,
		CampaignService:  campaignService,
		TemplateService:  templateService,
		AnalyticsService: analyticsService,
		Tracker:          tracker,
		HealthChecker:    healthChecker,
		Metrics:          metrics,
		WebSocketHub:     wsHub,
		Logger:           log.Named("http"),
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workers.Start(ctx)
	sched.Start()

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// WebSocket Hub goroutine
	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		sched.Stop()
		workers.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}
