// Package main provides the main entry point for the Tamamo no Mae campaign dispatch service
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/Tamamo-no-Mae/app/handlers"
	"github.com/amirphl/Tamamo-no-Mae/app/middleware"
	"github.com/amirphl/Tamamo-no-Mae/app/router"
	"github.com/amirphl/Tamamo-no-Mae/app/scheduler"
	"github.com/amirphl/Tamamo-no-Mae/app/services"
	businessflow "github.com/amirphl/Tamamo-no-Mae/business_flow"
	"github.com/amirphl/Tamamo-no-Mae/config"
	"github.com/amirphl/Tamamo-no-Mae/logging"
	"github.com/amirphl/Tamamo-no-Mae/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	logger    *zap.Logger
	stopFuncs []func()
}

func main() {
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Logging, cfg.App.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting Tamamo no Mae")

	app, err := initializeApplication(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := app.router.Start(address); err != nil {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-sigChan
	logger.Info("shutting down gracefully")

	// Background passes finish their current item before the listener goes away
	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.router.GetApp().ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("error during shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logging.NewGormLogger(logger, cfg.SlowQueryTime, gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns),
	)

	return db, nil
}

// initializeCache connects to Redis when enabled. A nil client means locks fall back to no-ops.
func initializeCache(cfg config.CacheConfig, logger *zap.Logger) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.PingTimeout)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis connection established", zap.Int("db", opt.DB))
	return rc, nil
}

// channelServices are the provider adapters the flows dispatch through
type channelServices struct {
	push   services.PushService
	email  services.EmailService
	social services.SocialPublisher
}

func initializeChannels(cfg *config.ProductionConfig, logger *zap.Logger) (channelServices, error) {
	if cfg.App.MockChannels {
		logger.Warn("mock channels enabled: nothing leaves the process")
		return channelServices{
			push:   services.NewMockPushService(),
			email:  services.NewMockEmailService(),
			social: services.NewMockSocialPublisher(),
		}, nil
	}

	push := services.NewWebPushService(services.VAPIDConfig{
		PublicKey:  cfg.Push.VAPIDPublicKey,
		PrivateKey: cfg.Push.VAPIDPrivateKey,
		Subject:    cfg.Push.VAPIDSubject,
		TTL:        time.Duration(cfg.Push.TTL) * time.Second,
		Icon:       cfg.Push.Icon,
		Badge:      cfg.Push.Badge,
	}, &http.Client{Timeout: cfg.Push.Timeout})
	if !push.Enabled() {
		logger.Warn("push channel disabled: VAPID keys are not configured")
	}

	var postmarkClient services.PostmarkSender
	if cfg.Email.Enabled() {
		postmarkClient = services.NewPostmarkClient(cfg.Email.ServerToken, cfg.Email.AccountToken)
	} else {
		logger.Warn("email channel disabled: provider credentials are not configured")
	}
	email := services.NewPostmarkEmailService(postmarkClient, services.EmailSenderConfig{
		From:          cfg.Email.FromEmail,
		ReplyTo:       cfg.Email.ReplyTo,
		MessageStream: cfg.Email.MessageStream,
		TrackOpens:    cfg.Email.TrackOpens,
	})

	var presigner services.ObjectPresigner
	if cfg.Storage.Enabled() {
		mc, err := services.NewMinioClient(services.StorageConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			Secure:    cfg.Storage.UseSSL,
			URLTTL:    cfg.Storage.PresignTTL,
		})
		if err != nil {
			return channelServices{}, err
		}
		presigner = mc
	}
	media := services.NewStorageMediaResolver(presigner, cfg.Storage.Bucket, cfg.Storage.PresignTTL)

	social := services.NewGraphSocialPublisher(services.GraphAPIConfig{
		BaseURL:           cfg.Social.GraphBaseURL,
		Version:           cfg.Social.GraphVersion,
		Timeout:           cfg.Social.Timeout,
		VideoPollInterval: cfg.Dispatch.VideoPollInterval,
		VideoPollAttempts: cfg.Dispatch.VideoPollAttempts,
	}, media, nil)

	return channelServices{push: push, email: email, social: social}, nil
}

func dispatchOptions(cfg *config.ProductionConfig) businessflow.DispatchOptions {
	return businessflow.DispatchOptions{
		BatchSize:   cfg.Dispatch.BatchSize,
		MaxAttempts: cfg.Dispatch.MaxAttempts,
		EmailDelay:  cfg.Email.SendDelay,
		LeaseTTL:    cfg.Dispatch.LeaseTTL,
		CampaignTTL: cfg.Dispatch.CampaignLockTTL,
		StudioName:  cfg.App.StudioName,
		AppURL:      cfg.App.BaseURL,
		PushIcon:    cfg.Push.Icon,
		PushBadge:   cfg.Push.Badge,
	}
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig, logger *zap.Logger) (*Application, error) {
	var stopFuncs []func()

	db, err := initializeDatabase(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache, logger)
	if err != nil {
		return nil, err
	}

	var locker businessflow.Locker = businessflow.NoopLocker{}
	if rc != nil {
		locker = businessflow.NewRedisLocker(rc, cfg.Cache.RedisPrefix)
	} else {
		logger.Warn("redis disabled: campaign and queue leases are process local")
	}

	channels, err := initializeChannels(cfg, logger)
	if err != nil {
		return nil, err
	}

	tokenService, err := services.NewTokenService(
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.UseRSAKeys,
		cfg.JWT.PrivateKey,
		cfg.JWT.PublicKey,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	unsubscribeSigner := services.NewUnsubscribeSigner(cfg.App.UnsubscribeSecret, cfg.App.APIBaseURL)

	// Repositories
	clientRepo := repository.NewClientRepository(db)
	deviceRepo := repository.NewDeviceTokenRepository(db)
	campaignRepo := repository.NewCampaignRepository(db)
	contentRepo := repository.NewCampaignContentRepository(db)
	announcementRepo := repository.NewAnnouncementRepository(db)
	queueRepo := repository.NewNotificationQueueRepository(db)
	logRepo := repository.NewNotificationLogRepository(db)
	newsletterRepo := repository.NewNewsletterCampaignRepository(db)
	emailRepo := repository.NewNewsletterEmailRepository(db)
	eventRepo := repository.NewEmailTrackingEventRepository(db)
	socialRepo := repository.NewSocialConnectionRepository(db)
	transactor := repository.NewTransactor(db)

	opts := dispatchOptions(cfg)

	// Flows
	newsletterFlow := businessflow.NewNewsletterFlow(newsletterRepo, emailRepo, channels.email, unsubscribeSigner, opts, logger)

	executionFlow := businessflow.NewCampaignExecutionFlow(businessflow.CampaignExecutionDeps{
		CampaignRepo:     campaignRepo,
		ContentRepo:      contentRepo,
		ClientRepo:       clientRepo,
		AnnouncementRepo: announcementRepo,
		QueueRepo:        queueRepo,
		NewsletterRepo:   newsletterRepo,
		SocialRepo:       socialRepo,
		Transactor:       transactor,
		Newsletter:       newsletterFlow,
		Social:           channels.social,
		Locker:           locker,
	}, opts, logger)

	queueFlow := businessflow.NewNotificationQueueFlow(
		queueRepo,
		logRepo,
		clientRepo,
		deviceRepo,
		channels.push,
		channels.email,
		locker,
		opts,
		logger,
	)

	socialOpts := opts
	socialOpts.BatchSize = cfg.Dispatch.SocialPublishBatch
	socialFlow := businessflow.NewSocialPublishFlow(contentRepo, campaignRepo, socialRepo, channels.social, socialOpts, logger)

	webhookFlow := businessflow.NewEmailWebhookFlow(emailRepo, eventRepo, newsletterRepo, transactor, logger)
	unsubscribeFlow := businessflow.NewUnsubscribeFlow(clientRepo, unsubscribeSigner, logger)
	reportFlow := businessflow.NewCampaignReportFlow(campaignRepo, contentRepo, newsletterRepo, emailRepo, logger)

	// Handlers
	routeHandlers := router.Handlers{
		Execution:    handlers.NewCampaignExecutionHandler(executionFlow, socialFlow, reportFlow, logger),
		Notification: handlers.NewNotificationHandler(queueFlow, logger),
		Webhook:      handlers.NewWebhookHandler(webhookFlow, logger),
		Unsubscribe:  handlers.NewUnsubscribeHandler(unsubscribeFlow, logger),
	}

	probes := map[string]router.HealthProbe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if rc != nil {
		probes["redis"] = func(ctx context.Context) error {
			return rc.Ping(ctx).Err()
		}
		stopFuncs = append(stopFuncs, func() { _ = rc.Close() })
	}

	authMiddleware := middleware.NewAuthMiddleware(tokenService)
	appRouter := router.NewFiberRouter(cfg, routeHandlers, authMiddleware, probes, logger)

	if cfg.Dispatch.TickerEnabled {
		sched := scheduler.NewDispatchScheduler(
			scheduler.NewDispatchJobs(cfg.Dispatch, executionFlow, queueFlow, socialFlow),
			cfg.Dispatch.TickerRunTimeout,
			logger,
		)
		// Stop the scheduler before closing redis
		stopFuncs = append([]func(){sched.Start(context.Background())}, stopFuncs...)
	}

	return &Application{
		router:    appRouter,
		config:    cfg,
		logger:    logger,
		stopFuncs: stopFuncs,
	}, nil
}
