package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/gestao-docs-api/api/swagger"
	"github.com/noah-isme/gestao-docs-api/internal/handler"
	internalmiddleware "github.com/noah-isme/gestao-docs-api/internal/middleware"
	"github.com/noah-isme/gestao-docs-api/internal/models"
	"github.com/noah-isme/gestao-docs-api/internal/repository"
	"github.com/noah-isme/gestao-docs-api/internal/service"
	"github.com/noah-isme/gestao-docs-api/pkg/cache"
	"github.com/noah-isme/gestao-docs-api/pkg/config"
	"github.com/noah-isme/gestao-docs-api/pkg/database"
	"github.com/noah-isme/gestao-docs-api/pkg/jobs"
	"github.com/noah-isme/gestao-docs-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/gestao-docs-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/gestao-docs-api/pkg/middleware/requestid"
	"github.com/noah-isme/gestao-docs-api/pkg/realtime"
	"github.com/noah-isme/gestao-docs-api/pkg/storage"
)

// @title Gestão Docs API
// @version 1.0.0
// @description Protocolled documents, realtime sector chat and multi-stage bidding processes.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.AssetCache.Enabled || cfg.Realtime.PresenceDriver == config.DriverRedis {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			if cfg.Realtime.PresenceDriver == config.DriverRedis {
				logr.Fatal("failed to connect redis", zap.Error(err))
			}
			logr.Warn("redis unavailable, asset cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
		}
	}

	metricsSvc := service.NewMetricsService()

	broker, err := newBroker(cfg.Realtime, logr)
	if err != nil {
		logr.Fatal("failed to init realtime broker", zap.Error(err))
	}
	defer broker.Close()

	if _, err := broker.Subscribe(service.MessagesTable, func(evt realtime.Event) {
		metricsSvc.RecordRealtimeEvent(evt.Table, string(evt.Type))
	}); err != nil {
		logr.Warn("realtime metrics subscription failed", zap.Error(err))
	}

	presence, err := newPresence(cfg.Realtime, redisClient, logr)
	if err != nil {
		logr.Fatal("failed to init presence", zap.Error(err))
	}
	defer presence.Close()

	blobs, err := newBlobStore(cfg.Storage)
	if err != nil {
		logr.Fatal("failed to init storage", zap.Error(err))
	}

	validate := validator.New()

	counterRepo := repository.NewCounterRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	biddingRepo := repository.NewBiddingRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	if cfg.Realtime.Relay {
		pool, err := database.NewListenerPool(ctx, cfg.Database)
		if err != nil {
			logr.Fatal("failed to open listener pool", zap.Error(err))
		}
		defer pool.Close()
		listener := realtime.NewPGListener(pool, cfg.Realtime.NotifyChannel, broker, logger.Component(logr, "pg_listener")).
			Hydrate(service.MessagesTable, service.MessageRowLoader(messageRepo))
		go func() {
			_ = listener.Run(ctx)
		}()
	}

	authSvc := service.NewAuthService(logger.Component(logr, "auth"), service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
	})
	counterSvc := service.NewCounterService(counterRepo, metricsSvc, logger.Component(logr, "counter"))
	coordinator := service.NewProtocolCoordinator(counterSvc, cfg.Protocols.MaxAttempts, metricsSvc, logger.Component(logr, "protocol"))
	documentSvc := service.NewDocumentService(documentRepo, counterSvc, coordinator, auditRepo, validate, logger.Component(logr, "documents"))

	chatSender := service.NewChatSender(messageRepo, metricsSvc, logger.Component(logr, "chat_sender"))
	sendQueue := jobs.NewQueue(service.JobTypeChatSend, chatSender.Handle, jobs.QueueConfig{
		Workers:    cfg.Chat.SendWorkers,
		BufferSize: 256,
		MaxRetries: cfg.Chat.SendRetries,
		RetryDelay: cfg.Chat.SendRetryDelay,
		OnFailure:  chatSender.Fail,
		Logger:     logger.Component(logr, "chat_queue"),
	})
	sendQueue.Start(ctx)
	defer sendQueue.Stop()

	chatSvc := service.NewChatService(messageRepo, broker, presence, sendQueue, auditRepo, validate, service.ChatSessionConfig{
		HistoryLimit:       cfg.Chat.HistoryLimit,
		UnreadPollInterval: cfg.Chat.UnreadPollInterval,
	}, metricsSvc, logger.Component(logr, "chat"))

	attachmentSvc := service.NewAttachmentService(blobs, service.AttachmentConfig{
		MaxBytes:     cfg.Storage.MaxAttachmentBytes,
		AllowedMIMEs: cfg.Storage.AllowedMIMEs,
	}, auditRepo, logger.Component(logr, "attachments"))

	var assetCache *service.AssetCacheService
	if redisClient != nil && cfg.AssetCache.Enabled {
		cacheRepo := repository.NewCacheRepository(redisClient, "assets", logger.Component(logr, "cache"))
		assetCache = service.NewAssetCacheService(cacheRepo, metricsSvc, cfg.AssetCache.TTL, true, logger.Component(logr, "asset_cache"))
	}

	biddingSvc := service.NewBiddingService(biddingRepo, coordinator, auditRepo, validate, logger.Component(logr, "biddings"))
	exportSvc := service.NewBiddingExportService(biddingSvc, blobs, nil, assetCache, logger.Component(logr, "bidding_export"))

	metricsHandler := handler.NewMetricsHandler(metricsSvc, map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
		"redis": func(ctx context.Context) error {
			if redisClient == nil {
				return nil
			}
			return redisClient.Ping(ctx).Err()
		},
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.WithResponseMeta())

	attachmentHandler := handler.NewAttachmentHandler(attachmentSvc)
	api.GET("/files/:token", attachmentHandler.Download)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(authSvc))

	registerRoutes(secured, routes{
		cfg:         cfg,
		audit:       auditRepo,
		metrics:     metricsHandler,
		counters:    handler.NewCounterHandler(counterSvc),
		documents:   handler.NewDocumentHandler(documentSvc),
		chat:        handler.NewChatHandler(chatSvc),
		chatSocket:  handler.NewChatSocketHandler(chatSvc, cfg.CORS.AllowedOrigins, logger.Component(logr, "chat_socket")),
		attachments: attachmentHandler,
		biddings:    handler.NewBiddingHandler(biddingSvc, exportSvc),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}

type routes struct {
	cfg         *config.Config
	audit       *repository.AuditRepository
	metrics     *handler.MetricsHandler
	counters    *handler.CounterHandler
	documents   *handler.DocumentHandler
	chat        *handler.ChatHandler
	chatSocket  *handler.ChatSocketHandler
	attachments *handler.AttachmentHandler
	biddings    *handler.BiddingHandler
}

func registerRoutes(g *gin.RouterGroup, h routes) {
	managers := internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleManager)

	g.GET("/metrics/summary", managers, h.metrics.Snapshot)

	counters := g.Group("/counters/:category/:year")
	counters.GET("/peek", h.counters.Peek)
	counters.POST("/increment", managers,
		internalmiddleware.Audit(h.audit, models.AuditActionCounterReserve, "sequential_counters", "category", "year"),
		h.counters.Increment)

	documents := g.Group("/documents")
	documents.POST("", h.documents.Create)
	documents.GET("", h.documents.List)
	documents.GET("/preview", h.documents.Preview)
	documents.GET("/register.csv", h.documents.Register)
	documents.GET("/:id", h.documents.Get)

	chat := g.Group("/chat")
	chat.GET("/messages", h.chat.History)
	chat.POST("/messages", h.chat.Send)
	chat.DELETE("/messages/:id", h.chat.Delete)
	chat.GET("/unread", h.chat.Unread)
	chat.GET("/ws", h.chatSocket.Serve)

	g.POST("/attachments", h.attachments.Upload)

	if !h.cfg.Biddings.Enabled {
		return
	}
	biddings := g.Group("/biddings")
	biddings.POST("", h.biddings.Create)
	biddings.GET("", h.biddings.List)
	biddings.GET("/:id", h.biddings.Get)
	biddings.PUT("/:id/body", h.biddings.UpdateBody)
	biddings.POST("/:id/signatures", h.biddings.AddSignature)
	biddings.POST("/:id/advance", h.biddings.Advance)
	biddings.GET("/:id/stages/:index", h.biddings.ViewStage)
	biddings.PATCH("/:id/status", managers, h.biddings.UpdateStatus)
	biddings.POST("/:id/export", h.biddings.Export)
}

func newBroker(cfg config.RealtimeConfig, logr *zap.Logger) (realtime.Broker, error) {
	switch cfg.Driver {
	case config.DriverNATS:
		return realtime.NewNATSBroker(realtime.NATSConfig{
			URL:           cfg.NATSURL,
			Name:          cfg.NATSName,
			SubjectPrefix: cfg.SubjectPrefix,
		}, logger.Component(logr, "nats"))
	case config.DriverMemory, "":
		return realtime.NewMemoryBroker(), nil
	default:
		return nil, fmt.Errorf("unknown realtime driver %q", cfg.Driver)
	}
}

func newPresence(cfg config.RealtimeConfig, client *redis.Client, logr *zap.Logger) (realtime.Presence, error) {
	switch cfg.PresenceDriver {
	case config.DriverRedis:
		return realtime.NewRedisPresence(client, cfg.PresenceChannel, logger.Component(logr, "presence"),
			realtime.WithPresenceTTL(cfg.PresenceTTL)), nil
	case config.DriverMemory, "":
		return realtime.NewMemoryPresence(), nil
	default:
		return nil, fmt.Errorf("unknown presence driver %q", cfg.PresenceDriver)
	}
}

func newBlobStore(cfg config.StorageConfig) (*storage.BlobStore, error) {
	attachments, err := storage.NewLocalStorage(cfg.AttachmentsDir)
	if err != nil {
		return nil, fmt.Errorf("attachments storage: %w", err)
	}
	exports, err := storage.NewLocalStorage(cfg.ExportsDir)
	if err != nil {
		return nil, fmt.Errorf("exports storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.SignedURLSecret, cfg.SignedURLTTL)
	return storage.NewBlobStore(signer, cfg.PublicBaseURL).
		Mount(service.BucketAttachments, attachments).
		Mount(service.BucketExports, exports), nil
}
