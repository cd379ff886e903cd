package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"dmchat/internal/auth"
	"dmchat/internal/chatlist"
	"dmchat/internal/chatview"
	"dmchat/internal/config"
	"dmchat/internal/docstore"
	"dmchat/internal/docstore/memstore"
	"dmchat/internal/docstore/mongostore"
	"dmchat/internal/docstore/pgstore"
	"dmchat/internal/handlers"
	"dmchat/internal/logging"
	"dmchat/internal/middleware"
	"dmchat/internal/observability"
	"dmchat/internal/presence"
	"dmchat/internal/rabbitmq"
	"dmchat/internal/reconciler"
	"dmchat/internal/repositories"
	"dmchat/internal/social"
	"dmchat/internal/telemetry"
	"dmchat/internal/upload"
	"dmchat/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.ServiceEnv)
	if err != nil {
		logger.Fatalw("failed to init tracing", "error", err)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	logger.Infow("event publisher ready", "mode", rabbitmq.PublisherMode(publisher), "noop_reason", rabbitmq.PublisherNoopReason(publisher))
	audit := telemetry.NewAuditEmitter(publisher, telemetry.AuditRoutingKey, cfg.ServiceName, cfg.ServiceEnv, logger)

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalw("failed to open document store", "backend", cfg.StoreBackend, "error", err)
	}
	defer closeStore()

	userRepo := repositories.NewUserRepo(store)
	credsRepo := repositories.NewCredentialsRepo(store)
	conversationRepo := repositories.NewConversationRepo(store)
	messageRepo := repositories.NewMessageRepo(store)
	chatListRepo := repositories.NewChatListRepo(store)
	requestRepo := repositories.NewFriendRequestRepo(store)

	var cache presence.Cache
	if cfg.RedisURL != "" {
		rdb, err := presence.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warnw("redis unavailable, presence falls back to lastSeen", "error", err)
		} else {
			defer rdb.Close()
			cache = presence.NewRedisCache(rdb)
		}
	}
	tracker := presence.NewTracker(userRepo, cache, cfg.PresenceInterval, logger)

	var uploader upload.Uploader
	if cloud, err := upload.NewCloudinary(cfg.CloudinaryCloudName, cfg.CloudinaryUploadPreset, ""); err != nil {
		logger.Infow("image uploads disabled", "reason", err)
	} else {
		uploader = cloud
	}

	applier := reconciler.New(messageRepo, conversationRepo, chatListRepo, logger)
	authService := auth.NewService(userRepo, credsRepo, chatListRepo, auth.LogMailer{Log: logger}, auth.Options{
		Secret:   []byte(cfg.JWTSecret),
		TTL:      cfg.TokenTTL,
		ResetTTL: cfg.ResetTokenTTL,
	}, logger)
	socialService := social.New(userRepo, requestRepo, logger)
	listService := chatlist.NewService(userRepo, conversationRepo, chatListRepo, logger)

	hub := ws.NewHub(tracker, logger)

	authHandler := handlers.NewAuthHandler(authService, userRepo, hub, audit, logger)
	chatHandler := handlers.NewChatHandler(handlers.ChatDeps{
		Lists:         listService,
		Users:         userRepo,
		Conversations: conversationRepo,
		Messages:      messageRepo,
		Applier:       applier,
		Uploader:      uploader,
		Presence:      tracker,
		PageSize:      cfg.PageSize,
		Logger:        logger,
	})
	friendHandler := handlers.NewFriendHandler(socialService, userRepo)

	chatWS := ws.NewChatWebSocketHandler(hub, chatview.Deps{
		Conversations: conversationRepo,
		Messages:      messageRepo,
		Applier:       applier,
		Uploader:      uploader,
		PageSize:      cfg.PageSize,
		TypingExpire:  cfg.TypingExpire,
		GateWindow:    cfg.ScrollGateWindow,
	}, logger)
	listWS := ws.NewChatListWebSocketHandler(hub, listService, logger)

	if cfg.ServiceEnv != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	router.POST("/signup", authHandler.SignUp)
	router.POST("/login", authHandler.Login)
	router.POST("/password-reset", authHandler.RequestPasswordReset)
	router.POST("/password-reset/confirm", authHandler.ConfirmPasswordReset)

	authMiddleware := middleware.AuthMiddleware(authService)

	router.POST("/logout", authMiddleware, authHandler.Logout)
	router.GET("/profile", authMiddleware, authHandler.GetProfile)
	router.PUT("/profile", authMiddleware, authHandler.UpdateProfile)

	router.GET("/chat", authMiddleware, chatHandler.ListChats)
	router.POST("/chat/open", authMiddleware, chatHandler.OpenChat)
	router.GET("/chat/:conversationId", authMiddleware, chatHandler.GetChat)
	router.GET("/chat/:conversationId/messages", authMiddleware, chatHandler.GetMessages)
	router.POST("/chat/:conversationId/messages", authMiddleware, chatHandler.PostMessage)
	router.POST("/chat/:conversationId/images", authMiddleware, chatHandler.PostImage)

	router.GET("/friends/candidates", authMiddleware, friendHandler.Candidates)
	router.POST("/friends/requests", authMiddleware, friendHandler.SendRequest)
	router.GET("/notifications", authMiddleware, friendHandler.Notifications)
	router.POST("/notifications/accept", authMiddleware, friendHandler.Accept)
	router.POST("/notifications/reject", authMiddleware, friendHandler.Reject)

	router.GET("/ws/chat/:conversationId", authMiddleware, chatWS.Handle)
	router.GET("/ws/chats", authMiddleware, listWS.Handle)

	handlers.RegisterDebugRoutes(router, audit, hub, cfg.DebugRoutes)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infow("listening", "addr", srv.Addr, "store", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Infow("shutting down")
	hub.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("graceful shutdown failed", "error", err)
	}
}

// openStore connects the configured document store backend. The returned
// func releases it.
func openStore(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger) (docstore.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendMongo:
		store, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close(context.Background()) }, nil
	case config.BackendPostgres:
		db, err := pgstore.Connect(ctx, cfg.DBDSN, logger)
		if err != nil {
			return nil, nil, err
		}
		store, err := pgstore.New(db, cfg.DBDSN, logger)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, func() {
			_ = store.Close(context.Background())
			_ = db.Close()
		}, nil
	default:
		logger.Infow("using in-memory document store; data is lost on exit")
		store := memstore.New()
		return store, func() { _ = store.Close(context.Background()) }, nil
	}
}
