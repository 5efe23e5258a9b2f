package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"groupchat-service/internal/blob"
	"groupchat-service/internal/config"
	"groupchat-service/internal/db"
	"groupchat-service/internal/handlers"
	"groupchat-service/internal/middleware"
	"groupchat-service/internal/observability"
	"groupchat-service/internal/rabbitmq"
	"groupchat-service/internal/repositories"
	"groupchat-service/internal/telemetry"
	"groupchat-service/internal/ws"
)

const serviceName = "groupchat-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("failed to connect to db", zap.Error(err))
	}
	defer database.Close()

	cache, err := repositories.NewMessageCache(cfg.RedisURL)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}

	blobs, serveLocalMedia, err := buildBlobStore(cfg)
	if err != nil {
		logger.Fatal("failed to build blob store", zap.Error(err))
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	defer publisher.Close()
	logger.Info("event publisher ready", zap.String("mode", rabbitmq.PublisherMode(publisher)))

	if cfg.AMQPURL != "" {
		busPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Warn("session event publisher disabled", zap.Error(err))
		} else {
			observability.SetPublisher(busPublisher)
			defer busPublisher.Close()
		}
	}

	audit := telemetry.NewAuditEmitter(publisher, "audit.groupchat", serviceName, cfg.Env, logger)

	shutdownTracing, err := observability.SetupTracing(context.Background(), serviceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal("failed to set up tracing", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	groupRepo := repositories.NewGroupRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	userRepo := repositories.NewUserRepo(database)

	hub := ws.NewHub(logger)
	presence := ws.NewPresence()
	dispatcher := ws.NewDispatcher(groupRepo, messageRepo, cache, blobs, hub, logger)

	groupHandler := handlers.NewGroupHandler(groupRepo, messageRepo, cache, audit)
	groupWS := ws.NewGroupWebSocketHandler(hub, groupRepo, userRepo, dispatcher, cfg.JWTSecret, logger)
	roomWS := ws.NewRoomWebSocketHandler(hub, presence, dispatcher, cfg.JWTSecret, logger)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret)

	router.POST("/groups", authMiddleware, groupHandler.CreateGroup)
	router.GET("/groups", authMiddleware, groupHandler.ListGroups)
	router.POST("/groups/join", authMiddleware, groupHandler.JoinGroup)
	router.GET("/groups/:group_id/members", authMiddleware, groupHandler.ListMembers)
	router.DELETE("/groups/:group_id/members/:user_id", authMiddleware, groupHandler.RemoveMember)
	router.POST("/groups/:group_id/leave", authMiddleware, groupHandler.LeaveGroup)
	router.DELETE("/groups/:group_id", authMiddleware, groupHandler.DeleteGroup)
	router.GET("/groups/:group_id/messages", authMiddleware, groupHandler.GetGroupMessages)
	router.POST("/messages/:message_id/pin", authMiddleware, groupHandler.TogglePin)

	router.GET("/ws/groups/:group_id", groupWS.Handle)
	router.GET("/ws/room", roomWS.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if serveLocalMedia {
		router.Static("/media", cfg.MediaDir)
	}

	logger.Info("starting server", zap.String("port", cfg.Port))
	if err := router.Run(":" + cfg.Port); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func buildBlobStore(cfg *config.Config) (blob.Store, bool, error) {
	if cfg.S3Bucket != "" {
		store, err := blob.NewS3Store(blob.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PublicBaseURL:   cfg.S3PublicBaseURL,
		})
		return store, false, err
	}
	store, err := blob.NewLocalStore(cfg.MediaDir)
	return store, true, err
}
