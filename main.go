package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messaging-service/internal/auth"
	"messaging-service/internal/config"
	"messaging-service/internal/db"
	"messaging-service/internal/grpcsrv"
	"messaging-service/internal/handlers"
	"messaging-service/internal/messaging"
	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
	"messaging-service/internal/presence"
	"messaging-service/internal/rabbitmq"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.ServiceName, cfg.Tracing.Endpoint)
	if err != nil {
		logger.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}

	eventPublisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
	defer eventPublisher.Close()
	observability.SetPublisher(eventPublisher)

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.AuditExchange, logger)
	defer auditPublisher.Close()
	auditEmitter := telemetry.NewAuditEmitter(auditPublisher, cfg.AMQP.AuditRouting, cfg.ServiceName, cfg.Environment, logger)

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	var observers []presence.Observer
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		mirror := presence.NewRedisMirror(rdb, cfg.Redis.Key, cfg.Redis.Channel, logger)
		if err := mirror.Reset(ctx); err != nil {
			logger.Warn("presence mirror reset failed", "error", err)
		}
		go mirror.Run(ctx)
		observers = append(observers, mirror)
	}
	tracker := presence.NewTracker(observers...)

	messageClients := ws.NewHub(ws.KindMessage, logger)
	presenceClients := ws.NewHub(ws.KindPresence, logger)
	presenceHub := messaging.NewPresenceHub(tracker, presenceClients, logger)
	conversationHub := messaging.NewConversationHub(store, messageClients, presenceHub, auditEmitter, logger)

	validator := auth.NewTokenValidator(cfg.Auth.JWTSecret)
	settings := ws.Settings{
		WriteWait:      cfg.WebSocket.WriteWait,
		PongWait:       cfg.WebSocket.PongWait,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		SendBuffer:     cfg.WebSocket.SendBuffer,
	}
	messageWS := ws.NewMessageWebSocketHandler(messageClients, conversationHub, validator, settings)
	presenceWS := ws.NewPresenceWebSocketHandler(presenceClients, presenceHub, validator, settings)

	messageHandler := handlers.NewMessageHandler(store, auditEmitter, logger)
	likeHandler := handlers.NewLikeHandler(store)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	router.GET("/hubs/message", messageWS.Handle)
	router.GET("/hubs/presence", presenceWS.Handle)

	api := router.Group("/api", middleware.AuthMiddleware(validator), middleware.LogUserActivity(store, logger))
	api.GET("/messages/thread/:username", messageHandler.GetThread)
	api.POST("/messages", messageHandler.CreateMessage)
	api.DELETE("/messages/:id", messageHandler.DeleteMessage)
	api.POST("/likes/:id", likeHandler.ToggleLike)
	api.GET("/likes/list", likeHandler.ListLikes)

	handlers.RegisterDebugRoutes(router, auditEmitter, cfg.DebugRoutes)

	grpcServer := grpcsrv.New(logger)
	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logger.Error("failed to listen for grpc", "error", err)
		os.Exit(1)
	}
	go func() {
		if err := grpcServer.Serve(grpcLis); err != nil {
			logger.Error("grpc server error", "error", err)
		}
	}()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http listening", "addr", httpServer.Addr,
			"amqp", rabbitmq.PublisherMode(eventPublisher), "amqp_noop_reason", rabbitmq.PublisherNoopReason(eventPublisher))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()
	grpcServer.SetServing(true)

	<-ctx.Done()
	logger.Info("shutting down")
	grpcServer.SetServing(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	grpcServer.Stop(shutdownCtx)
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown", "error", err)
	}
}

// openStore connects to Postgres when a DSN is configured and falls back to
// the in-memory store otherwise.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repositories.Store, func(), error) {
	if cfg.Database.DSN == "" {
		logger.Warn("no database configured, using in-memory store")
		mem := repositories.NewMemoryStore()
		for _, username := range cfg.Database.SeedUsers {
			if username = strings.TrimSpace(username); username != "" {
				mem.AddUser(username, "")
			}
		}
		return mem, func() {}, nil
	}

	database, err := db.Connect(ctx, db.Options{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN}, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := db.SeedUsers(ctx, database, cfg.Database.SeedUsers); err != nil {
		database.Close()
		return nil, nil, err
	}
	return repositories.NewSQLStore(database), func() { database.Close() }, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
