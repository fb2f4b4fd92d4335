// Package main runs the meeting signaling server: REST, WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-meet/backend/config"
	"github.com/aura-meet/backend/internal/auth"
	"github.com/aura-meet/backend/internal/meetings"
	"github.com/aura-meet/backend/internal/middleware"
	"github.com/aura-meet/backend/internal/models"
	"github.com/aura-meet/backend/internal/presence"
	"github.com/aura-meet/backend/internal/realtime"
	"github.com/aura-meet/backend/internal/rooms"
	"github.com/aura-meet/backend/internal/session"
	"github.com/aura-meet/backend/internal/worker"
	"github.com/aura-meet/backend/pkg/database"
	"github.com/aura-meet/backend/pkg/queue"
	"github.com/aura-meet/backend/pkg/redis"
	"github.com/aura-meet/backend/pkg/response"
	"github.com/aura-meet/backend/pkg/storage"
)

// meetingStore is what the server needs from a meeting backend: the coordinator's
// write path plus the history reads.
type meetingStore interface {
	rooms.Store
	meetings.Reader
}

func main() {
	logger := newLogger(os.Getenv("LOG_LEVEL"))
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()

	var (
		pool     *pgxpool.Pool
		store    meetingStore
		userRepo auth.UserStore
	)
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		store = meetings.NewMemoryRepository()
		userRepo = auth.NewMemoryRepository()
		logger.Warn("using in-memory store; meeting history is lost on restart")
	default:
		pool, err = database.NewPostgresPool(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns), logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool, logger); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		store = meetings.NewRepository(pool)
		userRepo = auth.NewRepository(pool)
	}

	var rdb *redis.Client
	if cfg.NeedsRedis() {
		rdb, err = redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
	}

	var s3Client *storage.S3
	if cfg.Worker.ArchiveEnabled {
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ArchivesBucket:       cfg.AWS.ArchivesBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	origins := middleware.ParseOrigins(cfg.Server.CORSAllowedOrigins)

	// Rooms
	sessions := session.NewStore()
	hub := realtime.NewHub(logger)
	coord := rooms.NewCoordinator(store, sessions, hub, rooms.Config{
		WaitingTimeout:         time.Duration(cfg.Meeting.WaitingRoomTimeoutSec) * time.Second,
		OpTimeout:              time.Duration(cfg.Meeting.StoreOpTimeoutSec) * time.Second,
		DefaultMaxParticipants: cfg.Meeting.DefaultMaxParticipants,
	}, logger)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	// Presence (Redis mirror, or straight from the registry)
	var roomLister presence.Lister = presence.Local(coord)
	if cfg.Redis.PresenceEnabled {
		mirror := presence.NewMirror(rdb.Client, cfg.Redis.PresenceKey, logger)
		if err := mirror.Reset(ctx); err != nil {
			logger.Warn("presence reset", zap.Error(err))
		}
		go mirror.Run(bgCtx)
		coord.SetOccupancyHandler(mirror.OnOccupancy)
		roomLister = mirror
	}

	// Meeting archives
	meetingHandler := meetings.NewHandler(store, logger)
	if cfg.Worker.ArchiveEnabled {
		jobQueue := queue.NewQueue(rdb.Client, logger)
		coord.SetMeetingEndedHandler(archiveOnEnd(jobQueue, logger))
		if s3Client != nil {
			meetingHandler.SetArchiveLinker(s3Client)
			if cfg.Worker.InProcess {
				processor := worker.NewArchiveProcessor(store, s3Client, jobQueue, logger)
				go processor.Run(bgCtx)
				logger.Info("archive worker started")
			}
		}
	}

	authHandler := auth.NewHandler(userRepo, jwtService, logger)
	presenceHandler := presence.NewHandler(roomLister, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(origins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) {
		response.OK(c, gin.H{"status": "ok", "connections": hub.Count()})
	})
	router.GET("/ice-servers", realtime.ICEServersHandler(realtime.ICEConfig{
		URLs:       cfg.WebRTC.ICEUrls,
		Username:   cfg.WebRTC.TURNUsername,
		Credential: cfg.WebRTC.TURNCredential,
	}))

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.RequireIdentity(jwtService, logger))
	{
		meetingHandler.Register(api)
		api.GET("/rooms", presenceHandler.List)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, coord, jwtService, realtime.Options{
		AuthRequired: cfg.JWT.AuthRequired,
		AllowOrigin:  origins.Allows,
	}, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	bgCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// archiveOnEnd enqueues recorded meetings for archiving. The hook runs inside a
// room's critical section, so the Redis round trip happens off it.
func archiveOnEnd(q *queue.Queue, logger *zap.Logger) rooms.MeetingEndedHandler {
	return func(m models.Meeting) {
		if !m.RecordMeeting {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := q.EnqueueMeetingArchive(ctx, queue.MeetingArchivePayload{MeetingID: m.ID, RoomID: m.RoomID}); err != nil {
				logger.Error("enqueue meeting archive", zap.String("meeting_id", m.ID.String()), zap.Error(err))
			}
		}()
	}
}

func newLogger(level string) *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zapcore.ParseLevel(level); err == nil && level != "" {
		config.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, _ := config.Build()
	return logger
}
