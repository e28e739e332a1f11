package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	jwtpkg "driftmail/backend/internal/auth/jwt"
	"driftmail/backend/internal/blob"
	blobfs "driftmail/backend/internal/blob/filesystem"
	blobmemory "driftmail/backend/internal/blob/memory"
	blobs3 "driftmail/backend/internal/blob/s3"
	"driftmail/backend/internal/config"
	"driftmail/backend/internal/health"
	"driftmail/backend/internal/ingest"
	"driftmail/backend/internal/logger"
	"driftmail/backend/internal/monitoring"
	"driftmail/backend/internal/reconcile"
	"driftmail/backend/internal/registry"
	regmemory "driftmail/backend/internal/registry/memory"
	"driftmail/backend/internal/registry/redisreg"
	"driftmail/backend/internal/service"
	"driftmail/backend/internal/smtp"
	"driftmail/backend/internal/storage"
	storememory "driftmail/backend/internal/storage/memory"
	storeredis "driftmail/backend/internal/storage/redis"
	httptransport "driftmail/backend/internal/transport/http"
)

// main 启动同时包含 HTTP API、入站 SMTP、过期清扫与回收器的综合服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if cfg.Log.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Development, cfg.Log.File)
	defer func() { _ = log.Sync() }()

	log.Info("starting driftmail server",
		zap.Strings("domains", cfg.Mailbox.Domains),
		zap.Duration("session_ttl", cfg.Mailbox.SessionTTL),
		zap.Duration("message_ttl", cfg.Mailbox.MessageTTL),
		zap.String("store_backend", cfg.Store.Backend),
		zap.String("blob_backend", cfg.Blob.Backend),
	)

	store, reg, err := buildStoreAndRegistry(cfg, log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize storage: %v", err))
	}
	defer func() { _ = store.Close() }()

	blobs, err := buildBlobStore(cfg)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize blob storage: %v", err))
	}

	metrics := monitoring.NewMetrics()
	checker := health.NewChecker(store, reg)

	jwtManager := jwtpkg.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.Mailbox.SessionTTL)
	sessions := service.NewSessionService(store, reg, cfg.Mailbox.Domains, cfg.Mailbox.SessionTTL, log, metrics)
	messages := service.NewMessageService(store, blobs, log)
	pipeline := ingest.NewPipeline(store, blobs, cfg.Mailbox.MessageTTL, log, metrics)
	reconciler := reconcile.New(store.Removals(), blobs, reg, log, metrics)

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:         cfg,
		SessionService: sessions,
		MessageService: messages,
		JWTManager:     jwtManager,
		Metrics:        metrics,
		Health:         checker,
		Logger:         log,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	limiter := smtp.NewConnectionLimiter(cfg.SMTP.MaxConns, cfg.SMTP.MaxRate)
	smtpBackend := smtp.NewBackend(reg, pipeline, limiter, log, metrics)
	smtpServer := smtp.NewServer(smtpBackend, cfg.SMTP.BindAddr, cfg.SMTP.Hostname, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	group.Go(func() error {
		if err := smtpServer.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("SMTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	group.Go(func() error {
		log.Info("starting expiry janitor", zap.Duration("interval", cfg.Store.SweepInterval))
		if err := storage.RunJanitor(groupCtx, store, cfg.Store.SweepInterval, log, metrics); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		log.Info("starting expiry reconciler")
		if err := reconciler.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// buildStoreAndRegistry 按配置装配记录存储与收件人集合。
// redis 后端下两者共享同一个客户端连接。
func buildStoreAndRegistry(cfg *config.Config, log *zap.Logger) (storage.Store, registry.Registry, error) {
	switch cfg.Store.Backend {
	case "redis":
		rdb := goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Address,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
			MinIdleConns: 2,
		})

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}

		log.Info("connected to Redis",
			zap.String("address", cfg.Redis.Address),
			zap.Int("db", cfg.Redis.DB),
		)
		return storeredis.NewWithClient(rdb, log), redisreg.New(rdb), nil

	default:
		log.Info("using memory storage (development mode)")
		return storememory.NewStore(), regmemory.NewRegistry(), nil
	}
}

// buildBlobStore 按配置装配正文对象存储。
func buildBlobStore(cfg *config.Config) (blob.Store, error) {
	switch cfg.Blob.Backend {
	case "filesystem":
		return blobfs.NewStore(cfg.Blob.Dir)
	case "s3":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return blobs3.New(ctx, blobs3.Config{
			Region:    cfg.Blob.Region,
			Bucket:    cfg.Blob.Bucket,
			Endpoint:  cfg.Blob.Endpoint,
			AccessKey: cfg.Blob.AccessKey,
			SecretKey: cfg.Blob.SecretKey,
		})
	default:
		return blobmemory.NewStore(), nil
	}
}
