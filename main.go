package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"task-collab/api"
	"task-collab/cache"
	"task-collab/common"
	"task-collab/config"
	"task-collab/middleware"
	"task-collab/notify"
	"task-collab/service"
	"task-collab/storage/sqlite"
	handler "task-collab/system"
	"task-collab/ws"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}
	logger := InitLogger(cfg.Log)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.Open(cfg.Database.Driver, cfg.Database.DSN, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	var (
		taskCache *cache.Cache
		limiter   *middleware.RateLimiter
	)
	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		taskCache = cache.New(rdb, cfg.Redis.TaskTTL, logger)
		limiter = middleware.NewRateLimiter(rdb, cfg.RateLimit.Limit, cfg.RateLimit.Window, logger)
		logger.Info("redis enabled", zap.String("addr", cfg.Redis.Addr))
	}

	hub := ws.NewHub(logger)
	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		hub.Run(hubCtx)
		close(hubDone)
	}()

	//  Worker pool delivering pushes to the hub
	pool := notify.NewWorkerPool(hub, cfg.Realtime.Workers, cfg.Realtime.QueueSize, logger)
	pool.Start(context.Background())
	dispatcher := notify.NewDispatcher(pool, cfg.Realtime.TaskEventScope, logger)

	tokens := common.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL)
	h := handler.NewHandler(
		service.NewTaskService(store, dispatcher, taskCache, logger),
		service.NewNotificationService(store, logger),
		service.NewAccountService(store, tokens, logger),
		limiter,
		store,
		handler.CookieOptions{Name: cfg.Auth.CookieName, Secure: cfg.Auth.CookieSecure, TTL: cfg.Auth.TokenTTL},
		logger,
	)
	realtime := ws.NewHandler(hub, tokens, ws.Options{
		CookieName:     cfg.Auth.CookieName,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		SendBuffer:     cfg.Realtime.SendBuffer,
		WriteTimeout:   cfg.Realtime.WriteTimeout,
		PingPeriod:     cfg.Realtime.PingPeriod,
	}, logger)

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: api.NewRouter(h, api.Options{
			Tokens:         tokens,
			CookieName:     cfg.Auth.CookieName,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Limiter:        limiter,
			Realtime:       realtime,
			Logger:         logger,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server is running", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	// in-flight requests have finished, so queued pushes can drain before
	// the hub closes every channel
	pool.Stop()
	stopHub()
	<-hubDone
	return err
}

func InitLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())

	cores := []zapcore.Core{zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level)}
	if cfg.File != "" {
		w := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize, // MB
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge, // days
		})
		cores = append(cores, zapcore.NewCore(encoder, w, level))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}
