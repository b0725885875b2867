package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"residentportal/internal/app"
	"residentportal/internal/config"
	"residentportal/internal/domain"
	"residentportal/internal/http/handler"
	"residentportal/internal/http/router"
	"residentportal/internal/observability"
	"residentportal/internal/repository"
	"residentportal/internal/scheduler"
	"residentportal/internal/security"
	"residentportal/internal/service"
	"residentportal/internal/zalo"
)

func main() {
	root := &cobra.Command{
		Use:   "server",
		Short: "Resident portal authentication and session service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&domain.User{}, &domain.UserRole{}, &domain.RefreshSession{}); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	var redisClient redis.UniversalClient
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
	}

	runtime, err := observability.InitRuntime(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	if runtime.LoggerProvider != nil {
		logger = slog.New(observability.BridgeSlog(
			runtime.LoggerProvider,
			logger.Handler(),
			cfg.OTELServiceName,
		))
		slog.SetDefault(logger)
	}

	var verifyCache security.VerifyCacheStore = security.NewInMemoryVerifyCacheStore()
	var registrations service.RegistrationStore = service.NewInMemoryRegistrationStore()
	if redisClient != nil {
		verifyCache = security.NewRedisVerifyCacheStore(redisClient, "")
		registrations = service.NewRedisRegistrationStore(redisClient, "")
	}

	codec := security.NewTokenCodec(
		cfg.JWTSecret, cfg.JWTIssuer,
		cfg.AccessTokenTTL, cfg.RefreshTokenTTL,
		verifyCache, cfg.TokenVerifyCache,
	)

	users := repository.NewUserRepository(db)
	sessions := repository.NewRefreshSessionRepository(db)
	zaloClient := zalo.NewClient(cfg.ZaloAppID, cfg.ZaloAppSecret)
	authService := service.NewAuthService(users, sessions, codec, zaloClient, logger)

	cleanup := scheduler.NewCleanupScheduler(sessions, cfg.CleanupInterval, logger)
	cleanup.Start(ctx)

	h := router.New(router.Dependencies{
		AuthHandler:      handler.NewAuthHandler(authService, logger),
		UserHandler:      handler.NewUserHandler(authService, registrations, logger),
		AdminHandler:     handler.NewAdminHandler(authService, logger),
		TokenCodec:       codec,
		Logger:           logger,
		CORSOrigins:      cfg.CORSOrigins,
		AuthRateLimitRPM: cfg.AuthRateLimitRPM,
		EnableOTelHTTP:   cfg.OTELEnabled,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	stopBackground := func() {
		cleanup.Stop()
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}
	return app.New(cfg, logger, server, runtime, stopBackground).Run(ctx)
}
