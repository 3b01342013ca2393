package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"teamchat/internal/config"
	"teamchat/internal/db"
	apihttp "teamchat/internal/http"
	"teamchat/internal/repository"
	"teamchat/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL not configured")
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	messageRepo := repository.NewPgMessageRepository(pool)

	var hiddenStore service.HiddenMessageStore
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-memory hidden store", zap.Error(err))
		} else {
			hiddenStore = service.NewRedisHiddenStore(redisClient)
		}
		cancel()
	}

	jwtSvc := service.NewJWTService(cfg.JWTSecret, time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute)
	if cfg.JWTSecret == "" {
		logger.Warn("jwt secret not configured")
	}

	messageSvc := service.NewMessageService(messageRepo, hiddenStore)
	chatHandler := apihttp.NewChatHandler(logger, messageSvc)
	router := apihttp.NewRouter(logger, jwtSvc, chatHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
