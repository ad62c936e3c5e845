package main

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/winterden/secret-santa/config"
	"github.com/winterden/secret-santa/internal/handlers"
	"github.com/winterden/secret-santa/internal/logger"
	"github.com/winterden/secret-santa/internal/relay"
	"github.com/winterden/secret-santa/internal/rooms"
	"github.com/winterden/secret-santa/internal/store"
)

func main() {
	cfg := config.Load()

	logger.Init(cfg.Environment != "production")
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.NewRedis(ctx, store.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer st.Close()

	logger.Info("Redis connection established", zap.String("addr", cfg.Redis.Addr))

	r := relay.New(st)
	go r.Run(ctx)

	service := rooms.NewService(st)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	router.Use(handlers.OriginFilter(cfg.AllowedOrigins))

	h := handlers.New(service, r, cfg.JWTSecret)
	h.Register(router)

	logger.Info("starting secret-santa server", zap.String("port", cfg.Port))
	if err := router.Run(":" + cfg.Port); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
