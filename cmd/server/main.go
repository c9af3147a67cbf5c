package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/dkotenko/slotswapper/internal/app"
	"github.com/dkotenko/slotswapper/internal/config"
	"github.com/dkotenko/slotswapper/internal/controller"
	"github.com/dkotenko/slotswapper/internal/notify"
	"github.com/dkotenko/slotswapper/internal/repository"
	"github.com/dkotenko/slotswapper/internal/service"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	logger.Info("Starting SlotSwapper server",
		zap.String("environment", cfg.Environment),
		zap.String("addr", cfg.HTTPAddr),
	)

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal("Failed to create connection pool", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	migrator, err := app.NewMigrator(pool, cfg.MigrationsDir, logger)
	if err != nil {
		logger.Fatal("Failed to create migrator", zap.Error(err))
	}
	if err := migrator.Run(ctx); err != nil {
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	}
	migrator.Close()

	userRepo := repository.NewUserRepository(pool)
	eventRepo := repository.NewEventRepository(pool)
	swapRepo := repository.NewSwapRequestRepository(pool)

	hub := notify.NewHub(logger)

	authService := service.NewAuthService(userRepo, cfg.JWTSecret, logger)
	eventService := service.NewEventService(pool, eventRepo, logger)
	swapService := service.NewSwapService(pool, eventRepo, swapRepo, hub, logger)

	router := controller.NewRouter(authService, eventService, swapService, hub, cfg.AllowedOrigins, logger)

	server := app.NewServer(cfg.HTTPAddr, router.Setup(), logger)
	server.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	if err := server.Stop(ctx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	logger.Info("Server stopped")
}
