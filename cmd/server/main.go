package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/webshop-accounts/internal/auth"
	"github.com/iliyamo/webshop-accounts/internal/config"
	"github.com/iliyamo/webshop-accounts/internal/database"
	"github.com/iliyamo/webshop-accounts/internal/handler"
	"github.com/iliyamo/webshop-accounts/internal/logging"
	"github.com/iliyamo/webshop-accounts/internal/metrics"
	"github.com/iliyamo/webshop-accounts/internal/middleware"
	"github.com/iliyamo/webshop-accounts/internal/queue"
	"github.com/iliyamo/webshop-accounts/internal/repository"
	"github.com/iliyamo/webshop-accounts/internal/router"
	"github.com/iliyamo/webshop-accounts/internal/service"
	"github.com/iliyamo/webshop-accounts/internal/worker"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()
	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	hasher, err := auth.NewHasher(cfg)
	if err != nil {
		log.Fatalf("hasher: %v", err)
	}
	tokens, err := auth.NewTokenService(cfg)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warn("redis unavailable, rate limiting disabled")
	} else {
		defer rdb.Close()
	}

	m := metrics.New()

	var events service.Publisher = service.NopPublisher{}
	if cfg.AuditEventsEnabled {
		pub := service.NewAMQPPublisher(cfg.RabbitURL, m, logger)
		defer pub.Close()
		events = pub
	}

	accounts := repository.NewAccountRepo(db)
	ephemeral := repository.NewEphemeralRepo(db)
	svc := service.NewAccountService(service.Deps{
		Accounts: accounts,
		Tokens:   ephemeral,
		Hasher:   hasher,
		Issuer:   tokens,
		Events:   events,
		Metrics:  m,
		Log:      logger,
	})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(logger)
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(echomw.BodyLimit("1M"))

	router.RegisterRoutes(e, router.Deps{
		Auth:      handler.NewAuthHandler(svc),
		Profile:   handler.NewProfileHandler(svc),
		Admin:     handler.NewAdminHandler(svc),
		Health:    handler.NewHealthHandler(db, version, logger),
		Tokens:    tokens,
		Accounts:  accounts,
		RateLimit: config.LoadRateLimitConfig(),
		Redis:     rdb,
		Metrics:   m,
		Log:       logger,
	})

	if cfg.Purge.Enabled {
		go worker.NewPurgeWorker(ephemeral, cfg.Purge, m, logger).Run(ctx)
	}
	if cfg.AuditConsumerEnabled {
		consumer := queue.NewAuditConsumer(cfg.RabbitURL, cfg.AuditLogDir, logger)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("audit consumer stopped", "err", err)
			}
		}()
	}

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
}
