package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"promo-kiosk-backend/internal/backend"
	"promo-kiosk-backend/internal/config"
	"promo-kiosk-backend/internal/handlers"
	"promo-kiosk-backend/internal/i18n"
	"promo-kiosk-backend/internal/logging"
	"promo-kiosk-backend/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.IsProduction())

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	redisService, err := services.NewRedisService(ctx, cfg)
	if err != nil {
		logger.Error("connect redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisService.Close(); err != nil {
			logger.Warn("close redis", "error", err)
		}
	}()

	translator, err := i18n.NewTranslator(cfg.Localization)
	if err != nil {
		logger.Error("build translator", "error", err)
		os.Exit(1)
	}

	session := services.NewSessionStore(services.InitialSession(cfg.Mbox))
	unfollow := session.Subscribe(translator.OnSession)
	defer unfollow()

	jwtService := services.NewJWTService(cfg)
	normalizer := services.NewErrorNormalizer(cfg, translator, logger)
	promoBackend := backend.NewClient(cfg, logger)
	mboxHandler := handlers.NewMboxHandler(session, logger)

	orchestrator := services.NewOrchestrator(cfg, promoBackend, mboxHandler, normalizer, redisService, jwtService, session, logger)

	controller, err := services.NewController(
		cfg,
		orchestrator,
		promoBackend,
		services.NewCascadeAnimator(cfg.Animations),
		normalizer,
		session,
		i18n.NewFormatter(translator, cfg),
		logger,
	)
	if err != nil {
		logger.Error("build controller", "error", err)
		os.Exit(1)
	}
	defer controller.Close()

	viewHub := handlers.NewViewHub(controller.View, logger)
	go viewHub.Run(ctx)
	controller.Init(viewHub)

	router := handlers.NewRouter(handlers.RouterDeps{
		Kiosk:       handlers.NewKioskHandler(controller, session, redisService, logger),
		Views:       viewHub,
		Mbox:        mboxHandler,
		Health:      handlers.NewHealthHandler(redisService, mboxHandler),
		HostAuth:    jwtService,
		Limiter:     redisService,
		Session:     session,
		PinAttempts: cfg.Security.PinAttemptsPerMinute,
		Production:  cfg.IsProduction(),
	})

	srv := &http.Server{
		Addr:    cfg.Address(),
		Handler: router,
	}

	srvErrCh := make(chan error, 1)
	go func() {
		logger.Info("kiosk server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErrCh <- err
		}
		close(srvErrCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
