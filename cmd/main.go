package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/pixelstream-dev/matchmaker/internal/admin"
	"github.com/pixelstream-dev/matchmaker/internal/auth"
	"github.com/pixelstream-dev/matchmaker/internal/bus"
	"github.com/pixelstream-dev/matchmaker/internal/clock"
	"github.com/pixelstream-dev/matchmaker/internal/config"
	"github.com/pixelstream-dev/matchmaker/internal/control"
	"github.com/pixelstream-dev/matchmaker/internal/engine"
	"github.com/pixelstream-dev/matchmaker/internal/handlers"
	"github.com/pixelstream-dev/matchmaker/internal/health"
	"github.com/pixelstream-dev/matchmaker/internal/logger"
	"github.com/pixelstream-dev/matchmaker/internal/middleware"
	"github.com/pixelstream-dev/matchmaker/internal/session"
)

// drainDeadline bounds the Draining phase of shutdown.
const drainDeadline = 10 * time.Second

func main() {
	// Configuration from environment
	cfg := config.Load()

	logFile := ""
	if cfg.LogToFile {
		logFile = cfg.LogFilePath
	}
	logger.Initialize(cfg.LogLevel, cfg.LogPretty, logFile)
	log := logger.GetLogger()

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		os.Exit(1)
	}

	log.Info().Msg("Starting matchmaker...")

	// Core wiring: clock, scheduler, bus, store, engine
	clk := clock.NewReal()
	sched := clock.NewScheduler(clk)
	notifications := bus.New()
	store := session.NewStore(clk, notifications)

	engineCfg := engine.DefaultConfig()
	engineCfg.SessionTimeout = cfg.SessionTimeout
	eng := engine.New(engineCfg, clk, notifications, store)
	eng.Start(sched)

	// Health supervisor
	supervisor := health.NewSupervisor(clk, notifications)
	supervisor.RegisterCheck("engine", health.EngineCheck(eng))
	supervisor.RegisterCheck("sessions", health.SessionStoreCheck(store))

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("Invalid REDIS_URL, skipping Redis health check")
		} else {
			redisClient := redis.NewClient(opts)
			defer redisClient.Close()
			supervisor.RegisterCheck("redis", health.RedisCheck(redisClient))
			log.Info().Msg("Redis health check registered")
		}
	}
	supervisor.Start(sched, cfg.HealthCheckInterval)

	// Node control listener
	ctrl := control.NewServer(eng)
	if err := ctrl.Start(fmt.Sprintf(":%d", cfg.MatchmakerPort)); err != nil {
		log.Error().Err(err).Int("port", cfg.MatchmakerPort).Msg("Failed to bind matchmaker port")
		os.Exit(1)
	}

	jwtManager := auth.NewJWTManager(&auth.JWTConfig{SecretKey: cfg.JWTSecret})

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Client-facing HTTP + WebSocket server
	var (
		httpServer *http.Server
		wsHub      *handlers.WSHub
	)
	if cfg.EnableWebserver {
		rateLimiter := middleware.NewRateLimiter(cfg.RateLimitWindow, cfg.RateLimitMaxRequests)

		router := gin.New()
		router.Use(gin.Recovery(), middleware.RequestLogger(), rateLimiter.Middleware())

		api := handlers.NewAPI(eng, store, supervisor, clk)
		api.RegisterRoutes(router, jwtManager)

		wsHub = handlers.NewWSHub(eng, store, clk, notifications)
		go wsHub.Run()
		router.GET("/ws", wsHub.Handle)

		httpServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
			Handler: router,
		}
		go func() {
			log.Info().Int("port", cfg.HTTPPort).Bool("https", cfg.UseHTTPS).Msg("HTTP server listening")
			var err error
			if cfg.UseHTTPS {
				err = httpServer.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
			} else {
				err = httpServer.ListenAndServe()
			}
			if err != nil && err != http.ErrServerClosed {
				log.Fatal().Err(err).Msg("HTTP server failed")
			}
		}()
	} else {
		log.Info().Msg("Webserver disabled")
	}

	// Admin API server
	adminRouter := gin.New()
	adminRouter.Use(gin.Recovery(), middleware.RequestLogger())
	adminHandler := admin.NewHandler(eng, store, supervisor, ctrl, clk)
	adminHandler.RegisterRoutes(adminRouter, jwtManager)

	adminServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.AdminDashboardPort),
		Handler: adminRouter,
	}
	go func() {
		log.Info().Int("port", cfg.AdminDashboardPort).Msg("Admin server listening")
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Admin server failed")
		}
	}()

	log.Info().Msg("Matchmaker running")

	// Block until a shutdown signal arrives
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	// Draining: stop accepting input, notify clients, cancel timers, then
	// drop all state. A hard deadline bounds the whole phase.
	log.Info().Msg("Shutting down: draining...")
	ctx, cancel := context.WithTimeout(context.Background(), drainDeadline)
	defer cancel()

	failed := false
	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown failed")
			failed = true
		}
	}
	if err := adminServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Admin server shutdown failed")
		failed = true
	}

	drained := make(chan struct{})
	go func() {
		ctrl.Stop()
		if wsHub != nil {
			wsHub.Shutdown()
		}
		sched.Stop()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		log.Error().Dur("deadline", drainDeadline).Msg("Drain deadline exceeded")
		os.Exit(1)
	}
	notifications.Publish(bus.Event{Kind: bus.ServerShutdown})
	eng.Shutdown()

	if failed {
		log.Error().Msg("Shutdown completed with errors")
		os.Exit(1)
	}
	log.Info().Msg("Shutdown complete")
}
