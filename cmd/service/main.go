package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/leetfollow/leetfollow-service/internal/auth"
	"github.com/leetfollow/leetfollow-service/internal/cache"
	"github.com/leetfollow/leetfollow-service/internal/circuitbreaker"
	"github.com/leetfollow/leetfollow-service/internal/client"
	"github.com/leetfollow/leetfollow-service/internal/config"
	httphandler "github.com/leetfollow/leetfollow-service/internal/http"
	"github.com/leetfollow/leetfollow-service/internal/lifecycle"
	"github.com/leetfollow/leetfollow-service/internal/observability"
	"github.com/leetfollow/leetfollow-service/internal/service"
	"github.com/leetfollow/leetfollow-service/internal/store"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	statsClient, err := client.NewLeetCodeClient(cfg.LeetCodeAPIURL, cfg.LeetCodeAPITimeout)
	if err != nil {
		logger.Fatal("leetcode client", zap.Error(err))
	}

	cb := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		Cooldown:         cfg.BreakerCooldown,
		Component:        "leetcode_api",
		OnStateChange: func(from, to circuitbreaker.State) {
			observability.RecordCircuitBreakerTransition("leetcode_api", from.String(), to.String())
			observability.SetCircuitBreakerStateGauge("leetcode_api", int(to))
		},
	})
	statsClient.SetCircuitBreaker(cb)
	observability.SetCircuitBreakerStateGauge("leetcode_api", 0)
	logger.Info("circuit breaker enabled",
		zap.Int("failure_threshold", cfg.BreakerFailureThreshold),
		zap.Duration("cooldown", cfg.BreakerCooldown))

	var statsCache cache.StatsCache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		statsCache = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		statsCache = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	}

	ctx := context.Background()
	db, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}

	tokens, err := auth.NewManager(cfg.JWTSecret, cfg.AccessTokenTTL)
	if err != nil {
		logger.Fatal("auth", zap.Error(err))
	}

	statsService := service.NewStatsService(statsClient, statsCache, logger, service.Options{
		MaxAge:          cfg.StatsMaxAge,
		Workers:         cfg.FanOutWorkers,
		Coalesce:        cfg.Coalesce,
		CoalesceTimeout: cfg.CoalesceTimeout,
	})

	if cfg.WarmCache && len(cfg.WarmUsernames) > 0 {
		warmer := cache.NewCacheWarmer(statsService, logger)
		warmCtx, warmCancel := context.WithTimeout(ctx, 30*time.Second)
		if err := warmer.Warm(warmCtx, cfg.WarmUsernames); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
		if cfg.WarmInterval > 0 {
			go func() {
				if err := warmer.WarmPeriodic(context.Background(), cfg.WarmUsernames, cfg.WarmInterval); err != nil && err != context.Canceled {
					logger.Error("periodic cache warming stopped", zap.Error(err))
				}
			}()
		}
	}

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		DBPing:           db.Ping,
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(db, statsService, tokens, healthConfig, logger,
		cfg.UsernameMinLen, cfg.UsernameMaxLen)

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	api := router.PathPrefix("/api").Subrouter()
	api.Use(httphandler.RateLimitMiddleware(limiter))
	api.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	api.HandleFunc("/register", handler.Register).Methods("POST")
	api.HandleFunc("/login", handler.Login).Methods("POST")

	authed := api.NewRoute().Subrouter()
	authed.Use(httphandler.AuthMiddleware(tokens))
	authed.HandleFunc("/profile", handler.Profile).Methods("GET")
	authed.HandleFunc("/following", handler.Following).Methods("GET")
	authed.HandleFunc("/update_leetcode", handler.UpdateLeetCode).Methods("POST")
	authed.HandleFunc("/follow_leetcode", handler.FollowLeetCode).Methods("POST")
	authed.HandleFunc("/unfollow_leetcode", handler.UnfollowLeetCode).Methods("POST")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-sigCtx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	observability.RecordShutdownInFlight(inFlight)
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, 100*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed",
			zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	db.Close()
	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
