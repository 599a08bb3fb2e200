package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/launchforge/sale-engine/internal/api"
	"github.com/launchforge/sale-engine/internal/config"
	"github.com/launchforge/sale-engine/internal/eligibility"
	"github.com/launchforge/sale-engine/internal/exposure"
	"github.com/launchforge/sale-engine/internal/metrics"
	"github.com/launchforge/sale-engine/internal/registry"
	"github.com/launchforge/sale-engine/internal/store"
	"github.com/launchforge/sale-engine/internal/transfer"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Getenv("SALEENGINE_CONFIG"))
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config invalid", "err", err)
		os.Exit(1)
	}

	var cleanup []func()
	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Redis client (cache + eligibility, optional) ---
	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			slog.Error("invalid redis url", "err", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
	}

	// --- Initialize store ---
	var st store.Store
	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.Database.URL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if rdb != nil {
			st = store.NewCachedStore(st, rdb, time.Duration(cfg.Redis.CacheTTLSec)*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("database url not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	// --- Eligibility gate ---
	var gate eligibility.Gate
	switch cfg.Eligibility.Mode {
	case "redis":
		gate = eligibility.NewRedisGate(rdb, cfg.Eligibility.RedisKey)
		slog.Info("redis eligibility gate enabled", "key", cfg.Eligibility.RedisKey)
	default:
		gate = eligibility.NewStaticGate(cfg.Eligibility.Allowlist...)
		slog.Info("static eligibility gate enabled", "participants", len(cfg.Eligibility.Allowlist))
	}

	// --- Value transfer ---
	// In-memory account book; swap for a settlement client in production.
	book := transfer.NewBook()

	// --- WebSocket event hub ---
	hub := api.NewHub()
	go hub.Run()

	// --- Registry + service ---
	hardCapFloor, _ := cfg.ParseHardCapFloor()
	maxDuration, _ := cfg.ParseMaxSaleDuration()
	reg := registry.New(registry.Config{
		HardCapFloor:    hardCapFloor,
		MaxSaleDuration: maxDuration,
		FeePercent:      cfg.Registry.FeePercent,
		FeeRecipient:    cfg.Registry.FeeRecipient,
	}, gate, book, hub)

	// --- Platform exposure limits (optional) ---
	var limits *exposure.Limiter
	maxPerPool, maxPerOperator, _ := cfg.ParseExposureLimits()
	if maxPerPool.IsPositive() || maxPerOperator.IsPositive() {
		limits = exposure.NewLimiter(maxPerPool, maxPerOperator)
		slog.Info("exposure limits enabled",
			"max_per_pool", maxPerPool.String(),
			"max_per_operator", maxPerOperator.String(),
		)
	}

	svc := api.NewService(reg, st, limits)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"sale-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time sale events.
		r.Get("/ws", hub.HandleWS)

		// Pool management.
		r.Get("/pools", svc.ListPools)
		r.Post("/pools", svc.CreatePool)
		r.Get("/pools/{poolID}", svc.GetPool)

		// Sale lifecycle.
		r.Post("/pools/{poolID}/contributions", svc.Contribute)
		r.Get("/pools/{poolID}/contributions", svc.ListPoolContributions)
		r.Post("/pools/{poolID}/finalize", svc.Finalize)
		r.Post("/pools/{poolID}/cancel", svc.Cancel)
		r.Post("/pools/{poolID}/withdraw", svc.Withdraw)

		// Refunds and vesting.
		r.Post("/pools/{poolID}/refunds", svc.Refund)
		r.Post("/pools/{poolID}/claims", svc.Claim)
		r.Get("/pools/{poolID}/vesting/{participant}", svc.GetVesting)
		r.Get("/pools/{poolID}/payouts", svc.ListPoolPayouts)

		// Participant queries.
		r.Get("/participants/{participant}/contributions", svc.ListParticipantContributions)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("sale-engine listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down sale-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("sale-engine stopped")
}
