package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Saurav-Nepal/sekuwa-kerner/internal/cache"
	"github.com/Saurav-Nepal/sekuwa-kerner/internal/checkout"
	"github.com/Saurav-Nepal/sekuwa-kerner/internal/config"
	"github.com/Saurav-Nepal/sekuwa-kerner/internal/handlers"
	"github.com/Saurav-Nepal/sekuwa-kerner/internal/models"
	"github.com/Saurav-Nepal/sekuwa-kerner/internal/store"
	"github.com/Saurav-Nepal/sekuwa-kerner/web"
	"github.com/gorilla/csrf"
	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Using TextHandler for console readability; for production JSONHandler might be preferred.
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Init DB
	db, err := store.NewStore(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		slog.Error("Failed to create upload dir", "dir", cfg.UploadDir, "error", err)
		os.Exit(1)
	}

	// 3. Session Setup
	sessionStore := sessions.NewCookieStore(cfg.SessionKey)
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.Secure = cfg.CookieSecure
	sessionStore.Options.SameSite = http.SameSiteLaxMode
	sessionStore.Options.Path = "/"
	sessionStore.Options.MaxAge = int(cfg.StateTTL.Seconds())
	if cfg.CookieDomain != "" {
		sessionStore.Options.Domain = cfg.CookieDomain
	}

	states, closeStates, err := newStateCache(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize state cache", "backend", cfg.StateBackend, "error", err)
		os.Exit(1)
	}
	defer closeStates()

	// 4. Init Templates
	templates := handlers.NewTemplateCache()
	if err := templates.Load(web.Templates, "templates"); err != nil {
		slog.Error("Failed to load templates", "error", err)
		os.Exit(1)
	}

	// 5. Checkout pipeline
	pricing := checkout.Pricing{DeliveryFee: cfg.DeliveryFee, FreeThreshold: cfg.FreeDeliveryThreshold}
	selector := checkout.NewSelector(map[models.PaymentMethod]checkout.Processor{
		models.PaymentCashOnDelivery: checkout.CashProcessor{},
		models.PaymentESewa: checkout.NewBreakerProcessor(checkout.SimulatedWallet{},
			checkout.BreakerSettings{Name: string(models.PaymentESewa)}, logger),
		models.PaymentKhalti: checkout.NewBreakerProcessor(checkout.SimulatedWallet{},
			checkout.BreakerSettings{Name: string(models.PaymentKhalti)}, logger),
	})
	committer := checkout.NewCommitter(db, pricing, logger)

	base := &handlers.Base{
		Sessions:  sessionStore,
		States:    states,
		Templates: templates,
	}
	router := handlers.NewRouter(base, handlers.Options{
		Store:        db,
		Pricing:      pricing,
		Selector:     selector,
		Committer:    committer,
		OrderLimiter: handlers.NewRateLimiter(ctx, cfg.OrderRateWindow),
		UploadDir:    cfg.UploadDir,
		Static:       web.Static(),
	})

	// 6. Middleware Setup
	CSRF := csrf.Protect(
		cfg.CSRFKey,
		csrf.Secure(cfg.CookieSecure),
		csrf.Path("/"),
		// Fix for "Forbidden - origin invalid": Trust local development origins
		csrf.TrustedOrigins([]string{"localhost:" + cfg.Port, "127.0.0.1:" + cfg.Port, "localhost", "127.0.0.1"}),
	)

	// 7. Start Server with Graceful Shutdown
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           CSRF(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Server starting", "port", cfg.Port, "state_backend", cfg.StateBackend)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to listen and serve", "error", err)
			os.Exit(1)
		}
	}()

	// Block until a signal is received
	<-ctx.Done()

	slog.Info("Shutting down server gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exited gracefully.")
}

// newStateCache returns the configured session state backend and a function
// releasing it.
func newStateCache(ctx context.Context, cfg *config.Config) (cache.StateCache, func(), error) {
	if cfg.StateBackend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, nil, err
		}
		slog.Info("Using Redis for session state", "addr", cfg.RedisAddr)
		return cache.NewRedisCache(client, cfg.StateTTL), func() { client.Close() }, nil
	}

	mem := cache.NewMemoryCache(cfg.StateTTL)
	go mem.Sweep(ctx, time.Minute)
	return mem, func() {}, nil
}
