package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"prepmate/internal/aiclient"
	"prepmate/internal/app"
	"prepmate/internal/config"
	"prepmate/internal/ratelimit"
	"prepmate/internal/server"
	"prepmate/internal/store"
	"prepmate/internal/util"
)

func main() {
	util.InitLogger(os.Getenv("LOG_LEVEL"))

	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		slog.Error("config load failed", "error", err.Error())
		os.Exit(1)
	}

	var st store.Store
	if cfg.DatabaseURL != "" {
		gs, err := store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			slog.Error("database init failed", "error", err.Error())
			os.Exit(1)
		}
		st = gs
	} else {
		slog.Warn("no DATABASE_URL configured, using in-memory store")
		st = store.NewMemoryStore()
	}

	sessions := store.NewJWTSessionStore(cfg.JWTSecret, cfg.SessionTTL)
	application := app.New(app.Config{
		Store:    st,
		Sessions: sessions,
		AI:       aiclient.New(cfg.AIServiceURL),
	})

	opts := server.Options{
		SessionTTL:   cfg.SessionTTL,
		CookieSecure: cfg.CookieSecure,
		CORSOrigin:   cfg.CORSOrigin,
		MaxBodyBytes: 2 * cfg.MaxUploadBytes,
	}
	if cfg.RedisAddr != "" {
		signupLimiter, err := ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "prepmate:ratelimit:signup",
			cfg.SignupLimit, cfg.SignupWindow)
		if err != nil {
			slog.Error("rate limiter init failed", "error", err.Error())
			os.Exit(1)
		}
		loginLimiter, err := ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "prepmate:ratelimit:login",
			cfg.LoginLimit, cfg.LoginWindow)
		if err != nil {
			slog.Error("rate limiter init failed", "error", err.Error())
			os.Exit(1)
		}
		opts.SignupLimiter = signupLimiter
		opts.LoginLimiter = loginLimiter
	} else {
		slog.Warn("no REDIS_ADDR configured, credential rate limiting disabled")
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.New(application, opts).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err.Error())
			os.Exit(1)
		}
	case sig := <-stop:
		slog.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("shutdown failed", "error", err.Error())
			os.Exit(1)
		}
	}
}
