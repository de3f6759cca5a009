package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/retosmicro/authsvc/internal/auth"
	"github.com/retosmicro/authsvc/internal/config"
	"github.com/retosmicro/authsvc/internal/handler"
	"github.com/retosmicro/authsvc/internal/service"
	"github.com/retosmicro/authsvc/internal/storage"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	//PARSE ARGS
	var configPath string
	flag.StringVar(&configPath, "config", "", "")

	flag.Parse()
	if configPath == "" {
		log.Fatal("failed get config path from flags")
	}

	cfg := config.MustLoadConfig(configPath)

	//INIT LOGGER
	lgr := setupLogger(cfg.Env)
	lgr.Info("started auth service", slog.String("env", cfg.Env))

	//INIT DB
	ctx := context.Background()

	if err := storage.RunMigrations(ctx, cfg.DbURL, cfg.Schema); err != nil {
		lgr.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	st, err := storage.NewPostgresStorage(cfg.DbURL, cfg.Schema)
	if err != nil {
		lgr.Error("failed to connect to storage", slog.Any("error", err))
		os.Exit(1)
	}
	defer st.Close()

	//INIT SERVER
	tokens := auth.NewTokenManager(cfg.Auth.Secret, cfg.Auth.TokenExp)
	srvc := service.NewService(st, tokens, cfg.Auth.BcryptCost)
	h := handler.NewHandler(srvc, tokens, lgr)

	server := &http.Server{
		Addr:         cfg.Address,
		Handler:      h.InitRoutes(),
		IdleTimeout:  cfg.IdleTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lgr.Error("http server stopped", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	lgr.Info("listening", slog.String("address", cfg.Address))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		lgr.Error("shutdown error", slog.Any("error", err))
	}
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}
	return log
}
