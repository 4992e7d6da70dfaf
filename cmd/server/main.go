package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"raven-chat/internal/api"
	"raven-chat/internal/auth"
	"raven-chat/internal/config"
	"raven-chat/internal/db"
	"raven-chat/internal/directory"
	"raven-chat/internal/fanout"
	"raven-chat/internal/gateway"
	"raven-chat/internal/logging"
	"raven-chat/internal/messagelog"
	"raven-chat/internal/middleware"
	"raven-chat/internal/repository"
	"raven-chat/internal/rooms"
	"raven-chat/internal/session"
	"raven-chat/internal/tasks"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(logging.New(cfg.LogFormat, cfg.LogLevel))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err == nil {
		err = db.EnsureSchema(ctx, pool)
	}
	cancel()
	if err != nil {
		return err
	}
	defer pool.Close()

	roomStore := repository.NewRoomsRepo(pool)
	connStore := repository.NewConnectionsRepo(pool)

	dir := directory.New(connStore)
	history := messagelog.New(repository.NewMessagesRepo(pool), messagelog.Options{
		MaxAttempts:  cfg.AppendMaxAttempts,
		DefaultLimit: cfg.HistoryLimit,
	})
	authorizer := auth.NewAuthorizer(cfg.AuthKey, roomStore, cfg.RoomNamespace)

	gw := gateway.New(authorizer, gateway.DefaultOptions())
	dispatcher := fanout.New(dir, gw, fanout.Options{
		Concurrency: cfg.FanoutConcurrency,
		Timeout:     cfg.DeliveryTimeout,
	})
	handler := session.NewHandler(dir, history, dispatcher)

	roomService := rooms.NewService(roomStore, connStore, history, cfg.RoomNamespace)
	sweeper := tasks.NewSweeper(roomService, cfg.SweepSchedule)
	if err := sweeper.Start(); err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()
	e.Use(echomw.Recover())
	e.GET("/ws", echo.WrapHandler(gw.Handler(handler)))
	api.NewHandler(roomService, history, pool).Register(e,
		middleware.RateLimiter(10, 20),
		middleware.Authenticate(authorizer),
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", cfg.Addr(), "env", cfg.Env)
		if err := e.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
		slog.Info("shutdown signal received")
	case err := <-serveErr:
		sweeper.Stop(context.Background())
		return err
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "err", err)
	}
	if err := gw.Shutdown(shutdownCtx); err != nil {
		slog.Error("gateway shutdown failed", "err", err)
	}
	sweeper.Stop(shutdownCtx)

	slog.Info("graceful shutdown complete")
	return nil
}
