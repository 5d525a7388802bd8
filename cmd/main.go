package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/amirphl/order-stack/internal/api"
	"github.com/amirphl/order-stack/internal/config"
	"github.com/amirphl/order-stack/internal/db"
	"github.com/amirphl/order-stack/internal/stack"
	"github.com/amirphl/order-stack/internal/utils"
)

func openStorage(ctx context.Context, cfg config.Config) (db.Storage, error) {
	switch cfg.StoreBackend {
	case "postgres":
		sqlDB, err := sql.Open("postgres", cfg.DBConnStr)
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(cfg.DBMaxOpen)
		sqlDB.SetMaxIdleConns(cfg.DBMaxIdle)
		if err := sqlDB.PingContext(ctx); err != nil {
			return nil, err
		}
		storage, err := db.NewPostgres(sqlDB)
		if err != nil {
			return nil, err
		}
		if cfg.RunMigration {
			if err := storage.Migrate(ctx); err != nil {
				return nil, err
			}
		}
		return storage, nil
	case "pebble":
		return db.NewPebble(cfg.PebblePath)
	default:
		return db.NewMemory(), nil
	}
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg := config.MustLoadConfig()

	var logger *zap.Logger
	var err error
	if cfg.LogPath != "" {
		logger, err = utils.NewLoggerWithFile(cfg.LogPath)
	} else {
		logger, err = utils.NewLogger()
	}
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	storage, err := openStorage(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to open storage", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer storage.Close()
	logger.Info("order stack storage ready", zap.String("backend", cfg.StoreBackend))

	// The WebSocket hub sees every journal event the stack writes.
	hub := api.NewHub(logger)
	jnl := api.NewJournalBroadcaster(storage, hub)
	st := stack.New(storage, jnl, logger)
	srv := api.NewServer(st, hub, logger)

	httpSrv := &http.Server{Addr: cfg.APIAddr, Handler: srv.Handler()}
	go func() {
		logger.Info("api server starting", zap.String("addr", cfg.APIAddr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server failed", zap.Error(err))
		}
	}()
	go srv.Hub().Run()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api server shutdown failed", zap.Error(err))
	}
	logger.Info("order stack stopped")
}
