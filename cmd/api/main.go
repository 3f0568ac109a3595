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

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/eunoia-health/eunoia/backend/internal/cache"
	"github.com/eunoia-health/eunoia/backend/internal/config"
	"github.com/eunoia-health/eunoia/backend/internal/directory"
	"github.com/eunoia-health/eunoia/backend/internal/handler"
	"github.com/eunoia-health/eunoia/backend/internal/jobs"
	"github.com/eunoia-health/eunoia/backend/internal/service/chat"
	"github.com/eunoia-health/eunoia/backend/internal/store"
	"github.com/eunoia-health/eunoia/backend/internal/store/memory"
	"github.com/eunoia-health/eunoia/backend/internal/store/mongostore"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg.Server.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zcfg.Build()
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	repo, err := openRepository(ctx, cfg.Mongo, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := repo.Close(closeCtx); err != nil {
			logger.Warn("failed to close message store", zap.Error(err))
		}
	}()

	opts := []chat.Option{chat.WithLogger(logger.Named("chat"))}

	if cfg.Directory.Enabled() {
		users, err := directory.Open(directory.Config{Driver: cfg.Directory.Driver, DSN: cfg.Directory.DSN})
		if err != nil {
			logger.Warn("user directory unavailable, greetings will be anonymous", zap.Error(err))
		} else {
			defer users.Close()
			opts = append(opts, chat.WithDirectory(users))
			logger.Info("user directory connected", zap.String("driver", cfg.Directory.Driver))
		}
	}

	if cfg.Redis.Enabled() {
		history, err := cache.Connect(ctx, cache.Config{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			logger.Warn("history cache unavailable, serving from the store", zap.Error(err))
		} else {
			defer history.Close()
			opts = append(opts, chat.WithCache(history))
			logger.Info("history cache connected", zap.String("addr", cfg.Redis.Addr))
		}
	}

	chatSvc := chat.NewService(repo, opts...)

	reaper := jobs.NewReaper(chatSvc, cfg.Sessions.IdleTimeout, logger)
	if err := reaper.Schedule(cfg.Sessions.ReaperSpec); err != nil {
		return err
	}

	router := handler.NewRouter(chatSvc, handler.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger.Named("http"),
	})
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("eunoia chat backend listening", zap.String("addr", srv.Addr))
		return runServer(gctx, srv)
	})
	g.Go(func() error {
		return reaper.Run(gctx)
	})
	return g.Wait()
}

func openRepository(ctx context.Context, cfg config.MongoConfig, logger *zap.Logger) (store.Repository, error) {
	if !cfg.Enabled() {
		logger.Warn("MONGODB_URI not set, using the in-memory store; data is lost on restart")
		return memory.New(nil), nil
	}

	repo, err := mongostore.Open(ctx, mongostore.Config{
		URI:      cfg.URI,
		Database: cfg.Database,
		Timeout:  cfg.Timeout,
	}, logger.Named("mongo"))
	if err != nil {
		return nil, err
	}
	return repo, nil
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
