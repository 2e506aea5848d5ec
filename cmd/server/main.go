package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/d60-Lab/district-feed/config"
	"github.com/d60-Lab/district-feed/internal/api"
	"github.com/d60-Lab/district-feed/internal/api/handler"
	"github.com/d60-Lab/district-feed/internal/bot"
	"github.com/d60-Lab/district-feed/internal/gateway"
	"github.com/d60-Lab/district-feed/internal/model"
	"github.com/d60-Lab/district-feed/internal/notify"
	"github.com/d60-Lab/district-feed/internal/repository"
	"github.com/d60-Lab/district-feed/internal/service"
	"github.com/d60-Lab/district-feed/pkg/database"
	"github.com/d60-Lab/district-feed/pkg/logger"
	"github.com/d60-Lab/district-feed/pkg/tracing"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		logger.Error("server exited", zap.Error(err))
		logger.Sync()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN, Environment: cfg.Sentry.Environment}); err != nil {
			return fmt.Errorf("initializing sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	db, err := database.InitDB(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(db); err != nil {
			logger.Warn("closing database failed", zap.Error(err))
		}
	}()
	if err := repository.InitSchema(ctx, db); err != nil {
		return err
	}
	posts := repository.NewPostRepository(db)

	tg, err := gateway.NewTelegram(gateway.TelegramOptions{
		Token:          cfg.Bot.Token,
		RequestTimeout: cfg.Bot.RequestTimeout,
		PollTimeout:    cfg.Bot.PollTimeout,
	})
	if err != nil {
		return err
	}

	var resolver gateway.MediaResolver = tg
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			// the cache falls through on errors, so a missing redis only costs latency
			logger.Warn("redis unreachable, media urls resolved uncached", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		resolver = gateway.NewCachedResolver(tg, rdb, cfg.Redis.MediaURLTTL)
	}

	dispatcher := notify.NewDispatcher(tg, cfg.Bot.AdminID, notify.Options{
		Workers:       cfg.Notify.Workers,
		QueueSize:     cfg.Notify.QueueSize,
		MaxAttempts:   cfg.Notify.MaxAttempts,
		RatePerSecond: cfg.Notify.RatePerSecond,
	})
	stopDispatcher := dispatcher.Start()

	moderation := service.NewModerationService(posts, dispatcher)

	var feedOpts []service.FeedOption
	if cfg.Feed.MediaProxy {
		feedOpts = append(feedOpts, service.WithMediaProxy("/api/media"))
	}
	feed := service.NewFeedService(posts, resolver, cfg.Feed.Limit, feedOpts...)

	categories := make([]model.Category, 0, len(cfg.Bot.Categories))
	for _, name := range cfg.Bot.Categories {
		c, ok := model.ParseCategory(name)
		if !ok || c == "" {
			return fmt.Errorf("unknown category %q", name)
		}
		categories = append(categories, c)
	}
	b := bot.New(tg, moderation, dispatcher, bot.Options{
		AdminID:      cfg.Bot.AdminID,
		Categories:   categories,
		WebAppURL:    cfg.Bot.WebAppURL,
		PendingLimit: cfg.Feed.PendingLimit,
	})

	srv := &http.Server{
		Addr:         cfg.Address(),
		Handler:      api.NewRouter(cfg, handler.NewHandler(feed)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("bot started", zap.Int("categories", len(categories)))
		b.Run(gctx, tg.Events(gctx))
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	runErr := g.Wait()

	// 先停止入口，再把队列里剩下的通知发完
	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := stopDispatcher(drainCtx); err != nil {
		logger.Warn("notification queue not drained", zap.Error(err))
	}
	logger.Info("server stopped")
	return runErr
}
