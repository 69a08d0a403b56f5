package main

import (
	"context"
	"fmt"
	"log/slog"

	"xrepost/internal/config"
	"xrepost/models"
	"xrepost/pkg/netutil"
	"xrepost/pkg/pipeline"
	"xrepost/pkg/socialdata"
	"xrepost/pkg/storage"
	"xrepost/pkg/telegram"
	"xrepost/pkg/translate"
	"xrepost/pkg/twitter"

	"golang.org/x/time/rate"
)

const telegramSessionName = "alert-bot"

// app holds the collaborators shared by the serve and collect commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *storage.DB
	twitter  *twitter.Client
	telegram *telegram.Notifier
	notifier pipeline.Notifier
	deps     pipeline.Deps
	opts     pipeline.Options
}

func openDB(ctx context.Context, cfg *config.Config) (*storage.DB, error) {
	db, err := storage.Open(ctx, cfg.Database.DSN, storage.PoolOptions{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	db.RateDefaults = models.RateLimit{Ceiling: cfg.RateLimit.Ceiling, Window: cfg.RateLimit.Window}
	return db, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	var px *models.Proxy
	if cfg.Proxy.Addr != "" {
		px = &models.Proxy{Addr: cfg.Proxy.Addr, Login: cfg.Proxy.Login, Password: cfg.Proxy.Password}
	}
	searchHTTP, err := netutil.NewHTTPClient(px, cfg.Search.Timeout)
	if err != nil {
		db.Close()
		return nil, err
	}
	translateHTTP, err := netutil.NewHTTPClient(px, cfg.Translate.Timeout)
	if err != nil {
		db.Close()
		return nil, err
	}
	twitterHTTP, err := netutil.NewHTTPClient(px, cfg.Twitter.Timeout)
	if err != nil {
		db.Close()
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		db:     db,
		twitter: twitter.New(twitter.Options{
			ConsumerKey:    cfg.Twitter.ConsumerKey,
			ConsumerSecret: cfg.Twitter.ConsumerSecret,
			CallbackURL:    cfg.Twitter.CallbackURL,
			APIBase:        cfg.Twitter.APIBase,
			Timeout:        cfg.Twitter.Timeout,
		}, twitterHTTP),
		opts: pipelineOptions(cfg),
	}

	if cfg.Telegram.Enabled {
		dialer, err := netutil.Dialer(px)
		if err != nil {
			db.Close()
			return nil, err
		}
		a.telegram = telegram.NewNotifier(telegram.Options{
			AppID:    cfg.Telegram.AppID,
			AppHash:  cfg.Telegram.AppHash,
			BotToken: cfg.Telegram.BotToken,
			Chat:     cfg.Telegram.Chat,
			Queue:    cfg.Telegram.Queue,
		}, &telegram.DBSessionStorage{DB: db.Conn, Name: telegramSessionName}, dialer, logger)
		a.notifier = a.telegram
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.Search.RequestsPerSecond), cfg.Search.Burst)
	a.deps = pipeline.Deps{
		Store:    db,
		Searcher: socialdata.New(cfg.Search.Endpoint, cfg.Search.APIKey, searchHTTP, limiter),
		Translator: translate.New(translate.Options{
			Endpoint:    cfg.Translate.Endpoint,
			Model:       cfg.Translate.Model,
			APIKey:      cfg.Translate.APIKey,
			MaxTokens:   cfg.Translate.MaxTokens,
			Temperature: cfg.Translate.Temperature,
		}, translateHTTP),
		Publisher: a.twitter,
		Notifier:  a.notifier,
		Logger:    logger,
	}
	return a, nil
}

// runNotifier keeps the alert bot connected until ctx is done.
func (a *app) runNotifier(ctx context.Context) {
	if a.telegram == nil {
		return
	}
	go func() {
		if err := a.telegram.Run(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("telegram notifier stopped", "error", err)
		}
	}()
}

func (a *app) Close() error {
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func pipelineOptions(cfg *config.Config) pipeline.Options {
	return pipeline.Options{
		QueryPolicy:        cfg.Fetch.QueryPolicy,
		BurstLimit:         cfg.Fetch.BurstLimit,
		BurstThreshold:     cfg.Fetch.BurstThreshold,
		MaxConcurrentTasks: cfg.Fetch.MaxConcurrentTasks,
		ItemPause:          cfg.Fetch.ItemPause,
		AccountStagger:     cfg.Fetch.AccountStagger,
		Interval:           cfg.Fetch.Interval,
		StopGrace:          cfg.Fetch.StopGrace,
		MaxPublishAttempts: cfg.Staging.MaxPublishAttempts,
		RetryAfter:         cfg.Staging.RetryAfter,
		StagedTTL:          cfg.Staging.TTL,
		DedupRetention:     cfg.Dedup.Retention,
	}
}
