package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/autobidder/internal/app"
	"github.com/noah-isme/autobidder/internal/common"
	"github.com/noah-isme/autobidder/internal/config"
	"github.com/noah-isme/autobidder/internal/events"
	"github.com/noah-isme/autobidder/internal/lock"
	"github.com/noah-isme/autobidder/internal/notify"
	"github.com/noah-isme/autobidder/internal/obs"
	"github.com/noah-isme/autobidder/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	deps, err := app.New(startCtx, cfg, app.Options{Component: "autobidder-worker"})
	cancel()
	if err != nil {
		obs.NewLogger(cfg.LogFormat, cfg.LogLevel).Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close(context.Background())
	logger := deps.Logger
	pool, redisClient := deps.DB, deps.Redis

	taskQueue := queue.Enqueuer{R: redisClient, Prefix: cfg.QueuePrefix, DedupTTL: cfg.IdempotencyTTL, MaxAttempts: cfg.WebhookMaxAttempts}
	deadLetters := queue.NewStore(pool)
	eventStore := events.PGStore{Pool: pool}

	dispatcher := &notify.Dispatcher{
		Endpoints:   notify.NewEndpointStore(pool),
		Events:      eventStore,
		Queue:       taskQueue,
		HTTP:        notify.NewHTTPClient(cfg.WebhookRequestTimeout, 3, logger),
		Replay:      notify.RedisReplayGuard{Client: redisClient, Prefix: cfg.QueuePrefix},
		ReplayTTL:   cfg.WebhookReplayTTL,
		Locker:      lock.Locker{R: redisClient, Prefix: cfg.QueuePrefix},
		LockTTL:     cfg.WorkerVisibility,
		MaxAttempts: cfg.WebhookMaxAttempts,
		Logger:      logger,
	}

	var mailer common.EmailSender = common.NopEmailSender{}
	if cfg.SMTPConfigured() {
		mailer = notify.SMTPMailer{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
			ReplyTo:  cfg.OwnerEmail,
		}
	} else {
		logger.Warn().Msg("SMTP not configured, notification emails are discarded")
	}
	emailNotifier := notify.EmailNotifier{
		Mail:           mailer,
		OwnerEmail:     cfg.OwnerEmail,
		BusinessName:   cfg.BusinessName,
		Currency:       cfg.CurrencySymbol,
		NotifyCustomer: cfg.NotifyCustomer,
		Logger:         logger,
	}

	workers := []queue.Worker{
		{
			Kind:    notify.DeliveryTaskKind,
			Handler: dispatcher.HandleTask,
		},
		{
			Kind:    notify.EmailTaskKind,
			Handler: notify.NotifierTask(eventStore, emailNotifier),
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		w.R = redisClient
		w.Prefix = cfg.QueuePrefix
		w.Concurrency = cfg.WorkerConcurrency
		w.VisibilityTimeout = cfg.WorkerVisibility
		w.Store = deadLetters
		workerLogger := logger.With().Str("kind", w.Kind).Logger()
		w.Logger = &workerLogger
		g.Go(func() error { return w.Run(gctx) })
	}

	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker starting")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker stopped with error")
		return
	}
	logger.Info().Msg("worker shutdown complete")
}
