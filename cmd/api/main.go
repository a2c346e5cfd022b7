package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/autobidder/internal/analytics"
	"github.com/noah-isme/autobidder/internal/app"
	"github.com/noah-isme/autobidder/internal/audit"
	"github.com/noah-isme/autobidder/internal/common"
	"github.com/noah-isme/autobidder/internal/config"
	"github.com/noah-isme/autobidder/internal/events"
	"github.com/noah-isme/autobidder/internal/export"
	"github.com/noah-isme/autobidder/internal/formula"
	"github.com/noah-isme/autobidder/internal/health"
	httpmw "github.com/noah-isme/autobidder/internal/http/middleware"
	"github.com/noah-isme/autobidder/internal/lock"
	"github.com/noah-isme/autobidder/internal/notify"
	"github.com/noah-isme/autobidder/internal/obs"
	"github.com/noah-isme/autobidder/internal/pricing"
	"github.com/noah-isme/autobidder/internal/queue"
	"github.com/noah-isme/autobidder/internal/quote"
	"github.com/noah-isme/autobidder/internal/ratelimit"
	"github.com/noah-isme/autobidder/internal/security"
	"github.com/noah-isme/autobidder/internal/tenant"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	deps, err := app.New(startCtx, cfg, app.Options{Component: "autobidder-api", Migrate: cfg.RunMigrations})
	cancel()
	if err != nil {
		obs.NewLogger(cfg.LogFormat, cfg.LogLevel).Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close(context.Background())
	logger := deps.Logger
	pool, redisClient := deps.DB, deps.Redis

	taskQueue := queue.Enqueuer{R: redisClient, Prefix: cfg.QueuePrefix, DedupTTL: cfg.IdempotencyTTL, MaxAttempts: cfg.WebhookMaxAttempts}
	eventStore := events.PGStore{Pool: pool}
	endpointStore := notify.NewEndpointStore(pool)

	dispatcher := &notify.Dispatcher{
		Endpoints:   endpointStore,
		Events:      eventStore,
		Queue:       taskQueue,
		HTTP:        notify.NewHTTPClient(cfg.WebhookRequestTimeout, 1, logger),
		Replay:      notify.RedisReplayGuard{Client: redisClient, Prefix: cfg.QueuePrefix},
		ReplayTTL:   cfg.WebhookReplayTTL,
		Locker:      lock.Locker{R: redisClient, Prefix: cfg.QueuePrefix},
		MaxAttempts: cfg.WebhookMaxAttempts,
		Logger:      logger,
	}
	bus := &events.Bus{Store: eventStore}
	if cfg.WebhookDeliveryEnabled {
		bus.Scheduler = dispatcher
	}
	if cfg.NotifyEmailEnable {
		bus.Notifiers = append(bus.Notifiers, notify.Deferred{
			Queue:  taskQueue,
			Kind:   notify.EmailTaskKind,
			Topics: []string{events.TopicQuoteSubmitted},
		})
	}

	formulaStore := formula.CachedStore{
		Store: formula.NewStore(pool),
		Cache: formula.NewCache(redisClient, cfg.FormulaCacheTTL),
	}
	formulaService, err := formula.NewService(formula.ServiceConfig{Store: formulaStore, Events: bus, Logger: logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise formula service")
	}
	formulaHandler := formula.NewHandler(formulaService)

	settingsStore := pricing.NewSettingsStore(pool)
	settingsHandler := pricing.SettingsHandler{Store: settingsStore}

	quoteService, err := quote.NewService(quote.ServiceConfig{
		Formulas:    formulaService,
		Settings:    settingsStore,
		Store:       quote.NewStore(pool),
		Events:      bus,
		Logger:      logger,
		Parallelism: cfg.EvalParallelism,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise quote service")
	}
	quoteHandler := quote.Handler{Service: quoteService}

	exportHandler := &export.Handler{
		Quotes:       quoteService,
		Settings:     settingsStore,
		BusinessName: cfg.BusinessName,
		Currency:     cfg.CurrencySymbol,
		MaxRows:      cfg.ExportMaxRows,
	}
	webhookAdmin := &notify.AdminHandler{Store: endpointStore, Dispatcher: dispatcher}
	queueAdmin := &queue.AdminHandler{Store: queue.NewStore(pool), Queue: taskQueue, Logger: logger}
	analyticsHandler := &analytics.Handler{Svc: &analytics.Service{
		Q:            analytics.NewStore(pool),
		R:            redisClient,
		TTL:          cfg.AnalyticsCacheTTL,
		DefaultRange: cfg.AnalyticsDefaultRange,
	}}
	auditStore := audit.NewStore(pool)
	auditRecorder := audit.Recorder{
		Service: audit.Service{Store: auditStore, Enabled: cfg.AuditEnabled, SamplingRate: cfg.AuditSamplingRate},
		OnError: func(err error) { logger.Warn().Err(err).Msg("record audit entry") },
	}

	onLimiterError := func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") }
	evaluateLimit := ratelimit.Handler{
		Limiter: ratelimit.SlidingWindow{
			Client: redisClient,
			Prefix: cfg.QueuePrefix + ":rl:evaluate:",
			Window: cfg.EvaluateRateWindow,
			Max:    cfg.EvaluateRateLimit,
		},
		Scope:   "evaluate",
		OnError: onLimiterError,
	}
	submitLimiter, err := ratelimit.NewFixedWindow(redisClient, cfg.QueuePrefix+":rl:submit", int64(cfg.SubmitRateLimit), cfg.SubmitRateWindow)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise submit rate limiter")
	}
	submitLimit := ratelimit.Handler{Limiter: submitLimiter, Scope: "submit", OnError: onLimiterError}
	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	var httpMetrics *obs.HTTPMetrics
	if cfg.MetricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(cfg.MetricsNamespace, obs.ParseBucketsCSV(cfg.MetricsBuckets), deps.Registry)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if deps.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.EnableHSTS}.Middleware)
	r.Use(security.CORS(cfg.CORSOrigins()))
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)
	r.NotFound(httpmw.NotFound)
	r.MethodNotAllowed(httpmw.MethodNotAllowed)

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.PprofEnabled {
		r.Mount(pprofPrefix, protectPprof(newPprofMux(), cfg.PprofUser, cfg.PprofPass))
	}

	healthHandler := health.Handler{
		Checker:      health.Deps{Pool: pool, Redis: redisClient},
		DBTimeout:    cfg.HealthDBTimeout,
		RedisTimeout: cfg.HealthRedisTimeout,
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	resolver := tenant.NewResolver(cfg.TenantHeader, cfg.TenantRootDomain, cfg.DefaultTenant)
	r.Route("/api/v1", func(v chi.Router) {
		v.Use(resolver.Middleware)
		v.Use(httpmw.RequireTenant)

		v.Get("/formulas/{id}", formulaHandler.Get)
		v.With(evaluateLimit.Middleware).Post("/formulas/{id}/evaluate", formulaHandler.Evaluate)
		v.With(evaluateLimit.Middleware).Post("/quotes/preview", quoteHandler.Preview)
		v.With(submitLimit.Middleware, idem.Middleware).Post("/quotes", quoteHandler.Submit)

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(security.AdminToken{Token: cfg.AdminAPIToken}.Middleware)
			admin.Use(auditRecorder.Middleware)

			admin.Get("/formulas", formulaHandler.List)
			admin.With(idem.Middleware).Post("/formulas", formulaHandler.Create)
			admin.Get("/formulas/{id}", formulaHandler.Get)
			admin.Put("/formulas/{id}", formulaHandler.Update)
			admin.Delete("/formulas/{id}", formulaHandler.Delete)

			admin.Get("/pricing-settings", settingsHandler.Get)
			admin.Put("/pricing-settings", settingsHandler.Put)

			admin.Get("/quotes", quoteHandler.List)
			admin.Get("/quotes/export.xlsx", exportHandler.ExportLeads)
			admin.Get("/quotes/{id}", quoteHandler.Get)
			admin.Patch("/quotes/{id}/status", quoteHandler.UpdateStatus)
			admin.Get("/quotes/{id}/estimate.pdf", exportHandler.Estimate)

			admin.Get("/webhooks", webhookAdmin.List)
			admin.Post("/webhooks", webhookAdmin.Create)
			admin.Put("/webhooks/{id}", webhookAdmin.Update)
			admin.Delete("/webhooks/{id}", webhookAdmin.Delete)
			admin.Post("/webhooks/{id}/ping", webhookAdmin.Ping)

			admin.Get("/queue/dlq", queueAdmin.ListDLQ)
			admin.Post("/queue/dlq/replay", queueAdmin.ReplayDLQ)
			admin.Get("/queue/stats", queueAdmin.Stats)

			admin.Get("/analytics/overview", analyticsHandler.Overview)
			admin.Get("/analytics/daily", analyticsHandler.Daily)
			admin.Get("/analytics/top-services", analyticsHandler.TopServices)

			admin.Get("/audit", audit.Handler{Store: auditStore}.List)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-ctx.Done():
	}

	health.SetReady(false)
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
	logger.Info().Msg("server stopped")
}

const pprofPrefix = "/debug/pprof"

// newPprofMux registers the profiler on full paths: chi's Mount keeps the prefix in
// r.URL.Path and pprof.Index resolves named profiles from it.
func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(pprofPrefix+"/", pprof.Index)
	mux.HandleFunc(pprofPrefix+"/cmdline", pprof.Cmdline)
	mux.HandleFunc(pprofPrefix+"/profile", pprof.Profile)
	mux.HandleFunc(pprofPrefix+"/symbol", pprof.Symbol)
	mux.HandleFunc(pprofPrefix+"/trace", pprof.Trace)
	return mux
}

// protectPprof requires basic auth when user is set. Without a user the profiler is left open,
// so OBS_ENABLE_PPROF should only be turned on behind a private network in that case.
func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
