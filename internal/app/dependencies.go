// Package app assembles the infrastructure shared by the api and worker binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/autobidder/internal/config"
	"github.com/noah-isme/autobidder/internal/db"
	"github.com/noah-isme/autobidder/internal/obs"
	"github.com/noah-isme/autobidder/internal/queue"
	"github.com/noah-isme/autobidder/internal/resilience"
)

// Options selects per-binary behaviour.
type Options struct {
	// Component names the binary in logs, traces and the Postgres application_name.
	Component string
	// Migrate applies pending schema migrations before the pool is opened.
	Migrate bool
}

// Dependencies enumerates the core services every binary wires its modules from.
type Dependencies struct {
	Config   *config.Config
	Logger   zerolog.Logger
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Registry prometheus.Registerer
	// Tracing is false when tracing is disabled or the exporter failed to start.
	Tracing bool

	shutdownTracer func(context.Context) error
}

// New initialises logging, metrics, tracing, Postgres and Redis. On error everything opened
// so far is closed again.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Dependencies, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	component := opts.Component
	if component == "" {
		component = "autobidder"
	}
	d := &Dependencies{
		Config:   cfg,
		Logger:   obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", component).Str("env", cfg.AppEnv).Logger(),
		Registry: prometheus.DefaultRegisterer,
	}

	if cfg.MetricsEnabled {
		obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, d.Registry)
		queue.MustRegisterMetrics(d.Registry)
		resilience.MustRegisterMetrics(d.Registry)
	}

	if cfg.TracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   component,
			Endpoint:      cfg.OTLPEndpoint,
			Exporter:      cfg.TracingExporter,
			SamplingRatio: cfg.TracingSampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			d.Logger.Error().Err(err).Msg("initialise tracing")
		} else {
			d.Tracing = true
			d.shutdownTracer = shutdown
		}
	}

	if opts.Migrate {
		if err := db.Up(cfg.DatabaseURL); err != nil {
			d.Close(ctx)
			return nil, err
		}
		d.Logger.Info().Msg("database migrations applied")
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL, db.PoolOptions{ApplicationName: component})
	if err != nil {
		d.Close(ctx)
		return nil, err
	}
	d.DB = pool

	rdb, err := ConnectRedis(ctx, cfg.RedisURL, cfg.MetricsEnabled, d.Logger)
	if err != nil {
		d.Close(ctx)
		return nil, err
	}
	d.Redis = rdb
	return d, nil
}

// ConnectRedis parses url, instruments the client and pings it.
func ConnectRedis(ctx context.Context, url string, metrics bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Close releases Redis, the pool and the tracer, in that order.
func (d *Dependencies) Close(ctx context.Context) {
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close redis")
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
	if d.shutdownTracer != nil {
		if err := d.shutdownTracer(ctx); err != nil {
			d.Logger.Error().Err(err).Msg("shutdown tracer")
		}
	}
}

// Tracer returns the named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
