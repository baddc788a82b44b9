package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	telstar "github.com/Nityam-7/TELSTAR"
	audithook "github.com/Nityam-7/TELSTAR/audit_hook"
	"github.com/Nityam-7/TELSTAR/auth"
	"github.com/Nityam-7/TELSTAR/config"
	"github.com/Nityam-7/TELSTAR/eventbus"
	"github.com/Nityam-7/TELSTAR/invoicepdf"
	"github.com/Nityam-7/TELSTAR/observability"
	"github.com/Nityam-7/TELSTAR/store"
	"github.com/Nityam-7/TELSTAR/store/memory"
	"github.com/Nityam-7/TELSTAR/store/mongo"
	"github.com/Nityam-7/TELSTAR/store/postgres"
	"github.com/Nityam-7/TELSTAR/store/sqlite"
	"github.com/Nityam-7/TELSTAR/usage"
)

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openStore connects the configured backend.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return memory.New(), nil
	case "sqlite":
		s, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := postgres.Open(ctx, cfg.DSN, cfg.MaxConns)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "mongo":
		s, err := mongo.Open(ctx, cfg.DSN, cfg.Database)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// app is a wired engine plus the resources the commands release on exit.
type app struct {
	engine   *telstar.Engine
	registry *prometheus.Registry
	logger   *slog.Logger
}

// buildApp wires the engine, its plugins and the metrics registry.
func buildApp(ctx context.Context, cfg *config.Config, s store.Store, logger *slog.Logger) (*app, error) {
	opts := []telstar.Option{
		telstar.WithLogger(logger),
		telstar.WithCurrency(cfg.Billing.Currency),
		telstar.WithAutoMigrate(cfg.Store.Migrate),
		telstar.WithHasher(auth.NewBcryptHasher(cfg.Auth.BcryptCost)),
		telstar.WithPlugin(invoicepdf.New(invoicepdf.WithIssuer(cfg.Billing.InvoiceIssuer))),
		telstar.WithPlugin(audithook.New(logRecorder(logger), audithook.WithLogger(logger))),
	}

	if cfg.Auth.JWTSecret != "" {
		issuer, err := auth.NewJWTIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)
		if err != nil {
			return nil, err
		}
		opts = append(opts, telstar.WithTokenIssuer(issuer))
	} else {
		logger.Warn("no jwt secret configured; session tokens will not survive a restart")
		opts = append(opts, telstar.WithTokenIssuer(auth.NewEphemeralJWTIssuer(cfg.Auth.TokenTTL)))
	}

	if cfg.Billing.UsageFromRecords {
		opts = append(opts, telstar.WithUsageSource(usage.NewStoreSource(s)))
	}

	reg := prometheus.NewRegistry()
	if cfg.Metrics.Enabled {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		factory := observability.NewPrometheusFactory(reg)
		opts = append(opts, telstar.WithPlugin(observability.NewMetricsExtension(factory)))
	}

	if cfg.EventBus.Enabled {
		pub, err := eventbus.NewRabbitMQPublisher(cfg.EventBus.URL, cfg.EventBus.Exchange, logger)
		if err != nil {
			return nil, err
		}
		breakerCfg := eventbus.DefaultBreakerConfig()
		breakerCfg.FailureThreshold = cfg.EventBus.FailureThreshold
		if cfg.EventBus.OpenTimeout > 0 {
			breakerCfg.Timeout = cfg.EventBus.OpenTimeout
		}
		guarded := eventbus.NewBreakerPublisher(pub, breakerCfg, logger)
		opts = append(opts, telstar.WithPlugin(eventbus.NewEventPlugin(guarded, eventbus.WithLogger(logger))))
	}

	eng := telstar.New(s, opts...)
	if err := eng.Start(ctx); err != nil {
		return nil, err
	}
	return &app{engine: eng, registry: reg, logger: logger}, nil
}

// logRecorder writes audit events to the service log.
func logRecorder(logger *slog.Logger) audithook.Recorder {
	return audithook.RecorderFunc(func(_ context.Context, ev *audithook.AuditEvent) error {
		attrs := []any{
			"action", ev.Action,
			"resource", ev.Resource,
			"resource_id", ev.ResourceID,
			"outcome", ev.Outcome,
			"severity", ev.Severity,
		}
		if ev.Reason != "" {
			attrs = append(attrs, "reason", ev.Reason)
		}
		for k, v := range ev.Metadata {
			attrs = append(attrs, "meta."+k, v)
		}
		logger.Info("audit", attrs...)
		return nil
	})
}
