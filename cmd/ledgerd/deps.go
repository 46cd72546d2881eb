package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ledgerd/internal/config"
	"github.com/fyrsmithlabs/ledgerd/internal/conversation"
	"github.com/fyrsmithlabs/ledgerd/internal/decision"
	"github.com/fyrsmithlabs/ledgerd/internal/functions"
	"github.com/fyrsmithlabs/ledgerd/internal/llm"
	"github.com/fyrsmithlabs/ledgerd/internal/logging"
	"github.com/fyrsmithlabs/ledgerd/internal/messaging"
	"github.com/fyrsmithlabs/ledgerd/internal/orchestrator"
	"github.com/fyrsmithlabs/ledgerd/internal/permissions"
	"github.com/fyrsmithlabs/ledgerd/internal/registry"
	"github.com/fyrsmithlabs/ledgerd/internal/supabase"
	"github.com/fyrsmithlabs/ledgerd/internal/telemetry"
)

// dependencies holds the initialized collaborators shared by serve and worker.
type dependencies struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	nc        *nats.Conn
	registry  *registry.Registry
	decisions decision.Store
	pipeline  *orchestrator.Pipeline
	metrics   *prometheus.Registry

	closers []func() error
}

// Close releases resources in reverse order of acquisition.
func (d *dependencies) Close(ctx context.Context) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.logger.Warn(ctx, "error during shutdown", zap.Error(err))
		}
	}
	if d.telemetry != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.telemetry.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
		}
	}
	_ = d.logger.Sync()
}

func initLogger(cfg *config.Config) (*logging.Logger, error) {
	logCfg, err := logging.ConfigFromObservability(cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}
	return logging.NewLogger(logCfg, global.GetLoggerProvider())
}

// initDependencies loads configuration and wires the pipeline.
func initDependencies(ctx context.Context) (*dependencies, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	deps := &dependencies{cfg: cfg, logger: logger, metrics: prometheus.NewRegistry()}
	zl := logger.Underlying()

	deps.telemetry, err = telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version), telemetry.WithLogger(zl))
	if err != nil {
		deps.Close(ctx)
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	if err := deps.wire(ctx); err != nil {
		deps.Close(ctx)
		return nil, err
	}
	return deps, nil
}

func (d *dependencies) wire(ctx context.Context) error {
	cfg := d.cfg
	zl := d.logger.Underlying()

	contexts, err := d.contextStore()
	if err != nil {
		return err
	}
	if d.decisions, err = d.decisionStore(ctx); err != nil {
		return err
	}

	var (
		ledger    functions.Ledger
		authority permissions.Authority
		channels  orchestrator.ChannelDirectory
		convs     orchestrator.Conversations
	)
	if cfg.Supabase.URL != "" {
		sb, err := supabase.New(cfg.Supabase)
		if err != nil {
			return fmt.Errorf("initializing supabase: %w", err)
		}
		cel, err := permissions.NewCELAuthority(sb, cfg.Permissions.Rules, zl)
		if err != nil {
			return fmt.Errorf("compiling permission rules: %w", err)
		}
		ledger, authority, channels, convs = sb, cel, sb, sb
		d.logger.Info(ctx, "using supabase tenant data", zap.String("url", cfg.Supabase.URL))
	} else {
		dir := orchestrator.NewMemoryDirectory()
		ledger = functions.NewMemoryLedger()
		authority = permissions.StaticAuthority{Set: permissions.FromNames(permissions.All...)}
		channels, convs = dir, dir
		d.logger.Warn(ctx, "supabase not configured, using in-memory tenant data with every permission granted")
	}

	d.registry, err = registry.New(functions.Catalog(ledger)...)
	if err != nil {
		return fmt.Errorf("building function registry: %w", err)
	}

	model, err := llm.NewOpenAI(cfg.LLM)
	if err != nil {
		return fmt.Errorf("initializing llm: %w", err)
	}
	client := llm.NewClient(model, cfg.LLM.Model,
		llm.WithRateLimit(cfg.LLM.RateLimit, cfg.LLM.Burst),
		llm.WithLogger(zl.Named("llm")),
	)

	d.nc, err = nats.Connect(cfg.NATS.URL,
		nats.Name("ledgerd"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return fmt.Errorf("connecting to nats: %w", err)
	}
	d.closers = append(d.closers, func() error {
		d.nc.Close()
		return nil
	})

	d.pipeline, err = orchestrator.New(orchestrator.Deps{
		Contexts:      contexts,
		Decisions:     d.decisions,
		Registry:      d.registry,
		Permissions:   permissions.NewResolver(authority, d.registry),
		Classifier:    llm.NewClassifier(client),
		DecisionMaker: llm.NewDecisionMaker(client),
		Responder:     llm.NewResponder(client),
		Messenger:     messaging.NewNATSMessenger(d.nc, cfg.NATS.OutboundPrefix),
		Channels:      channels,
		Conversations: convs,
	},
		orchestrator.WithLogger(zl.Named("pipeline")),
		orchestrator.WithMetrics(orchestrator.NewMetrics(d.metrics)),
		orchestrator.WithTracerProvider(d.telemetry.TracerProvider()),
		orchestrator.WithMaxRecentMessages(cfg.Pipeline.MaxRecentMessages),
	)
	if err != nil {
		return fmt.Errorf("building pipeline: %w", err)
	}
	return nil
}

func (d *dependencies) contextStore() (conversation.Store, error) {
	st := conversation.StoreType(d.cfg.Pipeline.ContextStore)
	if st != conversation.StoreTypeRedis {
		return conversation.NewStore(st)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     d.cfg.Redis.Addr,
		Password: d.cfg.Redis.Password.Value(),
		DB:       d.cfg.Redis.DB,
	})
	d.closers = append(d.closers, rdb.Close)
	return conversation.NewStore(st,
		conversation.WithRedisClient(rdb),
		conversation.WithRedisTTL(d.cfg.Redis.TTL),
	)
}

func (d *dependencies) decisionStore(ctx context.Context) (decision.Store, error) {
	switch d.cfg.Pipeline.DecisionStore {
	case "", "memory":
		return decision.NewMemoryStore(), nil
	case "postgres":
	default:
		return nil, fmt.Errorf("unknown decision store %q", d.cfg.Pipeline.DecisionStore)
	}

	if !d.cfg.Postgres.DSN.IsSet() {
		return nil, errors.New("postgres DSN is required for the postgres decision store")
	}
	db, err := sql.Open("postgres", d.cfg.Postgres.DSN.Value())
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	d.closers = append(d.closers, db.Close)
	db.SetMaxOpenConns(d.cfg.Postgres.MaxOpenConns)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	store := decision.NewPostgresStore(db)
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("initializing decision schema: %w", err)
	}
	return store, nil
}
