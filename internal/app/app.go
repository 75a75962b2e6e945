// Package app assembles the settlement engine from configuration: stores,
// unit-of-work runner, re-entrancy guard, HTTP surface and the event relay.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"fxsettle/internal/payment/guard"
	"fxsettle/internal/payment/handler"
	"fxsettle/internal/payment/ledger"
	"fxsettle/internal/payment/metrics"
	"fxsettle/internal/payment/quorum"
	"fxsettle/internal/payment/roster"
	"fxsettle/internal/payment/service"
	"fxsettle/internal/payment/store"
	"fxsettle/internal/platform/config"
	"fxsettle/internal/platform/httpserver"
	"fxsettle/internal/platform/kafka/producer"
	"fxsettle/internal/platform/postgres"
	"fxsettle/internal/platform/redis"
	audit "fxsettle/pkg/platform/audit"
	"fxsettle/pkg/platform/audit/publishers/compliance"
	auditmemory "fxsettle/pkg/platform/audit/store/memory"
	auditpostgres "fxsettle/pkg/platform/audit/store/postgres"
	"fxsettle/pkg/platform/audit/worker"
	"fxsettle/pkg/platform/circuit"
	pkgstrings "fxsettle/pkg/platform/strings"
)

const (
	guardName        = "submit-rate"
	topicPartitions  = 3
	topicReplication = 1
	breakerThreshold = 5
)

// App is a fully wired engine. Relay is nil when no Kafka brokers are
// configured.
type App struct {
	Service  *service.Service
	Router   http.Handler
	Relay    *worker.Relay
	Registry *prometheus.Registry

	// MemoryLedger is set when running without Postgres so embedders can
	// install receive hooks on payee accounts.
	MemoryLedger *ledger.InMemoryLedger

	closers []func() error
}

// Build wires the engine. Postgres, Redis and Kafka are each optional; an
// empty URL or broker list selects the in-process alternative.
func Build(ctx context.Context, cfg config.Server, logger *slog.Logger) (*App, error) {
	a := &App{Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	oracles, err := loadRoster(cfg.Payment)
	if err != nil {
		return nil, err
	}
	if oracles.Len() < quorum.Threshold {
		logger.Warn("oracle roster smaller than quorum, payments cannot settle",
			"roster_size", oracles.Len(),
			"quorum", quorum.Threshold,
		)
	}

	checks := map[string]httpserver.HealthCheck{}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	var (
		tx      service.TxRunner
		readers service.Readers
		outbox  audit.Outbox
	)
	if db != nil {
		a.closers = append(a.closers, db.Close)
		if err := postgres.Migrate(ctx, db); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		tx, readers, outbox = postgresStores(db, cfg.Payment)
		checks["postgres"] = db.PingContext
		logger.Info("using postgres stores")
	} else {
		tx, readers, outbox, a.MemoryLedger = memoryStores(cfg.Payment)
		logger.Info("using in-memory stores")
	}

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithMetrics(metrics.NewWith(a.Registry)),
		service.WithComplianceMetrics(compliance.NewMetricsWith(a.Registry)),
		service.WithRejectDuplicateIDs(cfg.Payment.RejectDuplicateIDs),
		service.WithTxTimeout(cfg.Payment.TxTimeout),
	}

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		a.Close()
		return nil, err
	}
	if rdb != nil {
		a.closers = append(a.closers, rdb.Close)
		opts = append(opts, service.WithGuard(guard.New(guardName, guard.NewRedisLocker(rdb.Client, guardName))))
		checks["redis"] = rdb.Health
		logger.Info("using redis settlement lock")
	}

	a.Service = service.New(tx, readers, oracles, opts...)

	if len(cfg.Kafka.Brokers) > 0 {
		p, err := producer.New(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() error { p.Close(); return nil })
		if err := p.EnsureTopic(ctx, topicPartitions, topicReplication); err != nil {
			a.Close()
			return nil, fmt.Errorf("ensure topic %s: %w", cfg.Kafka.Topic, err)
		}
		a.Relay = worker.NewRelay(outbox, p,
			worker.WithLogger(logger),
			worker.WithMetrics(worker.NewMetricsWith(a.Registry)),
			worker.WithBreaker(circuit.New("kafka", circuit.WithFailureThreshold(breakerThreshold))),
			worker.WithInterval(cfg.Kafka.RelayInterval),
			worker.WithBatchSize(cfg.Kafka.RelayBatch),
		)
		checks["kafka"] = p.Health
	}

	h := handler.New(a.Service, logger, handler.WithAdminToken(cfg.AdminToken))
	a.Router = httpserver.NewRouter(logger, a.Registry, checks, h)
	return a, nil
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func loadRoster(cfg config.PaymentConfig) (roster.Roster, error) {
	if cfg.RosterFile != "" {
		r, err := roster.LoadFile(cfg.RosterFile)
		if err != nil {
			return roster.Roster{}, fmt.Errorf("load roster: %w", err)
		}
		return r, nil
	}
	r, err := roster.New(pkgstrings.SplitList(cfg.Oracles))
	if err != nil {
		return roster.Roster{}, fmt.Errorf("parse roster: %w", err)
	}
	return r, nil
}

func postgresStores(db *sql.DB, cfg config.PaymentConfig) (service.TxRunner, service.Readers, audit.Outbox) {
	events := auditpostgres.New(db)
	readers := service.Readers{
		Payments: store.NewPostgres(db),
		Balances: ledger.NewPostgres(db),
		Events:   events,
	}
	return service.NewPostgresTx(db).WithTimeout(cfg.TxTimeout), readers, events
}

func memoryStores(cfg config.PaymentConfig) (service.TxRunner, service.Readers, audit.Outbox, *ledger.InMemoryLedger) {
	payments := store.NewInMemory()
	balances := ledger.NewInMemory()
	events := auditmemory.NewInMemoryStore()
	readers := service.Readers{
		Payments: payments,
		Balances: balances,
		Events:   events,
	}
	return service.NewInMemoryTx(payments, balances, events).WithTimeout(cfg.TxTimeout), readers, events, balances
}
