// Package service orchestrates payment initiation, oracle rate submission and
// settlement. Every mutating call runs inside one unit of work: either all of
// its effects (record changes, ledger movements, events) commit, or none do.
package service

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fxsettle/internal/payment/guard"
	"fxsettle/internal/payment/ledger"
	"fxsettle/internal/payment/metrics"
	"fxsettle/internal/payment/models"
	"fxsettle/internal/payment/quorum"
	"fxsettle/internal/payment/roster"
	"fxsettle/pkg/attrs"
	id "fxsettle/pkg/domain"
	dErrors "fxsettle/pkg/domain-errors"
	audit "fxsettle/pkg/platform/audit"
	"fxsettle/pkg/platform/audit/publishers/compliance"
	"fxsettle/pkg/platform/sentinel"
	"fxsettle/pkg/requestcontext"
)

const tracerName = "fxsettle/payment"

// PaymentReader reads committed payments outside any unit of work.
type PaymentReader interface {
	FindByID(ctx context.Context, paymentID id.PaymentID) (*models.Payment, error)
}

// BalanceReader reads committed ledger balances.
type BalanceReader interface {
	Balance(ctx context.Context, account id.AccountID) (*big.Int, error)
}

// EventReader reads committed events.
type EventReader interface {
	ListByPayment(ctx context.Context, paymentID id.PaymentID) ([]audit.Event, error)
}

// Readers are the committed-state views used by the read operations.
type Readers struct {
	Payments PaymentReader
	Balances BalanceReader
	Events   EventReader
}

// Service is the settlement engine. It is safe for concurrent use.
type Service struct {
	tx                TxRunner
	readers           Readers
	roster            roster.Roster
	quorum            *quorum.Aggregator
	guard             *guard.Guard
	logger            *slog.Logger
	metrics           *metrics.Metrics
	complianceMetrics *compliance.Metrics
	tracer            trace.Tracer
	rejectDuplicates  bool
	txTimeout         time.Duration
	clock             func(ctx context.Context) time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithComplianceMetrics(m *compliance.Metrics) Option {
	return func(s *Service) {
		s.complianceMetrics = m
	}
}

// WithRejectDuplicateIDs makes InitiatePayment fail with CodeInvalidState when
// the payment id is already in use. By default an unsettled record has its
// initiation details overwritten.
func WithRejectDuplicateIDs(reject bool) Option {
	return func(s *Service) {
		s.rejectDuplicates = reject
	}
}

// WithTxTimeout bounds each mutating call whose context has no deadline,
// including the wait for the re-entrancy guard.
func WithTxTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.txTimeout = d
		}
	}
}

// WithClock overrides the request-scoped clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.clock = func(context.Context) time.Time { return now() }
	}
}

// WithGuard replaces the in-process re-entrancy guard, typically with one
// backed by guard.NewRedisLocker for multi-instance deployments.
func WithGuard(g *guard.Guard) Option {
	return func(s *Service) {
		if g != nil {
			s.guard = g
		}
	}
}

// New constructs a Service over a unit-of-work runner, committed-state
// readers and a fixed oracle roster.
func New(tx TxRunner, readers Readers, r roster.Roster, opts ...Option) *Service {
	s := &Service{
		tx:        tx,
		readers:   readers,
		roster:    r,
		quorum:    quorum.New(r),
		guard:     guard.New("submit-rate", guard.NewMemoryLocker()),
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
		txTimeout: defaultTxTimeout,
		clock:     requestcontext.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// withDeadline applies the service timeout when ctx has none.
func (s *Service) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.txTimeout)
}

// publisher binds a compliance publisher to the unit of work's event store.
func (s *Service) publisher(events audit.Store) *compliance.Publisher {
	opts := []compliance.Option{compliance.WithLogger(s.logger)}
	if s.complianceMetrics != nil {
		opts = append(opts, compliance.WithMetrics(s.complianceMetrics))
	}
	return compliance.New(events, opts...)
}

// logAudit writes an audit log line and annotates the current span.
func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, event, args...)
	}
	if paymentID := attrs.ExtractString(attributes, "payment_id"); paymentID != "" {
		trace.SpanFromContext(ctx).AddEvent(event, trace.WithAttributes(attrs.SpanAttributes(attributes)...))
	}
}

// endSpan records err on span and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

// loadForUpdate translates store sentinels for the mutating paths.
func loadForUpdate(ctx context.Context, payments PaymentStore, paymentID id.PaymentID) (*models.Payment, error) {
	p, err := payments.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeInvalidState, "payment does not exist")
		}
		if errors.Is(err, sentinel.ErrUnavailable) {
			return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "payment store unavailable")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load payment")
	}
	return p, nil
}

// Roster returns the oracle roster in order.
func (s *Service) Roster() []id.AccountID {
	return s.roster.Members()
}

// PoolAccount is the ledger account holding escrowed value.
func (s *Service) PoolAccount() id.AccountID {
	return ledger.PoolAccount
}
